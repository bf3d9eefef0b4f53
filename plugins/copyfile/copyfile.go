// Package copyfile registers the copy_file target kind: one product per
// source, copying it byte-for-byte to a path scoped under the target's own
// package and name. It is gridforge's simplest kind, and doubles as the
// worked example spec.md's walkthrough scenarios use.
package copyfile

import (
	"fmt"
	"path"
	"strings"

	"github.com/gridforge/gridforge/internal/env"
	"github.com/gridforge/gridforge/internal/ident"
	"github.com/gridforge/gridforge/internal/plugin"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Module is this plugin's entry point, held by the app's core module list.
type Module struct{}

func (Module) Register(r plugin.Registrar) {
	r.RegisterKind("copy_file", register)
}

// register builds one target from a copy_file rule's raw configuration.
// "sources" is the only option this kind recognizes; each entry is either a
// package-relative path or a `//pkg:target#product` reference to another
// target's output.
func register(name string, cfg plugin.Config, emit plugin.EmitFunc) error {
	sourcesExpr, ok := cfg.Options["sources"]
	if !ok {
		return fmt.Errorf("copy_file target %q: missing required \"sources\" attribute", name)
	}

	val, diags := sourcesExpr.Value(nil)
	if diags.HasErrors() {
		return fmt.Errorf("copy_file target %q: evaluating \"sources\": %s", name, diags.Error())
	}
	listVal, err := convert.Convert(val, cty.List(cty.String))
	if err != nil {
		return fmt.Errorf("copy_file target %q: \"sources\" must be a list of strings: %w", name, err)
	}

	var sources []string
	for it := listVal.ElementIterator(); it.Next(); {
		_, v := it.Element()
		sources = append(sources, v.AsString())
	}
	if len(sources) == 0 {
		return fmt.Errorf("copy_file target %q: \"sources\" must list at least one entry", name)
	}

	var deps []string
	for _, src := range sources {
		if isReference(src) {
			deps = append(deps, src)
		}
	}

	generate := func(target ident.ID, envLocal, envFromDeps, usingDefault env.Env, resolvedRefs map[string]string) (plugin.GenerateResult, error) {
		products := make([]plugin.Product, 0, len(sources))
		for _, src := range sources {
			in, err := resolveSource(target, src, resolvedRefs)
			if err != nil {
				return plugin.GenerateResult{}, err
			}
			out := path.Join(target.Package, target.Target, path.Base(in))
			products = append(products, plugin.Product{
				Env:     env.Subset(envLocal, nil),
				Inputs:  []string{in},
				Outputs: []string{out},
				Command: plugin.Command{
					Rule:    "copy_file",
					Program: "cp",
					Args:    []string{"$in", "$out"},
				},
			})
		}
		return plugin.GenerateResult{Products: products, Using: usingDefault}, nil
	}

	return emit(plugin.TargetSpec{
		Kind:      "copy_file",
		Deps:      deps,
		Generator: generate,
	})
}

func isReference(s string) bool {
	return strings.HasPrefix(s, "//") || strings.HasPrefix(s, ":")
}

// resolveSource turns one source entry into a concrete project-relative
// input path: a literal entry is joined under the target's own package, a
// reference entry is looked up in resolvedRefs by its canonical identifier
// text.
func resolveSource(target ident.ID, src string, resolvedRefs map[string]string) (string, error) {
	if !isReference(src) {
		return path.Join(target.Package, src), nil
	}
	id, err := ident.Parse(src, target.Package)
	if err != nil {
		return "", err
	}
	resolved, ok := resolvedRefs[id.String()]
	if !ok {
		return "", fmt.Errorf("copy_file target %q: unresolved product reference %q", target.String(), src)
	}
	return resolved, nil
}
