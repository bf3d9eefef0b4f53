// Package gentext registers the gen_text target kind: one product that
// renders a `${key}`-interpolated template string against the target's
// environment and writes it to a single output file. It exercises
// internal/interp the way copyfile exercises plain file movement.
package gentext

import (
	"fmt"
	"path"
	"strings"

	"github.com/gridforge/gridforge/internal/env"
	"github.com/gridforge/gridforge/internal/ident"
	"github.com/gridforge/gridforge/internal/interp"
	"github.com/gridforge/gridforge/internal/plugin"
)

// Module is this plugin's entry point, held by the app's core module list.
type Module struct{}

func (Module) Register(r plugin.Registrar) {
	r.RegisterKind("gen_text", register)
}

// register builds one target from a gen_text rule's raw configuration.
// "template" is the literal string to render; "output" names the single
// file it is written to, relative to the target's own package and name.
func register(name string, cfg plugin.Config, emit plugin.EmitFunc) error {
	templateExpr, ok := cfg.Options["template"]
	if !ok {
		return fmt.Errorf("gen_text target %q: missing required \"template\" attribute", name)
	}
	templateVal, diags := templateExpr.Value(nil)
	if diags.HasErrors() {
		return fmt.Errorf("gen_text target %q: evaluating \"template\": %s", name, diags.Error())
	}
	template := templateVal.AsString()

	outputName := "out.txt"
	if outputExpr, ok := cfg.Options["output"]; ok {
		outputVal, diags := outputExpr.Value(nil)
		if diags.HasErrors() {
			return fmt.Errorf("gen_text target %q: evaluating \"output\": %s", name, diags.Error())
		}
		if err := interp.CheckStructural("output", outputVal.AsString()); err != nil {
			return err
		}
		outputName = outputVal.AsString()
	}

	requires := placeholderKeys(template)
	filters := interp.DefaultFilters()

	generate := func(target ident.ID, envLocal, envFromDeps, usingDefault env.Env, resolvedRefs map[string]string) (plugin.GenerateResult, error) {
		rendered, err := interp.ExpandLiteral(template, envLocal, filters)
		if err != nil {
			return plugin.GenerateResult{}, err
		}

		out := path.Join(target.Package, target.Target, outputName)
		product := plugin.Product{
			Env:     env.Subset(envLocal, requires),
			Outputs: []string{out},
			Command: plugin.Command{
				Rule:    "gen_text",
				Program: "sh",
				Args:    []string{"-c", fmt.Sprintf("printf '%%s' %s > $out", shellQuote(rendered))},
			},
		}
		return plugin.GenerateResult{Products: []plugin.Product{product}, Using: usingDefault}, nil
	}

	return emit(plugin.TargetSpec{
		Kind:      "gen_text",
		Requires:  requires,
		Generator: generate,
	})
}

// placeholderKeys extracts the distinct key names a template references,
// so the target can declare them as Requires: a gen_text target only
// becomes concrete once every key its own template names has a real
// value.
func placeholderKeys(template string) []string {
	matches := interp.PlaceholderKeys(template)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, k := range matches {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
