package ninja

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gridforge/gridforge/internal/diag"
	"github.com/gridforge/gridforge/internal/engine"
)

// Options configures manifest emission.
type Options struct {
	// ProjectRoot is where source inputs not produced by any product are
	// resolved against, to validate MissingInput.
	ProjectRoot string

	// ManifestOutput is this manifest file's own path, the output of the
	// regenerate build statement.
	ManifestOutput string

	// RegenerateCommand is the command line that re-runs the generator,
	// e.g. the gridforge binary invoked with the same arguments.
	RegenerateCommand string

	// DescriptionFiles lists every description file the loader read,
	// becoming the regenerate statement's dependencies.
	DescriptionFiles []string

	// Diagnostic, if true, dumps each product's resolved environment as a
	// comment above its build statement.
	Diagnostic bool
}

// Write renders products as a complete Ninja manifest to w, per spec.md
// §4.G: one rule per distinct command shape, one build statement per
// product, a regeneration rule, and a MissingInput check before anything
// is written.
func Write(w *Writer, products []engine.Product, opts Options) error {
	if err := checkMissingInputs(products, opts.ProjectRoot); err != nil {
		return err
	}

	w.Comment("generated by gridforge; do not edit by hand")
	w.BlankLine()

	ruleNames := map[string]bool{}
	for _, p := range products {
		ruleNames[p.Command.Rule] = true
	}
	for _, name := range sortedStrings(ruleNames) {
		w.Rule(name, []KV{{Key: "command", Value: "$program $args"}, {Key: "description", Value: name + " $out"}})
		w.BlankLine()
	}

	w.Rule("regenerate", []KV{
		{Key: "command", Value: opts.RegenerateCommand},
		{Key: "generator", Value: "1"},
	})
	w.BlankLine()
	w.Build([]string{opts.ManifestOutput}, "regenerate", sortedCopy(opts.DescriptionFiles), nil)
	w.BlankLine()

	for _, p := range products {
		if opts.Diagnostic {
			w.Comment(fmt.Sprintf("%s (env %s)", p.Owner.TargetID().String(), p.EnvFingerprint.Display()))
			for _, k := range sortedEnvKeys(p.Env) {
				v, _ := p.Env.Raw(k)
				w.Comment(fmt.Sprintf("  %s = %s", k, v.GoString()))
			}
		}

		vars := []KV{
			{Key: "program", Value: quote(p.Command.Program)},
			{Key: "args", Value: quoteJoin(p.Command.Args)},
		}
		for _, k := range sortedMapKeys(p.Command.Variables) {
			vars = append(vars, KV{Key: k, Value: p.Command.Variables[k]})
		}
		if p.Metadata.Restat {
			vars = append(vars, KV{Key: "restat", Value: "1"})
		}
		if p.Metadata.Depfile != "" {
			vars = append(vars, KV{Key: "depfile", Value: quote(p.Metadata.Depfile)})
		}

		w.Build(p.Outputs, p.Command.Rule, p.Inputs, vars)
		w.BlankLine()
	}

	var defaults []string
	for _, p := range products {
		if len(p.Outputs) > 0 {
			defaults = append(defaults, quote(p.Outputs[0]))
		}
	}
	if len(defaults) > 0 {
		w.Default(defaults...)
	}

	return w.Flush()
}

// checkMissingInputs verifies every product input either appears as some
// product's output or exists as a source file under projectRoot.
func checkMissingInputs(products []engine.Product, projectRoot string) error {
	produced := map[string]bool{}
	for _, p := range products {
		for _, out := range p.Outputs {
			produced[out] = true
		}
	}
	for _, p := range products {
		for _, in := range p.Inputs {
			if produced[in] {
				continue
			}
			if _, err := os.Stat(filepath.Join(projectRoot, in)); err == nil {
				continue
			}
			return diag.New(diag.MissingInput, "%s (required by %s) is neither a produced output nor a source file under %s",
				in, p.Owner.TargetID().String(), projectRoot)
		}
	}
	return nil
}

func quoteJoin(args []string) string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = quote(a)
	}
	return joinSpace(out)
}

func joinSpace(in []string) string {
	s := ""
	for i, v := range in {
		if i > 0 {
			s += " "
		}
		s += v
	}
	return s
}

func sortedMapKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func sortedEnvKeys(e interface{ Keys() []string }) []string {
	keys := e.Keys()
	sort.Strings(keys)
	return keys
}
