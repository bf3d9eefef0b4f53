// Package engine implements the memoizing evaluation fixpoint that drives
// abstract targets down to concrete products. It is grounded on the
// teacher's dependency-resolution walk (internal/executor's "visit deps,
// fold results, then run" shape) and its DAG cycle detector
// (internal/dag.dag's mutex-guarded map and DFS), adapted here to a
// single-threaded memo keyed by (target identifier, environment
// fingerprint) rather than a plain visited-set, since the same target can
// legitimately appear twice in one build under two different environments.
package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gridforge/gridforge/internal/config"
	"github.com/gridforge/gridforge/internal/delta"
	"github.com/gridforge/gridforge/internal/diag"
	"github.com/gridforge/gridforge/internal/env"
	"github.com/gridforge/gridforge/internal/ident"
	"github.com/gridforge/gridforge/internal/plugin"
	"github.com/gridforge/gridforge/internal/registry"
)

// Product is the fully-resolved record the manifest emitter consumes: a
// plugin's own Product, tagged with the identity spec.md defines —
// originating target, environment fingerprint, and (implicitly) its
// primary output path.
type Product struct {
	Owner          ident.ID
	EnvFingerprint env.Fingerprint
	plugin.Product
}

// PrimaryOutput is the first entry of Outputs, which together with Owner
// and EnvFingerprint forms a product's identity.
func (p Product) PrimaryOutput() string {
	if len(p.Outputs) == 0 {
		return ""
	}
	return p.Outputs[0]
}

type memoState int

const (
	pending memoState = iota
	inProgress
	done
)

type memoKey struct {
	id ident.ID
	fp env.Fingerprint
}

type memoEntry struct {
	state  memoState
	result plugin.GenerateResult
	err    error
}

// Engine evaluates a frozen registry's targets against a store's schemas.
type Engine struct {
	reg   *registry.Registry
	store *env.Store

	memo  map[memoKey]*memoEntry
	chain []ident.ID

	products map[string]Product
}

// New returns an Engine over reg, whose environment operations are
// performed against store.
func New(reg *registry.Registry, store *env.Store) *Engine {
	return &Engine{
		reg:      reg,
		store:    store,
		memo:     make(map[memoKey]*memoEntry),
		products: make(map[string]Product),
	}
}

// EvaluateEntry runs one requested (necessarily concrete) target as an
// evaluation entry point against baseEnv, the project's base environment.
func (e *Engine) EvaluateEntry(id ident.ID, baseEnv env.Env) error {
	target, ok := e.reg.Lookup(id)
	if !ok {
		return diag.New(diag.UnknownTarget, "requested target %s does not exist", id.TargetID().String())
	}
	if err := e.checkConcrete(id, target, baseEnv); err != nil {
		return err
	}
	_, err := e.evaluate(id.TargetID(), baseEnv)
	return err
}

// Products returns every unique product accumulated so far, in the
// deterministic order spec.md requires: target identifier, then
// environment fingerprint, then primary output path.
func (e *Engine) Products() []Product {
	out := make([]Product, 0, len(e.products))
	for _, p := range e.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Owner.TargetID().String() != b.Owner.TargetID().String() {
			return a.Owner.TargetID().String() < b.Owner.TargetID().String()
		}
		if !a.EnvFingerprint.Equal(b.EnvFingerprint) {
			return a.EnvFingerprint.String() < b.EnvFingerprint.String()
		}
		return a.PrimaryOutput() < b.PrimaryOutput()
	})
	return out
}

func (e *Engine) checkConcrete(id ident.ID, target *config.Target, baseEnv env.Env) error {
	for _, key := range target.Requires {
		if !baseEnv.Has(key) {
			return diag.New(diag.NotConcrete, "target %s requires a value for %q not supplied by the base environment", id.TargetID().String(), key)
		}
	}
	return nil
}

// evaluate is the memoizing fixpoint for the pair (id, envIn); id must
// already have any product suffix stripped.
func (e *Engine) evaluate(id ident.ID, envIn env.Env) (plugin.GenerateResult, error) {
	fp := e.store.Fingerprint(envIn)
	key := memoKey{id: id, fp: fp}

	if entry, ok := e.memo[key]; ok {
		switch entry.state {
		case inProgress:
			return plugin.GenerateResult{}, e.cycleError(id)
		default:
			return entry.result, entry.err
		}
	}

	entry := &memoEntry{state: inProgress}
	e.memo[key] = entry
	e.chain = append(e.chain, id)

	result, err := e.evaluateUncached(id, envIn, fp)

	e.chain = e.chain[:len(e.chain)-1]
	entry.state = done
	entry.result = result
	entry.err = err
	return result, err
}

func (e *Engine) cycleError(id ident.ID) error {
	chain := append(append([]ident.ID{}, e.chain...), id)
	d := &diag.Error{Kind: diag.DependencyCycle, Message: fmt.Sprintf("evaluation re-entered %s while it was still in progress", id.TargetID().String()), Chain: chain}
	return d
}

func (e *Engine) evaluateUncached(id ident.ID, envIn env.Env, fp env.Fingerprint) (plugin.GenerateResult, error) {
	target, ok := e.reg.Lookup(id)
	if !ok {
		return plugin.GenerateResult{}, diag.New(diag.UnknownTarget, "target %s does not exist", id.TargetID().String())
	}

	envDown, err := e.store.Apply(envIn, target.Down)
	if err != nil {
		return plugin.GenerateResult{}, e.enrich(err, id, fp)
	}

	depRefs, err := e.resolveDeps(id, target)
	if err != nil {
		return plugin.GenerateResult{}, e.enrich(err, id, fp)
	}

	usingEnvs := make([]env.Env, 0, len(depRefs))
	resolvedRefs := make(map[string]string)

	for _, dep := range depRefs {
		depResult, err := e.evaluate(dep.TargetID(), envDown)
		if err != nil {
			return plugin.GenerateResult{}, err
		}
		usingEnvs = append(usingEnvs, depResult.Using)

		if dep.Product != "" {
			path, err := findProductOutput(depResult.Products, dep.Product)
			if err != nil {
				return plugin.GenerateResult{}, e.enrich(diag.New(diag.UnknownProduct, "target %s: %v", id.TargetID().String(), err), id, fp)
			}
			resolvedRefs[dep.String()] = path
		}
	}

	envFromDeps, err := e.foldUsing(envDown, usingEnvs, target)
	if err != nil {
		return plugin.GenerateResult{}, e.enrich(err, id, fp)
	}

	envLocal, err := e.store.Apply(envFromDeps, target.Local)
	if err != nil {
		return plugin.GenerateResult{}, e.enrich(err, id, fp)
	}

	usingDefault, err := e.store.Apply(envFromDeps, target.Using)
	if err != nil {
		return plugin.GenerateResult{}, e.enrich(err, id, fp)
	}

	if target.Generate == nil {
		return plugin.GenerateResult{}, e.enrich(diag.New(diag.DescriptionEvaluationError, "target %s has no product generator", id.TargetID().String()), id, fp)
	}

	result, err := target.Generate(id, envLocal, envFromDeps, usingDefault, resolvedRefs)
	if err != nil {
		return plugin.GenerateResult{}, e.enrich(diag.Wrap(diag.DescriptionEvaluationError, err, "generating products for %s", id.TargetID().String()), id, fp)
	}

	for _, p := range result.Products {
		if err := e.record(id, fp, p); err != nil {
			return plugin.GenerateResult{}, e.enrich(err, id, fp)
		}
	}

	return result, nil
}

// resolveDeps parses target's raw dependency strings against id's package,
// collapsing duplicates by canonical form while preserving first-seen
// declared order.
func (e *Engine) resolveDeps(id ident.ID, target *config.Target) ([]ident.ID, error) {
	seen := make(map[string]bool, len(target.Deps))
	out := make([]ident.ID, 0, len(target.Deps))
	for _, raw := range target.Deps {
		parsed, err := ident.Parse(raw, id.Package)
		if err != nil {
			return nil, diag.Wrap(diag.SyntaxError, err, "target %s: dependency %q", id.TargetID().String(), raw)
		}
		if seen[parsed.String()] {
			continue
		}
		seen[parsed.String()] = true
		out = append(out, parsed)
	}
	return out, nil
}

// foldUsing implements the default dependency-combine fold: each
// dependency's using-environment is applied, key by key, as a Set operation
// wherever its value differs from the corresponding lookup in the original
// env_down — not the accumulator as it evolves — matching the literal fold
// definition in spec.md §4.F step 5. A target may replace this with its own
// CombineDeps hook.
func (e *Engine) foldUsing(envDown env.Env, usingEnvs []env.Env, target *config.Target) (env.Env, error) {
	if target.CombineDeps != nil {
		return target.CombineDeps(usingEnvs, envDown), nil
	}

	cur := envDown
	for _, using := range usingEnvs {
		var diffs delta.Delta
		for _, key := range sortedKeys(using) {
			v, ok := using.Raw(key)
			if !ok {
				continue
			}
			baseline := e.store.Lookup(envDown, key)
			if baseline.RawEquals(v) {
				continue
			}
			diffs = append(diffs, delta.Op{Kind: delta.Set, Key: key, Value: v})
		}
		if len(diffs) == 0 {
			continue
		}
		next, err := e.store.Apply(cur, diffs)
		if err != nil {
			return env.Env{}, err
		}
		cur = next
	}
	return cur, nil
}

func sortedKeys(e env.Env) []string {
	keys := e.Keys()
	sort.Strings(keys)
	return keys
}

// findProductOutput locates the concrete output path a dependency's
// products produced matching a `#name` product reference. A match is an
// output path equal to name, or ending in "/name" — accommodating both
// package-root and nested output paths.
func findProductOutput(products []plugin.Product, name string) (string, error) {
	for _, p := range products {
		for _, out := range p.Outputs {
			if out == name || strings.HasSuffix(out, "/"+name) {
				return out, nil
			}
		}
	}
	return "", fmt.Errorf("no product output matches %q", name)
}

// record inserts p into the global product set under its identity
// (owner, fingerprint, primary output). An identity collision with
// differing content is DuplicateProduct; an identical duplicate is a silent
// no-op (the diamond-dedup case).
func (e *Engine) record(owner ident.ID, fp env.Fingerprint, p plugin.Product) error {
	rec := Product{Owner: owner, EnvFingerprint: fp, Product: p}
	primary := rec.PrimaryOutput()
	key := owner.TargetID().String() + "|" + fp.String() + "|" + primary

	existing, ok := e.products[key]
	if !ok {
		e.products[key] = rec
		return nil
	}
	if !productsEqual(existing, rec) {
		return diag.New(diag.DuplicateProduct, "product %s (env %s, output %s) was already produced with different contents", owner.TargetID().String(), fp.Display(), primary)
	}
	return nil
}

func productsEqual(a, b Product) bool {
	if len(a.Inputs) != len(b.Inputs) || len(a.Outputs) != len(b.Outputs) {
		return false
	}
	for i := range a.Inputs {
		if a.Inputs[i] != b.Inputs[i] {
			return false
		}
	}
	for i := range a.Outputs {
		if a.Outputs[i] != b.Outputs[i] {
			return false
		}
	}
	if a.Command.Rule != b.Command.Rule || a.Command.Program != b.Command.Program {
		return false
	}
	if len(a.Command.Args) != len(b.Command.Args) {
		return false
	}
	for i := range a.Command.Args {
		if a.Command.Args[i] != b.Command.Args[i] {
			return false
		}
	}
	return a.Metadata == b.Metadata
}

// enrich attaches the current dependency chain and environment fingerprint
// to an error as it unwinds, if it is one of ours; foreign errors pass
// through unchanged.
func (e *Engine) enrich(err error, id ident.ID, fp env.Fingerprint) error {
	de, ok := err.(*diag.Error)
	if !ok {
		return err
	}
	cp := *de
	if len(cp.Chain) == 0 {
		cp.Chain = append([]ident.ID{}, e.chain...)
		if len(cp.Chain) == 0 {
			cp.Chain = []ident.ID{id}
		}
	}
	if cp.EnvFingerprint == "" {
		cp.EnvFingerprint = fp.Display()
	}
	return &cp
}
