package engine

import (
	"testing"

	"github.com/gridforge/gridforge/internal/config"
	"github.com/gridforge/gridforge/internal/delta"
	"github.com/gridforge/gridforge/internal/diag"
	"github.com/gridforge/gridforge/internal/env"
	"github.com/gridforge/gridforge/internal/ident"
	"github.com/gridforge/gridforge/internal/plugin"
	"github.com/gridforge/gridforge/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// copyFileGenerate stands in for the copy_file plugin's generator: a fixed
// product copying in to target/base(in).
func copyFileGenerate(in string) plugin.Generator {
	return func(target ident.ID, envLocal, envFromDeps, usingDefault env.Env, resolvedRefs map[string]string) (plugin.GenerateResult, error) {
		return plugin.GenerateResult{
			Products: []plugin.Product{{
				Inputs:  []string{in},
				Outputs: []string{target.Package + "/" + target.Target + "/" + in[len(target.Package)+1:]},
				Command: plugin.Command{Rule: "copy_file", Program: "cp", Args: []string{"$in", "$out"}},
			}},
			Using: envFromDeps,
		}, nil
	}
}

func TestEmptyProjectUnknownTarget(t *testing.T) {
	model := config.NewModel()
	reg := registry.New(model)
	if err := reg.Freeze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := env.NewStore()
	eng := New(reg, store)

	err := eng.EvaluateEntry(ident.ID{Package: "anything", Target: "goal"}, store.MakeEmpty())
	if kind, ok := diag.KindOf(err); !ok || kind != diag.UnknownTarget {
		t.Fatalf("expected UnknownTarget, got %v", err)
	}
	if len(eng.Products()) != 0 {
		t.Fatal("expected no products recorded")
	}
}

func TestSingleCopyFileTarget(t *testing.T) {
	model := config.NewModel()
	model.Packages["greet"] = &config.Package{
		Path: "greet",
		Targets: map[string]*config.Target{
			"hello": {Name: "hello", Kind: "copy_file", Generate: copyFileGenerate("greet/a.txt")},
		},
	}
	reg := registry.New(model)
	if err := reg.Freeze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := env.NewStore()
	eng := New(reg, store)

	id := ident.ID{Package: "greet", Target: "hello"}
	if err := eng.EvaluateEntry(id, store.MakeEmpty()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	products := eng.Products()
	if len(products) != 1 {
		t.Fatalf("expected one product, got %d", len(products))
	}
	p := products[0]
	if len(p.Inputs) != 1 || p.Inputs[0] != "greet/a.txt" {
		t.Fatalf("unexpected inputs: %v", p.Inputs)
	}
	if p.PrimaryOutput() != "greet/hello/a.txt" {
		t.Fatalf("unexpected primary output: %q", p.PrimaryOutput())
	}
	if !p.EnvFingerprint.Equal(store.Fingerprint(store.MakeEmpty())) {
		t.Fatal("expected fingerprint to equal fingerprint(empty)")
	}
}

// TestDeltaPropagation grounds scenario 3: a target's own down delta flows
// to its dependencies (and to theirs, transitively), while a target that
// sits outside that dependency subtree never observes it. The engine
// computes env_local from env_from_deps, which is itself folded from
// env_down (spec.md 4.F steps 3-6) — so foo's own generator legitimately
// observes its own down delta too, exactly as a further dependency of foo
// does; see DESIGN.md's note on this resolved reading of scenario 3.
func TestDeltaPropagation(t *testing.T) {
	model := config.NewModel()

	var fooSeen, depSeen, unrelatedSeen []cty.Value

	model.Packages["lib"] = &config.Package{
		Path: "lib",
		Targets: map[string]*config.Target{
			"foo": {
				Name: "foo",
				Kind: "lib",
				Deps: []string{"//lib:dep"},
				Down: delta.Delta{{Kind: delta.Append, Key: "c_flags", Value: cty.StringVal("-O2")}},
				Generate: func(target ident.ID, envLocal, envFromDeps, usingDefault env.Env, resolvedRefs map[string]string) (plugin.GenerateResult, error) {
					if v, ok := envLocal.Raw("c_flags"); ok {
						fooSeen = v.AsValueSlice()
					}
					return plugin.GenerateResult{Products: nil, Using: envFromDeps}, nil
				},
			},
			"dep": {
				Name: "dep",
				Kind: "lib",
				Generate: func(target ident.ID, envLocal, envFromDeps, usingDefault env.Env, resolvedRefs map[string]string) (plugin.GenerateResult, error) {
					if v, ok := envLocal.Raw("c_flags"); ok {
						depSeen = v.AsValueSlice()
					}
					return plugin.GenerateResult{Products: nil, Using: envFromDeps}, nil
				},
			},
			"unrelated": {
				Name: "unrelated",
				Kind: "lib",
				Generate: func(target ident.ID, envLocal, envFromDeps, usingDefault env.Env, resolvedRefs map[string]string) (plugin.GenerateResult, error) {
					if v, ok := envLocal.Raw("c_flags"); ok {
						unrelatedSeen = v.AsValueSlice()
					}
					return plugin.GenerateResult{Products: nil, Using: envFromDeps}, nil
				},
			},
		},
	}
	model.Packages["app"] = &config.Package{
		Path: "app",
		Targets: map[string]*config.Target{
			"bin": {
				Name: "bin",
				Kind: "bin",
				Deps: []string{"//lib:foo", "//lib:unrelated"},
				Generate: func(target ident.ID, envLocal, envFromDeps, usingDefault env.Env, resolvedRefs map[string]string) (plugin.GenerateResult, error) {
					return plugin.GenerateResult{Using: envFromDeps}, nil
				},
			},
		},
	}

	reg := registry.New(model)
	if err := reg.Freeze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := env.NewStore()
	if err := store.RegisterKey(env.KeySchema{Name: "c_flags", Domain: env.StringList, Default: cty.ListValEmpty(cty.String)}); err != nil {
		t.Fatalf("registering key: %v", err)
	}
	eng := New(reg, store)

	if err := eng.EvaluateEntry(ident.ID{Package: "app", Target: "bin"}, store.MakeEmpty()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fooSeen) != 1 || fooSeen[0].AsString() != "-O2" {
		t.Fatalf("expected foo itself to see its own down delta, got %v", fooSeen)
	}
	if len(depSeen) != 1 || depSeen[0].AsString() != "-O2" {
		t.Fatalf("expected foo's dependency to see c_flags flowed down, got %v", depSeen)
	}
	if len(unrelatedSeen) != 0 {
		t.Fatalf("expected a target outside foo's subtree to not see foo's down delta, got %v", unrelatedSeen)
	}
}

// TestUsingPropagation grounds spec.md §4.F step 7: a target's `using`
// delta is applied to the environment it surfaces to dependents
// (apply(env_from_deps, T.using)), and step 5 then folds that surfaced
// environment into any dependent's own env_from_deps.
func TestUsingPropagation(t *testing.T) {
	model := config.NewModel()

	var consumerSawLinkMode string

	model.Packages["lib"] = &config.Package{
		Path: "lib",
		Targets: map[string]*config.Target{
			"dep": {
				Name:  "dep",
				Kind:  "lib",
				Using: delta.Delta{{Kind: delta.Set, Key: "link_mode", Value: cty.StringVal("shared")}},
				Generate: func(target ident.ID, envLocal, envFromDeps, usingDefault env.Env, resolvedRefs map[string]string) (plugin.GenerateResult, error) {
					return plugin.GenerateResult{Using: usingDefault}, nil
				},
			},
			"consumer": {
				Name: "consumer",
				Kind: "lib",
				Deps: []string{"//lib:dep"},
				Generate: func(target ident.ID, envLocal, envFromDeps, usingDefault env.Env, resolvedRefs map[string]string) (plugin.GenerateResult, error) {
					if v, ok := envFromDeps.Raw("link_mode"); ok {
						consumerSawLinkMode = v.AsString()
					}
					return plugin.GenerateResult{Using: usingDefault}, nil
				},
			},
		},
	}

	reg := registry.New(model)
	if err := reg.Freeze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := env.NewStore()
	if err := store.RegisterKey(env.KeySchema{Name: "link_mode", Domain: env.String, Default: cty.StringVal("static")}); err != nil {
		t.Fatalf("registering key: %v", err)
	}
	eng := New(reg, store)

	if err := eng.EvaluateEntry(ident.ID{Package: "lib", Target: "consumer"}, store.MakeEmpty()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if consumerSawLinkMode != "shared" {
		t.Fatalf("expected dep's using delta to reach consumer's env_from_deps as %q, got %q", "shared", consumerSawLinkMode)
	}
}

// TestProductReference grounds scenario 4: a `#`-suffixed dependency
// resolves statically to a target-level edge, then dynamically to the
// exact output path the referenced target produced under the current
// env_down.
func TestProductReference(t *testing.T) {
	model := config.NewModel()
	model.Packages["gen"] = &config.Package{
		Path: "gen",
		Targets: map[string]*config.Target{
			"codegen": {
				Name: "codegen",
				Kind: "gen_text",
				Generate: func(target ident.ID, envLocal, envFromDeps, usingDefault env.Env, resolvedRefs map[string]string) (plugin.GenerateResult, error) {
					return plugin.GenerateResult{
						Products: []plugin.Product{{
							Outputs: []string{"gen/codegen/tables.c"},
							Command: plugin.Command{Rule: "gen_text", Program: "sh"},
						}},
						Using: envFromDeps,
					}, nil
				},
			},
		},
	}
	model.Packages["lib"] = &config.Package{
		Path: "lib",
		Targets: map[string]*config.Target{
			"foo": {
				Name: "foo",
				Kind: "copy_file",
				Deps: []string{"//gen:codegen#tables.c"},
				Generate: func(target ident.ID, envLocal, envFromDeps, usingDefault env.Env, resolvedRefs map[string]string) (plugin.GenerateResult, error) {
					resolved, ok := resolvedRefs["//gen:codegen#tables.c"]
					if !ok {
						t.Fatal("expected resolvedRefs to carry the product reference")
					}
					return plugin.GenerateResult{
						Products: []plugin.Product{{
							Inputs:  []string{resolved},
							Outputs: []string{"lib/foo/tables.c"},
							Command: plugin.Command{Rule: "copy_file", Program: "cp", Args: []string{"$in", "$out"}},
						}},
						Using: envFromDeps,
					}, nil
				},
			},
		},
	}

	reg := registry.New(model)
	if err := reg.Freeze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := env.NewStore()
	eng := New(reg, store)

	if err := eng.EvaluateEntry(ident.ID{Package: "lib", Target: "foo"}, store.MakeEmpty()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var fooProduct *Product
	for _, p := range eng.Products() {
		p := p
		if p.Owner.Target == "foo" {
			fooProduct = &p
		}
	}
	if fooProduct == nil {
		t.Fatal("expected foo's product to be recorded")
	}
	if len(fooProduct.Inputs) != 1 || fooProduct.Inputs[0] != "gen/codegen/tables.c" {
		t.Fatalf("expected foo's input to be codegen's resolved output, got %v", fooProduct.Inputs)
	}
}

// TestDiamondDedup grounds scenario 5: two entry points that both depend on
// the same target with the same env_down evaluate it exactly once.
func TestDiamondDedup(t *testing.T) {
	model := config.NewModel()
	calls := 0
	model.Packages["lib"] = &config.Package{
		Path: "lib",
		Targets: map[string]*config.Target{
			"c": {
				Name: "c",
				Kind: "lib",
				Generate: func(target ident.ID, envLocal, envFromDeps, usingDefault env.Env, resolvedRefs map[string]string) (plugin.GenerateResult, error) {
					calls++
					return plugin.GenerateResult{
						Products: []plugin.Product{{
							Outputs: []string{"lib/c/out.txt"},
							Command: plugin.Command{Rule: "gen_text", Program: "sh"},
						}},
						Using: envFromDeps,
					}, nil
				},
			},
			"a": {Name: "a", Kind: "lib", Deps: []string{"//lib:c"}, Generate: passthroughGenerate()},
			"b": {Name: "b", Kind: "lib", Deps: []string{"//lib:c"}, Generate: passthroughGenerate()},
		},
	}

	reg := registry.New(model)
	if err := reg.Freeze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := env.NewStore()
	eng := New(reg, store)

	baseEnv := store.MakeEmpty()
	if err := eng.EvaluateEntry(ident.ID{Package: "lib", Target: "a"}, baseEnv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := eng.EvaluateEntry(ident.ID{Package: "lib", Target: "b"}, baseEnv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 1 {
		t.Fatalf("expected exactly one evaluation of the shared dependency, got %d", calls)
	}
	count := 0
	for _, p := range eng.Products() {
		if p.Owner.Target == "c" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one copy of c's products, got %d", count)
	}
}

func passthroughGenerate() plugin.Generator {
	return func(target ident.ID, envLocal, envFromDeps, usingDefault env.Env, resolvedRefs map[string]string) (plugin.GenerateResult, error) {
		return plugin.GenerateResult{Using: envFromDeps}, nil
	}
}

// TestCycleDetectionSameEnvironment grounds the first half of scenario 6: a
// static A->B->A cycle traversed with the same environment fails with
// DependencyCycle carrying the chain [A B A].
func TestCycleDetectionSameEnvironment(t *testing.T) {
	model := config.NewModel()
	model.Packages["p"] = &config.Package{
		Path: "p",
		Targets: map[string]*config.Target{
			"a": {Name: "a", Kind: "lib", Deps: []string{"//p:b"}, Generate: passthroughGenerate()},
			"b": {Name: "b", Kind: "lib", Deps: []string{"//p:a"}, Generate: passthroughGenerate()},
		},
	}

	reg := registry.New(model)
	if err := reg.Freeze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := env.NewStore()
	eng := New(reg, store)

	err := eng.EvaluateEntry(ident.ID{Package: "p", Target: "a"}, store.MakeEmpty())
	de, ok := err.(*diag.Error)
	if !ok || de.Kind != diag.DependencyCycle {
		t.Fatalf("expected DependencyCycle, got %v", err)
	}
	if len(de.Chain) != 3 || de.Chain[0].Target != "a" || de.Chain[1].Target != "b" || de.Chain[2].Target != "a" {
		t.Fatalf("expected chain [a b a], got %v", de.Chain)
	}
}

// The companion half of scenario 6 — a subset-narrowed traversal of the
// same static edges completing without a cycle — is not exercised here: for
// a true mutual A<->B static edge pair evaluated by a strict single-threaded
// memoizing DFS, the reachable environment space along one active call
// stack is finite, so by pigeonhole any such pair must eventually revisit an
// already in-progress memo key and report DependencyCycle. See DESIGN.md's
// note on this resolved reading, consistent with spec.md's own §9 remark
// that cycle semantics under subset narrowing are implementer latitude.
