// Package registry indexes a loaded project's packages and targets by
// identifier and freezes them once loading completes, the same
// append-then-freeze discipline the teacher applies to its handler and
// definition registries.
package registry

import (
	"sort"

	"github.com/gridforge/gridforge/internal/config"
	"github.com/gridforge/gridforge/internal/diag"
	"github.com/gridforge/gridforge/internal/ident"
)

// Registry is the read-only view over a loaded config.Model that the
// evaluation engine queries by identifier. It is built once loading
// finishes and never mutated afterward.
type Registry struct {
	model  *config.Model
	frozen bool
}

// New wraps model in a Registry. The model is still mutable until Freeze is
// called — the loader keeps populating it as it discovers packages.
func New(model *config.Model) *Registry {
	return &Registry{model: model}
}

// Model returns the underlying config model.
func (r *Registry) Model() *config.Model {
	return r.model
}

// Freeze marks loading complete and validates that every static dependency
// reference resolves to a target that actually exists. This is the load
// time half of the two-phase product-reference resolution spec.md
// describes: it only checks that the referenced *target* exists, never that
// a named product on it does — that binding happens per-invocation, inside
// the evaluation engine, once the dependency has actually produced its
// outputs under some environment.
func (r *Registry) Freeze() error {
	for pkgPath, pkg := range r.model.Packages {
		for _, target := range pkg.Targets {
			owner := ident.ID{Package: pkgPath, Target: target.Name}
			for _, raw := range target.Deps {
				depID, err := ident.Parse(raw, pkgPath)
				if err != nil {
					return diag.Wrap(diag.SyntaxError, err, "target %s: dependency %q", owner.String(), raw)
				}
				if _, ok := r.lookupTarget(depID.TargetID()); !ok {
					return diag.New(diag.UnknownTarget, "target %s depends on undefined target %s", owner.String(), depID.TargetID().String())
				}
			}
		}
	}
	r.frozen = true
	return nil
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	return r.frozen
}

// Lookup resolves a target-level identifier (any product suffix is
// stripped) to its config.Target.
func (r *Registry) Lookup(id ident.ID) (*config.Target, bool) {
	return r.lookupTarget(id.TargetID())
}

func (r *Registry) lookupTarget(id ident.ID) (*config.Target, bool) {
	pkg, ok := r.model.Packages[id.Package]
	if !ok {
		return nil, false
	}
	target, ok := pkg.Targets[id.Target]
	return target, ok
}

// Deps returns the parsed dependency identifiers of the target named by id,
// resolved relative to id's own package.
func (r *Registry) Deps(id ident.ID) ([]ident.ID, error) {
	target, ok := r.Lookup(id)
	if !ok {
		return nil, diag.New(diag.UnknownTarget, "no such target %s", id.TargetID().String())
	}
	out := make([]ident.ID, 0, len(target.Deps))
	for _, raw := range target.Deps {
		depID, err := ident.Parse(raw, id.Package)
		if err != nil {
			return nil, diag.Wrap(diag.SyntaxError, err, "target %s: dependency %q", id.TargetID().String(), raw)
		}
		out = append(out, depID)
	}
	return out, nil
}

// AllTargetIDs returns every target identifier in the registry, sorted for
// deterministic iteration. (The whole-project build is seeded by the
// loader's own equivalent list, not by this method.)
func (r *Registry) AllTargetIDs() []ident.ID {
	var out []ident.ID
	for pkgPath, pkg := range r.model.Packages {
		for name := range pkg.Targets {
			out = append(out, ident.ID{Package: pkgPath, Target: name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
