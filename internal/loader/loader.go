// Package loader drives project discovery: it decides which packages need
// parsing and in what order, delegating the actual parsing to a
// config.Loader implementation (internal/hcl, in this module). The work
// queue shape is grounded on the teacher's own directory-walking discovery
// pass (internal/engine.DiscoverModules / ResolveGridPath), generalized
// from "walk every .hcl file" to "walk only the packages the requested
// targets actually reach", since a project can be far larger than any one
// build needs to touch.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gridforge/gridforge/internal/config"
	"github.com/gridforge/gridforge/internal/ctxlog"
	"github.com/gridforge/gridforge/internal/diag"
	"github.com/gridforge/gridforge/internal/ident"
)

// Driver walks a project's package graph, loading only what the requested
// targets transitively depend on.
type Driver struct {
	cfg         config.Loader
	projectRoot string
}

// New returns a Driver that delegates parsing to cfg.
func New(cfg config.Loader, projectRoot string) *Driver {
	return &Driver{cfg: cfg, projectRoot: projectRoot}
}

// Load reads the project root, then loads every package reachable from
// requested (identifiers in canonical //pkg:target form). If requested is
// empty, every package under the project root is discovered and loaded —
// the "build everything" fallback.
//
// It returns the fully populated model and the canonical identifiers of the
// requested targets themselves (resolved and validated to exist), in the
// order they were given.
func (d *Driver) Load(ctx context.Context, requested []string) (*config.Model, []ident.ID, error) {
	logger := ctxlog.FromContext(ctx)

	model, err := d.cfg.LoadRoot(d.projectRoot)
	if err != nil {
		return nil, nil, err
	}

	if len(requested) == 0 {
		logger.Debug("no targets requested, discovering every package under project root", "root", d.projectRoot)
		pkgs, err := d.discoverAllPackages()
		if err != nil {
			return nil, nil, err
		}
		for _, pkg := range pkgs {
			if err := d.cfg.LoadPackage(model, pkg); err != nil {
				return nil, nil, err
			}
		}
		return model, allTargetIDs(model), nil
	}

	ids := make([]ident.ID, 0, len(requested))
	queue := make([]string, 0, len(requested))
	queued := map[string]bool{}

	for _, ref := range requested {
		id, err := ident.Parse(ref, "")
		if err != nil {
			return nil, nil, diag.Wrap(diag.SyntaxError, err, "requested target %q", ref)
		}
		ids = append(ids, id)
		if !queued[id.Package] {
			queued[id.Package] = true
			queue = append(queue, id.Package)
		}
	}

	for len(queue) > 0 {
		pkgPath := queue[0]
		queue = queue[1:]

		logger.Debug("loading package", "package", pkgPath)
		if err := d.cfg.LoadPackage(model, pkgPath); err != nil {
			return nil, nil, err
		}

		pkg := model.Packages[pkgPath]
		for _, target := range pkg.Targets {
			for _, raw := range target.Deps {
				depID, err := ident.Parse(raw, pkgPath)
				if err != nil {
					return nil, nil, diag.Wrap(diag.SyntaxError, err, "target //%s:%s dependency %q", pkgPath, target.Name, raw)
				}
				if _, ok := model.Packages[depID.Package]; ok {
					continue
				}
				if queued[depID.Package] {
					continue
				}
				queued[depID.Package] = true
				queue = append(queue, depID.Package)
			}
		}
	}

	for _, id := range ids {
		pkg, ok := model.Packages[id.Package]
		if !ok {
			return nil, nil, diag.New(diag.UnknownTarget, "requested target %s: package not found", id.TargetID().String())
		}
		if _, ok := pkg.Targets[id.Target]; !ok {
			return nil, nil, diag.New(diag.UnknownTarget, "requested target %s: no such target in package", id.TargetID().String())
		}
	}

	return model, ids, nil
}

// discoverAllPackages walks the project root for every directory
// containing a package description file, returning their project-relative
// paths.
func (d *Driver) discoverAllPackages() ([]string, error) {
	var pkgs []string
	err := filepath.WalkDir(d.projectRoot, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if entry.Name() != packageFileName() {
			return nil
		}
		rel, err := filepath.Rel(d.projectRoot, filepath.Dir(path))
		if err != nil {
			return err
		}
		if rel == "." {
			rel = ""
		}
		pkgs = append(pkgs, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering packages under %s: %w", d.projectRoot, err)
	}
	sort.Strings(pkgs)
	return pkgs, nil
}

// packageFileName exists only so this package doesn't have to import
// internal/hcl (and thus HCL itself) just to name a filename constant.
func packageFileName() string {
	return "BUILD.hcl"
}

// allTargetIDs lists every target identifier currently in model, sorted for
// deterministic iteration.
func allTargetIDs(model *config.Model) []ident.ID {
	var out []ident.ID
	for pkgPath, pkg := range model.Packages {
		for name := range pkg.Targets {
			out = append(out, ident.ID{Package: pkgPath, Target: name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
