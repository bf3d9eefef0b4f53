package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gridforge/gridforge/internal/config"
	"github.com/gridforge/gridforge/internal/diag"
)

// fakeLoader implements config.Loader over an in-memory package table, so
// the work-queue logic in Driver.Load can be tested without going through
// HCL parsing.
type fakeLoader struct {
	pkgs map[string]*config.Package
}

func (f *fakeLoader) LoadRoot(projectRoot string) (*config.Model, error) {
	return config.NewModel(), nil
}

func (f *fakeLoader) LoadPackage(model *config.Model, pkgPath string) error {
	pkg, ok := f.pkgs[pkgPath]
	if !ok {
		return diag.New(diag.UnknownTarget, "no such package %q", pkgPath)
	}
	model.Packages[pkgPath] = pkg
	return nil
}

func TestLoadFollowsRequestedTargetDependencies(t *testing.T) {
	fl := &fakeLoader{pkgs: map[string]*config.Package{
		"lib": {Path: "lib", Targets: map[string]*config.Target{
			"foo": {Name: "foo", Deps: []string{"//gen:codegen"}},
		}},
		"gen": {Path: "gen", Targets: map[string]*config.Target{
			"codegen": {Name: "codegen"},
		}},
		"unrelated": {Path: "unrelated", Targets: map[string]*config.Target{
			"bar": {Name: "bar"},
		}},
	}}

	d := New(fl, "/irrelevant")
	model, ids, err := d.Load(context.Background(), []string{"//lib:foo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0].Package != "lib" || ids[0].Target != "foo" {
		t.Fatalf("unexpected entry ids: %v", ids)
	}
	if _, ok := model.Packages["gen"]; !ok {
		t.Fatal("expected transitive dependency package \"gen\" to be loaded")
	}
	if _, ok := model.Packages["unrelated"]; ok {
		t.Fatal("expected unrelated package to not be loaded")
	}
}

func TestLoadFailsOnUnknownRequestedTarget(t *testing.T) {
	fl := &fakeLoader{pkgs: map[string]*config.Package{
		"lib": {Path: "lib", Targets: map[string]*config.Target{}},
	}}

	d := New(fl, "/irrelevant")
	_, _, err := d.Load(context.Background(), []string{"//lib:nope"})
	if kind, ok := diag.KindOf(err); !ok || kind != diag.UnknownTarget {
		t.Fatalf("expected UnknownTarget, got %v", err)
	}
}

func TestLoadDiscoversEveryPackageWhenNoneRequested(t *testing.T) {
	root := t.TempDir()
	for _, pkg := range []string{"a", "b/c"} {
		dir := filepath.Join(root, pkg)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "BUILD.hcl"), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	fl := &fakeLoader{pkgs: map[string]*config.Package{
		"a":   {Path: "a", Targets: map[string]*config.Target{"x": {Name: "x"}}},
		"b/c": {Path: "b/c", Targets: map[string]*config.Target{"y": {Name: "y"}}},
	}}

	d := New(fl, root)
	model, ids, err := d.Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(model.Packages) != 2 {
		t.Fatalf("expected both packages discovered, got %v", model.Packages)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 entry ids covering every target, got %v", ids)
	}
}
