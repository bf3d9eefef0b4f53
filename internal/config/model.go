// Package config holds the unified, description-language-agnostic
// representation of a loaded project: the same shape regardless of whether
// it was decoded from HCL or some other embedded surface syntax. The
// loader (internal/loader, internal/hcl) is what produces a Model; the
// registry (internal/registry) and evaluation engine (internal/engine)
// are what consume it.
package config

import (
	"github.com/gridforge/gridforge/internal/delta"
	"github.com/gridforge/gridforge/internal/env"
	"github.com/gridforge/gridforge/internal/plugin"
)

// Model is the project-wide, format-agnostic configuration: every package
// discovered by the loader, the environment-key schemas and named base
// environments declared by the project root, and the plugin module names
// it requested.
type Model struct {
	Packages   map[string]*Package
	EnvKeys    []env.KeySchema
	BaseEnvs   map[string]delta.Delta
	Plugins    []string
	Root       string
	GenRoot    string
	Transforms *delta.TransformRegistry
}

// NewModel returns an empty model ready for packages to be added as the
// loader discovers them.
func NewModel() *Model {
	return &Model{
		Packages:   make(map[string]*Package),
		BaseEnvs:   make(map[string]delta.Delta),
		Transforms: delta.NewTransformRegistry(),
	}
}

// Package is one loaded package: its project-relative path and the targets
// it defines. Packages are created lazily by the loader and never mutated
// once loading completes.
type Package struct {
	Path    string
	Targets map[string]*Target
}

// Target is the format-agnostic representation of one target block: an
// identifier's kind tag, its static dependency list, its three deltas, its
// concreteness requirements, and the generator its plugin registered.
type Target struct {
	Name     string
	Kind     string
	Deps     []string // unresolved identifier strings, as written
	Down     delta.Delta
	Using    delta.Delta
	Local    delta.Delta
	Requires []string
	Generate plugin.Generator

	// CombineDeps, if set, overrides the engine's default last-writer-wins
	// fold of dependency using-environments. The HCL loader never sets it:
	// plugin.TargetSpec has no field through which a plugin could supply one.
	CombineDeps func(deps []env.Env, envDown env.Env) env.Env
}

// Loader is the interface for a format-specific configuration loader — the
// HCL loader in internal/hcl is the only implementation in this module,
// but the split keeps the engine itself free of any dependency on HCL.
type Loader interface {
	// LoadRoot reads and evaluates the project root description file,
	// returning the model seeded with its declared plugins, key schemas,
	// base environments, and root/genroot paths.
	LoadRoot(projectRoot string) (*Model, error)

	// LoadPackage reads and evaluates one package's description file,
	// registering its targets into model.
	LoadPackage(model *Model, pkgPath string) error
}
