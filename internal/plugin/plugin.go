// Package plugin declares the contract that target-kind plugins (library,
// binary, copy-file, and the like) satisfy. Individual plugins are external
// collaborators — this package specifies only the shape they must have, not
// any particular plugin's behavior.
package plugin

import (
	"github.com/gridforge/gridforge/internal/env"
	"github.com/gridforge/gridforge/internal/ident"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Config is the raw, plugin-specific configuration for one target
// instance: deps and the local, down and using blocks have already been
// consumed by the loader, and Options carries the sources expression (when
// present) plus whatever attributes remain, unevaluated, for the plugin to
// interpret in whatever way its own kind requires. The loader does not
// recognize an `extra` block as another name for `down`.
type Config struct {
	Name    string
	Options map[string]hcl.Expression
}

// Product is one concrete build step a target's generator emits.
type Product struct {
	// Env is the environment this product was narrowed to via env.Subset
	// before being handed back — only the keys the plugin cares about.
	Env env.Env

	Inputs  []string
	Outputs []string

	Command  Command
	Metadata Metadata
}

// Command is the concrete invocation a product represents.
type Command struct {
	Rule      string
	Program   string
	Args      []string
	Variables map[string]string
}

// Metadata carries optional per-product hints consumed by the manifest
// emitter.
type Metadata struct {
	Restat  bool
	Depfile string
}

// GenerateResult is what a target's product generator returns: the
// products it produced, narrowed to the keys they need, and the
// using-environment to surface to dependents. The generator computes Using
// last, since it is allowed to reference the target's own outputs.
type GenerateResult struct {
	Products []Product
	Using    env.Env
}

// Generator produces a target's own products from its local environment.
// EnvFromDeps is the pre-`using` folded environment, so a generator that
// wants to compute Using itself (rather than let the engine apply
// T.Using as a plain delta) has access to the same starting point the
// engine used.
//
// UsingDefault is apply(envFromDeps, T.using) — the engine has already
// applied the target's own `using` delta on its behalf. A generator that
// does not need `using` to see its own outputs just returns UsingDefault
// unchanged as GenerateResult.Using; one that does (e.g. a `using` value
// referencing a product path this generator is about to compute) starts
// from UsingDefault and layers its own adjustments on top before
// returning.
//
// ResolvedRefs carries the dynamic half of product-reference resolution: for
// every `#`-suffixed dependency this target declared, keyed by the
// dependency's canonical identifier text (ident.ID.String()), the concrete
// output path the referenced target actually produced in this target's
// env_down. A generator whose sources option contains such a reference
// parses it with internal/ident and looks up the resolved path here rather
// than trying to compute it itself.
type Generator func(target ident.ID, envLocal env.Env, envFromDeps env.Env, usingDefault env.Env, resolvedRefs map[string]string) (GenerateResult, error)

// RegisterFunc is what a plugin exposes to the sandboxed description
// evaluator: given a target name and its raw configuration, it registers a
// target (with its Generator) via the callback the loader provides.
type RegisterFunc func(name string, cfg Config, emit EmitFunc) error

// EmitFunc is the callback a plugin invokes to register the target it just
// built in the package currently being loaded.
type EmitFunc func(TargetSpec) error

// TargetSpec is what a plugin hands back to the loader to register a
// target: everything spec.md's Target holds except the identifier, which
// the loader assigns from the current package and the plugin-supplied name.
type TargetSpec struct {
	Kind      string
	Deps      []string // unresolved identifier strings
	Down      DeltaSpec
	Using     DeltaSpec
	Local     DeltaSpec
	Requires  []string // environment keys this target needs a real value for to be concrete
	Generator Generator
}

// DeltaSpec is a thin alias kept in this package so plugin authors don't
// need to import internal/delta directly for the common case; the loader
// converts it to a delta.Delta when registering the target.
type DeltaSpec = []Op

// Op mirrors delta.Op's shape with Kind given by name, so plugins need not
// import internal/delta; Value is still a cty.Value, so a plugin that sets
// or appends a value imports cty to build it.
type Op struct {
	Kind          string // "set", "append", "prepend", "remove", "transform"
	Key           string
	Value         cty.Value
	TransformName string
}

// Module is the interface every plugin package implements to register its
// kind functions with a registry during project loading.
type Module interface {
	Register(r Registrar)
}

// Registrar is the subset of the target registry a plugin needs: the
// ability to register a kind function and to register environment key
// schemas and transforms it depends on.
type Registrar interface {
	RegisterKind(kind string, fn RegisterFunc)
	RegisterKeySchema(schema env.KeySchema) error
	RegisterTransform(name string, fn func(cty.Value) (cty.Value, error))
}
