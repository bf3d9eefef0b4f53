// Package hcl is the concrete, HCL-backed implementation of
// internal/config.Loader: it parses the project root file and per-package
// BUILD files with github.com/hashicorp/hcl/v2, and translates the decoded
// schema structs into the format-agnostic internal/config model.
package hcl

import (
	"fmt"
	"path/filepath"

	"github.com/gridforge/gridforge/internal/config"
	"github.com/gridforge/gridforge/internal/diag"
	"github.com/gridforge/gridforge/internal/plugin"
	"github.com/gridforge/gridforge/internal/schema"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

const (
	// RootFileName is the project root description file's name.
	RootFileName = "project.hcl"
	// PackageFileName is a package description file's name.
	PackageFileName = "BUILD.hcl"
)

// Loader decodes project and package description files. It also holds the
// table of compiled-in plugin modules a project may reference by name from
// its `plugins` list, since this module has no dynamic plugin-loading
// mechanism — plugins are Go packages linked into the binary, matching the
// teacher's own `coreModules []registry.Module` convention.
type Loader struct {
	projectRoot string
	modules     map[string]plugin.Module
	kinds       map[string]plugin.RegisterFunc
	parser      *hclparse.Parser
	filesRead   []string
}

// NewLoader returns a Loader rooted at projectRoot, with the given
// compiled-in modules available for a project to request by name.
func NewLoader(projectRoot string, modules map[string]plugin.Module) *Loader {
	return &Loader{
		projectRoot: projectRoot,
		modules:     modules,
		kinds:       make(map[string]plugin.RegisterFunc),
		parser:      hclparse.NewParser(),
	}
}

// FilesRead returns every description file this loader has parsed so far,
// used by the manifest emitter to build the regeneration rule.
func (l *Loader) FilesRead() []string {
	out := make([]string, len(l.filesRead))
	copy(out, l.filesRead)
	return out
}

// LoadRoot implements config.Loader.
func (l *Loader) LoadRoot(projectRoot string) (*config.Model, error) {
	path := filepath.Join(projectRoot, RootFileName)
	body, err := l.parseFile(path)
	if err != nil {
		return nil, err
	}

	var pc schema.ProjectConfig
	if diags := gohcl.DecodeBody(body, nil, &pc); diags.HasErrors() {
		return nil, diag.Wrap(diag.DescriptionEvaluationError, diags, "decoding %s", path)
	}

	model := config.NewModel()
	model.Plugins = pc.Plugins
	model.Root = pc.Root
	model.GenRoot = pc.GenRoot

	for _, name := range pc.Plugins {
		mod, ok := l.modules[name]
		if !ok {
			return nil, diag.New(diag.DescriptionEvaluationError, "project references unknown plugin module %q", name)
		}
		mod.Register(registrarFor(l, model))
	}

	for _, blk := range pc.EnvKeys {
		sch, err := translateEnvKey(blk)
		if err != nil {
			return nil, diag.Wrap(diag.DescriptionEvaluationError, err, "env_key %q in %s", blk.Name, path)
		}
		model.EnvKeys = append(model.EnvKeys, sch)
	}

	for _, blk := range pc.BaseEnvs {
		d, err := translateDeltaBlock(model, blk.Values)
		if err != nil {
			return nil, diag.Wrap(diag.DescriptionEvaluationError, err, "base_env %q in %s", blk.Name, path)
		}
		model.BaseEnvs[blk.Name] = d
	}

	return model, nil
}

// LoadPackage implements config.Loader.
func (l *Loader) LoadPackage(model *config.Model, pkgPath string) error {
	if _, ok := model.Packages[pkgPath]; ok {
		return nil
	}
	path := filepath.Join(l.projectRoot, pkgPath, PackageFileName)
	body, err := l.parseFile(path)
	if err != nil {
		return err
	}

	var pkgCfg schema.PackageConfig
	if diags := gohcl.DecodeBody(body, nil, &pkgCfg); diags.HasErrors() {
		return diag.Wrap(diag.DescriptionEvaluationError, diags, "decoding %s", path)
	}

	pkg := &config.Package{Path: pkgPath, Targets: make(map[string]*config.Target)}
	model.Packages[pkgPath] = pkg

	seen := make(map[string]bool)
	for _, rule := range pkgCfg.Rules {
		if seen[rule.Name] {
			return diag.New(diag.DuplicateTarget, "duplicate target %q in package %q", rule.Name, pkgPath)
		}
		seen[rule.Name] = true

		if err := l.emitTarget(model, pkg, rule); err != nil {
			return diag.Wrap(diag.DescriptionEvaluationError, err, "rule %q %q in %s", rule.Kind, rule.Name, path)
		}
	}
	return nil
}

func (l *Loader) emitTarget(model *config.Model, pkg *config.Package, rule *schema.Rule) error {
	fn, ok := l.kinds[rule.Kind]
	if !ok {
		return diag.New(diag.DescriptionEvaluationError, "no plugin registered target kind %q", rule.Kind)
	}

	down, err := translateDeltaBlock(model, rule.Down)
	if err != nil {
		return err
	}
	using, err := translateDeltaBlock(model, rule.Using)
	if err != nil {
		return err
	}
	local, err := translateDeltaBlock(model, rule.Local)
	if err != nil {
		return err
	}

	options := map[string]hcl.Expression{}
	if rule.Sources != nil {
		options["sources"] = rule.Sources
	}
	if rule.Body != nil {
		if attrs, diags := rule.Body.JustAttributes(); !diags.HasErrors() {
			for name, attr := range attrs {
				options[name] = attr.Expr
			}
		}
	}

	target := &config.Target{
		Name:  rule.Name,
		Kind:  rule.Kind,
		Deps:  rule.Deps,
		Down:  down,
		Using: using,
		Local: local,
	}

	emit := func(spec plugin.TargetSpec) error {
		target.Kind = spec.Kind
		target.Deps = append(target.Deps, spec.Deps...)
		target.Down = append(target.Down, toDelta(spec.Down)...)
		target.Using = append(target.Using, toDelta(spec.Using)...)
		target.Local = append(target.Local, toDelta(spec.Local)...)
		target.Requires = spec.Requires
		target.Generate = spec.Generator
		return nil
	}

	if err := fn(rule.Name, plugin.Config{Name: rule.Name, Options: options}, emit); err != nil {
		return fmt.Errorf("plugin for kind %q rejected target %q: %w", rule.Kind, rule.Name, err)
	}
	if target.Generate == nil {
		return fmt.Errorf("plugin for kind %q did not register a product generator for %q", rule.Kind, rule.Name)
	}

	pkg.Targets[rule.Name] = target
	return nil
}

func (l *Loader) parseFile(path string) (hcl.Body, error) {
	file, diags := l.parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, diag.Wrap(diag.DescriptionEvaluationError, diags, "parsing %s", path)
	}
	l.filesRead = append(l.filesRead, path)
	return file.Body, nil
}
