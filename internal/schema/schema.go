// Package schema holds the HCL-specific struct tags the loader decodes
// description files into, before translating them into the format-agnostic
// internal/config model. Keeping this split (mirrored from the teacher's
// own schema/config separation) means the evaluation engine never imports
// HCL at all.
package schema

import "github.com/hashicorp/hcl/v2"

// ProjectConfig is the top-level structure of the project root description
// file: it registers plugins, environment-key schemas, named base
// environments, and optionally overrides the project/genroot paths.
type ProjectConfig struct {
	Plugins  []string        `hcl:"plugins,optional"`
	EnvKeys  []*EnvKeyBlock  `hcl:"env_key,block"`
	BaseEnvs []*BaseEnvBlock `hcl:"base_env,block"`
	Root     string          `hcl:"root,optional"`
	GenRoot  string          `hcl:"genroot,optional"`
	Body     hcl.Body        `hcl:",remain"`
}

// EnvKeyBlock declares one registered environment key.
type EnvKeyBlock struct {
	Name    string         `hcl:"name,label"`
	Domain  string         `hcl:"domain"`
	Choices []string       `hcl:"choices,optional"`
	Default hcl.Expression `hcl:"default,optional"`
}

// BaseEnvBlock declares one named base environment as a sequence of delta
// operations applied to the empty environment.
type BaseEnvBlock struct {
	Name   string      `hcl:"name,label"`
	Values *DeltaBlock `hcl:"values,block"`
}

// PackageConfig is the top-level structure of a per-package description
// file: the rule blocks it defines.
type PackageConfig struct {
	Rules []*Rule  `hcl:"rule,block"`
	Body  hcl.Body `hcl:",remain"`
}

// Rule is a `rule "kind" "name" { ... }` block, the two-label shape mirrored
// from the teacher's `step "runner_type" "instance_name" { ... }`.
type Rule struct {
	Kind    string         `hcl:"kind,label"`
	Name    string         `hcl:"name,label"`
	Sources hcl.Expression `hcl:"sources,optional"`
	Deps    []string       `hcl:"deps,optional"`
	Down    *DeltaBlock    `hcl:"down,block"`
	Using   *DeltaBlock    `hcl:"using,block"`
	Local   *DeltaBlock    `hcl:"local,block"`
	Body    hcl.Body       `hcl:",remain"`
}

// DeltaBlock holds a sequence of `op "kind" "key" { value = ... }`
// sub-blocks: the HCL-facing rendering of a delta.Delta.
type DeltaBlock struct {
	Ops []*OpBlock `hcl:"op,block"`
}

// OpBlock is one operation within a delta block.
type OpBlock struct {
	Kind      string         `hcl:"kind,label"`
	Key       string         `hcl:"key,label"`
	Value     hcl.Expression `hcl:"value,optional"`
	Transform string         `hcl:"transform,optional"`
}
