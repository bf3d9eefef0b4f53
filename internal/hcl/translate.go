package hcl

import (
	"fmt"

	"github.com/gridforge/gridforge/internal/config"
	"github.com/gridforge/gridforge/internal/delta"
	"github.com/gridforge/gridforge/internal/env"
	"github.com/gridforge/gridforge/internal/plugin"
	"github.com/gridforge/gridforge/internal/schema"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// translateEnvKey turns one decoded env_key block into an env.KeySchema,
// resolving its domain name and coercing its default expression (evaluated
// as a literal — env_key defaults are never interpolated) to the domain's
// cty type.
func translateEnvKey(blk *schema.EnvKeyBlock) (env.KeySchema, error) {
	dom, err := domainFromString(blk.Domain)
	if err != nil {
		return env.KeySchema{}, fmt.Errorf("env_key %q: %w", blk.Name, err)
	}

	sch := env.KeySchema{Name: blk.Name, Domain: dom, Choices: blk.Choices}

	want := sch.CtyType()
	if blk.Default == nil {
		sch.Default = zeroValue(want)
		return sch, nil
	}

	v, diags := blk.Default.Value(nil)
	if diags.HasErrors() {
		return env.KeySchema{}, fmt.Errorf("env_key %q: evaluating default: %w", blk.Name, diags)
	}
	coerced, err := convert.Convert(v, want)
	if err != nil {
		return env.KeySchema{}, fmt.Errorf("env_key %q: default does not fit domain %s: %w", blk.Name, blk.Domain, err)
	}
	sch.Default = coerced
	return sch, nil
}

func zeroValue(t cty.Type) cty.Value {
	switch {
	case t.Equals(cty.List(cty.String)):
		return cty.ListValEmpty(cty.String)
	case t.Equals(cty.String):
		return cty.StringVal("")
	case t.Equals(cty.Bool):
		return cty.False
	case t.Equals(cty.Number):
		return cty.Zero
	default:
		return cty.NilVal
	}
}

func domainFromString(s string) (env.Domain, error) {
	switch s {
	case "string_list":
		return env.StringList, nil
	case "string_set":
		return env.StringSet, nil
	case "enum":
		return env.Enum, nil
	case "string":
		return env.String, nil
	case "bool":
		return env.Bool, nil
	case "int":
		return env.Int, nil
	default:
		return 0, fmt.Errorf("unknown domain %q", s)
	}
}

// translateDeltaBlock converts a decoded delta block into a delta.Delta,
// coercing each operation's literal value expression against the domain of
// the key schemas registered so far. A nil block translates to an empty
// delta, matching an omitted down/using/local/values block.
func translateDeltaBlock(model *config.Model, blk *schema.DeltaBlock) (delta.Delta, error) {
	if blk == nil {
		return nil, nil
	}
	schemas := schemaIndex(model)

	out := make(delta.Delta, 0, len(blk.Ops))
	for _, opBlk := range blk.Ops {
		op, err := translateOp(schemas, opBlk)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

func schemaIndex(model *config.Model) map[string]env.KeySchema {
	idx := make(map[string]env.KeySchema, len(model.EnvKeys))
	for _, sch := range model.EnvKeys {
		idx[sch.Name] = sch
	}
	return idx
}

func translateOp(schemas map[string]env.KeySchema, blk *schema.OpBlock) (delta.Op, error) {
	kind, err := kindFromString(blk.Kind)
	if err != nil {
		return delta.Op{}, fmt.Errorf("op %q %q: %w", blk.Kind, blk.Key, err)
	}

	if kind == delta.Transform {
		return delta.Op{Kind: kind, Key: blk.Key, TransformName: blk.Transform}, nil
	}

	sch, ok := schemas[blk.Key]
	if !ok {
		return delta.Op{}, fmt.Errorf("op %s %q: references unregistered environment key", blk.Kind, blk.Key)
	}
	if blk.Value == nil {
		return delta.Op{}, fmt.Errorf("op %s %q: missing value", blk.Kind, blk.Key)
	}

	raw, diags := blk.Value.Value(nil)
	if diags.HasErrors() {
		return delta.Op{}, fmt.Errorf("op %s %q: evaluating value: %w", blk.Kind, blk.Key, diags)
	}

	want := operandType(sch, kind)
	coerced, err := convert.Convert(raw, want)
	if err != nil {
		return delta.Op{}, fmt.Errorf("op %s %q: value does not fit: %w", blk.Kind, blk.Key, err)
	}

	return delta.Op{Kind: kind, Key: blk.Key, Value: coerced}, nil
}

// operandType returns the cty.Type an op's value expression must coerce to:
// the key's own type for Set, or its element type for the per-element
// operations.
func operandType(sch env.KeySchema, kind delta.Kind) cty.Type {
	switch kind {
	case delta.Append, delta.Prepend, delta.Remove:
		return sch.CtyType().ElementType()
	default:
		return sch.CtyType()
	}
}

func kindFromString(s string) (delta.Kind, error) {
	switch s {
	case "set":
		return delta.Set, nil
	case "append":
		return delta.Append, nil
	case "prepend":
		return delta.Prepend, nil
	case "remove":
		return delta.Remove, nil
	case "transform":
		return delta.Transform, nil
	default:
		return 0, fmt.Errorf("unknown op kind %q", s)
	}
}

// toDelta converts a plugin.DeltaSpec, the plain-Go-value shape plugins hand
// back through TargetSpec, into a delta.Delta. The two types share field
// names; plugin.Op names its Kind as a string, which is converted here (an
// unknown name panics). This only exists so plugin authors don't have to
// import internal/delta.
func toDelta(spec plugin.DeltaSpec) delta.Delta {
	out := make(delta.Delta, len(spec))
	for i, op := range spec {
		out[i] = delta.Op{
			Kind:          kindFromPluginString(op.Kind),
			Key:           op.Key,
			Value:         op.Value,
			TransformName: op.TransformName,
		}
	}
	return out
}

func kindFromPluginString(s string) delta.Kind {
	k, err := kindFromString(s)
	if err != nil {
		panic("plugin: " + err.Error())
	}
	return k
}

// registrar implements plugin.Registrar against a Loader's kind table and a
// project model's env-key list and transform registry.
type registrar struct {
	loader *Loader
	model  *config.Model
}

func registrarFor(l *Loader, model *config.Model) plugin.Registrar {
	return &registrar{loader: l, model: model}
}

func (r *registrar) RegisterKind(kind string, fn plugin.RegisterFunc) {
	r.loader.kinds[kind] = fn
}

func (r *registrar) RegisterKeySchema(sch env.KeySchema) error {
	for _, existing := range r.model.EnvKeys {
		if existing.Name != sch.Name {
			continue
		}
		if existing.SameShape(sch) {
			return nil
		}
		return fmt.Errorf("environment key %q already registered with a different schema", sch.Name)
	}
	r.model.EnvKeys = append(r.model.EnvKeys, sch)
	return nil
}

func (r *registrar) RegisterTransform(name string, fn func(cty.Value) (cty.Value, error)) {
	r.model.Transforms.Register(name, fn)
}
