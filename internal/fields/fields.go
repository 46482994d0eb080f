// Package fields evaluates admin-defined derived fields over CRM records.
//
// Derived fields are CEL expressions computed from the flat record before
// rules and scoring components see it, e.g. a usage ratio from two raw
// fields or a normalized engagement score from enrichment output. The rule
// language itself stays a flat field/operator/value interpreter; CEL is
// confined to this preprocessing stage.
package fields

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-crm/kestrel/internal/domain"
)

// Mapper holds compiled derived-field programs for one scoring config.
type Mapper struct {
	env      *cel.Env
	programs []compiledField
}

type compiledField struct {
	name    string
	program cel.Program
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// NewMapper compiles the derived-field expressions. Compilation errors
// surface here so the admin API can reject a bad expression at save time.
func NewMapper(defs []domain.DerivedField) (*Mapper, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	m := &Mapper{env: env}
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("%w: derived field name is required", domain.ErrInvalidConfig)
		}
		prog, err := compile(env, def)
		if err != nil {
			return nil, err
		}
		m.programs = append(m.programs, compiledField{name: def.Name, program: prog})
	}
	return m, nil
}

// Validate compile-checks a single derived field without building a mapper.
func Validate(def domain.DerivedField) error {
	env, err := newEnv()
	if err != nil {
		return fmt.Errorf("failed to create CEL environment: %w", err)
	}
	_, err = compile(env, def)
	return err
}

func compile(env *cel.Env, def domain.DerivedField) (cel.Program, error) {
	ast, issues := env.Compile(def.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile derived field %s: %w", def.Name, issues.Err())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for derived field %s: %w", def.Name, err)
	}
	return prog, nil
}

// Apply evaluates every derived field against the record and returns a copy
// with the computed values merged in. Evaluation errors on one field (a
// missing input, a type mismatch) skip that field only; derived fields
// follow the same partial-failure tolerance as the rest of the engine.
func (m *Mapper) Apply(record domain.Record) domain.Record {
	if len(m.programs) == 0 {
		return record
	}

	out := record.Clone()
	activation := map[string]any{"record": map[string]any(record)}

	for _, cf := range m.programs {
		val, _, err := cf.program.Eval(activation)
		if err != nil {
			continue
		}
		if native, ok := toNative(val); ok {
			out[cf.name] = native
		}
	}
	return out
}

// toNative converts a CEL value to a record scalar.
func toNative(val ref.Val) (any, bool) {
	switch v := val.(type) {
	case types.Bool:
		return bool(v), true
	case types.Double:
		return float64(v), true
	case types.Int:
		return float64(v), true
	case types.Uint:
		return float64(v), true
	case types.String:
		return string(v), true
	case types.Null:
		return nil, false
	default:
		return nil, false
	}
}
