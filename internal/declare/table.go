// Package declare loads retry declaration tables and applies them to the engine.
//
// A table lists custom categories, named executors, type declarations and method
// declarations:
//
//	categories:
//	  - {name: rate_limited, parent: io}
//	executors:
//	  - name: aggressive
//	    mode: exponential_backoff
//	    max_attempts: 8
//	types:
//	  - type: store.Reader
//	    policy: {mode: fixed_delay, fixed_delay_ms: 50}
//	methods:
//	  - {type: store.Reader, name: Get, params: [string], returns: single, policy: {executor: aggressive}}
//	  - {type: store.Reader, name: Ping, returns: single, recover: true}
package declare

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"streamretry/internal/shared"
	"streamretry/pkg/retry"
)

// Table is a set of declarations as read from a policy file or the catalog.
type Table struct {
	Categories []CategoryRow `yaml:"categories,omitempty" validate:"dive"`
	Executors  []ExecutorRow `yaml:"executors,omitempty" validate:"dive"`
	Types      []TypeRow     `yaml:"types,omitempty" validate:"dive"`
	Methods    []MethodRow   `yaml:"methods,omitempty" validate:"dive"`
}

// CategoryRow defines a custom failure category under an existing parent.
type CategoryRow struct {
	Name   string `yaml:"name" validate:"required"`
	Parent string `yaml:"parent" validate:"required"`
}

// ExecutorRow declares a named executor built from a policy.
type ExecutorRow struct {
	Name   string `yaml:"name" validate:"required"`
	Policy Policy `yaml:",inline"`
}

// UnmarshalYAML applies policy defaults; inlined fields bypass Policy.UnmarshalYAML.
func (r *ExecutorRow) UnmarshalYAML(unmarshal func(any) error) error {
	type plain ExecutorRow
	v := plain{Policy: DefaultPolicy()}
	if err := unmarshal(&v); err != nil {
		return err
	}
	*r = ExecutorRow(v)
	return nil
}

// TypeRow declares a policy for every method of a type.
type TypeRow struct {
	Type    string  `yaml:"type" validate:"required"`
	Recover bool    `yaml:"recover,omitempty"`
	Policy  *Policy `yaml:"policy,omitempty"`
}

// MethodRow declares a method. Without a policy or recover flag the method is only
// registered, so that concrete-type lookups can find it.
type MethodRow struct {
	Type    string   `yaml:"type" validate:"required"`
	Name    string   `yaml:"name" validate:"required"`
	Params  []string `yaml:"params,omitempty" validate:"dive,required"`
	Returns string   `yaml:"returns,omitempty" validate:"omitempty,oneof=single stream other"`
	Recover bool     `yaml:"recover,omitempty"`
	Policy  *Policy  `yaml:"policy,omitempty"`
}

// Method returns the engine identity of the row.
func (r MethodRow) Method() retry.Method {
	return retry.Method{
		Owner:   retry.TypeID(r.Type),
		Name:    r.Name,
		Params:  append([]string(nil), r.Params...),
		Returns: ParseShape(r.Returns),
	}
}

// Policy is the table form of retry.PolicySpec. Delays are milliseconds and -1 means unset.
type Policy struct {
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty" validate:"omitempty,oneof=max_attempts max_consecutive_attempts fixed_delay exponential_backoff"`
	// ExponentialBackoff and Consecutive select the mode when Mode is empty
	ExponentialBackoff bool     `yaml:"exponential_backoff,omitempty" json:"exponential_backoff,omitempty"`
	Consecutive        bool     `yaml:"consecutive,omitempty" json:"consecutive,omitempty"`
	MaxAttempts        int      `yaml:"max_attempts" json:"max_attempts" validate:"min=1"`
	Include            []string `yaml:"include,omitempty" json:"include,omitempty" validate:"dive,required"`
	Exclude            []string `yaml:"exclude,omitempty" json:"exclude,omitempty" validate:"dive,required"`
	FixedDelayMS       int64    `yaml:"fixed_delay_ms" json:"fixed_delay_ms" validate:"min=-1"`
	MinDelayMS         int64    `yaml:"min_delay_ms" json:"min_delay_ms" validate:"min=-1"`
	MaxDelayMS         int64    `yaml:"max_delay_ms" json:"max_delay_ms" validate:"min=-1"`
	BackoffFactor      float64  `yaml:"backoff_factor" json:"backoff_factor" validate:"min=-1,max=1"`
	Executor           string   `yaml:"executor,omitempty" json:"executor,omitempty"`
}

// DefaultPolicy mirrors retry.DefaultSpec. Mode is left empty so that a document
// setting only the legacy flags still selects its mode through retry.ModeFor.
func DefaultPolicy() Policy {
	p := FromSpec(retry.DefaultSpec())
	p.Mode = ""
	return p
}

// UnmarshalYAML fills fields missing from the document with defaults.
func (p *Policy) UnmarshalYAML(unmarshal func(any) error) error {
	type plain Policy
	v := plain(DefaultPolicy())
	if err := unmarshal(&v); err != nil {
		return err
	}
	*p = Policy(v)
	return nil
}

// Spec converts p to an engine spec. An empty Mode falls back to the legacy flags.
func (p Policy) Spec() (retry.PolicySpec, error) {
	mode := retry.ModeFor(p.ExponentialBackoff, p.Consecutive, p.FixedDelayMS)
	if p.Mode != "" {
		m, err := retry.ParseMode(p.Mode)
		if err != nil {
			return retry.PolicySpec{}, err
		}
		mode = m
	}
	return retry.PolicySpec{
		Include:       categories(p.Include),
		Exclude:       categories(p.Exclude),
		MaxAttempts:   p.MaxAttempts,
		Mode:          mode,
		FixedDelay:    p.FixedDelayMS,
		MinDelay:      p.MinDelayMS,
		MaxDelay:      p.MaxDelayMS,
		BackoffFactor: p.BackoffFactor,
		Executor:      p.Executor,
	}, nil
}

// FromSpec converts an engine spec to its table form.
func FromSpec(s retry.PolicySpec) Policy {
	p := Policy{
		Mode:          s.Mode.String(),
		MaxAttempts:   s.MaxAttempts,
		FixedDelayMS:  s.FixedDelay,
		MinDelayMS:    s.MinDelay,
		MaxDelayMS:    s.MaxDelay,
		BackoffFactor: s.BackoffFactor,
		Executor:      s.Executor,
	}
	for _, c := range s.Include {
		p.Include = append(p.Include, string(c))
	}
	for _, c := range s.Exclude {
		p.Exclude = append(p.Exclude, string(c))
	}
	return p
}

func categories(names []string) []retry.Category {
	if len(names) == 0 {
		return nil
	}
	out := make([]retry.Category, len(names))
	for i, n := range names {
		out[i] = retry.Category(strings.TrimSpace(n))
	}
	return out
}

// ParseShape maps "single" and "stream" to their shapes; anything else is retry.ShapeOther.
func ParseShape(s string) retry.Shape {
	switch strings.ToLower(s) {
	case "single":
		return retry.ShapeSingle
	case "stream":
		return retry.ShapeStream
	default:
		return retry.ShapeOther
	}
}

var validate = validator.New()

// Parse decodes a YAML table. ${VAR} references are expanded from the environment
// and unknown keys are rejected.
func Parse(data []byte) (Table, error) {
	var t Table
	if err := yaml.UnmarshalStrict([]byte(os.ExpandEnv(string(data))), &t); err != nil {
		return Table{}, shared.Wrapf(shared.ErrValidation, "declare: parse table: %v", err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Load reads and parses the table at path.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("declare: read %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return Table{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Validate checks the row shapes. Semantic checks such as category existence happen in Apply.
func (t Table) Validate() error {
	if err := validate.Struct(t); err != nil {
		return shared.Wrap(shared.MarkKind(err, shared.KindValidation), "declare")
	}
	return nil
}

// Marshal encodes t as YAML.
func (t Table) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}

// Merge returns a table holding the rows of t followed by the rows of other.
func (t Table) Merge(other Table) Table {
	return Table{
		Categories: append(append([]CategoryRow(nil), t.Categories...), other.Categories...),
		Executors:  append(append([]ExecutorRow(nil), t.Executors...), other.Executors...),
		Types:      append(append([]TypeRow(nil), t.Types...), other.Types...),
		Methods:    append(append([]MethodRow(nil), t.Methods...), other.Methods...),
	}
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Categories) + len(t.Executors) + len(t.Types) + len(t.Methods)
}
