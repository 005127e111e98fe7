package pipeline

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Definition is a pipeline as written in YAML:
//
//	name: scale
//	pipeline:
//	  sequence:
//	    - op: add
//	      args: {value: 1}
//	    - branch:
//	        cases:
//	          - when: {op: gt, args: {value: 5}}
//	            then: {op: multiply, args: {value: 2}}
//	        default: {op: identity}
type Definition struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Pipeline    *StepDefinition `yaml:"pipeline"`
}

// StepDefinition describes one runnable. Exactly one of Op, Sequence, Parallel, Branch,
// Assign, Pick, Passthrough and Each is set. Retry, Fallbacks, InputSchema and the config
// fields wrap the runnable it describes.
type StepDefinition struct {
	Op   string         `yaml:"op,omitempty"`
	Args map[string]any `yaml:"args,omitempty"`

	Sequence    []*StepDefinition          `yaml:"sequence,omitempty"`
	Parallel    map[string]*StepDefinition `yaml:"parallel,omitempty"`
	Branch      *BranchDefinition          `yaml:"branch,omitempty"`
	Assign      map[string]*StepDefinition `yaml:"assign,omitempty"`
	Pick        []string                   `yaml:"pick,omitempty"`
	Passthrough bool                       `yaml:"passthrough,omitempty"`
	Each        *StepDefinition            `yaml:"each,omitempty"`

	Retry       *RetryDefinition  `yaml:"retry,omitempty"`
	Fallbacks   []*StepDefinition `yaml:"fallbacks,omitempty"`
	InputSchema map[string]any    `yaml:"input_schema,omitempty"`

	RunName        string   `yaml:"run_name,omitempty"`
	Tags           []string `yaml:"tags,omitempty"`
	MaxConcurrency int      `yaml:"max_concurrency,omitempty"`
	Timeout        Duration `yaml:"timeout,omitempty"`
}

type BranchDefinition struct {
	Cases   []*CaseDefinition `yaml:"cases"`
	Default *StepDefinition   `yaml:"default"`
}

type CaseDefinition struct {
	When *StepDefinition `yaml:"when"`
	Then *StepDefinition `yaml:"then"`
}

type RetryDefinition struct {
	MaxAttempts     int      `yaml:"max_attempts,omitempty"`
	InitialInterval Duration `yaml:"initial_interval,omitempty"`
	MaxInterval     Duration `yaml:"max_interval,omitempty"`
	Jitter          float64  `yaml:"jitter,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("250ms", "1m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "line %d", value.Line)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ParseDefinition decodes a YAML pipeline definition. Unknown fields are rejected.
func ParseDefinition(r io.Reader) (*Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	def := &Definition{}
	if err := dec.Decode(def); err != nil {
		return nil, errors.Wrap(err, "could not parse pipeline definition")
	}
	if def.Pipeline == nil {
		return nil, errors.New("pipeline definition has no pipeline")
	}
	return def, nil
}

func ParseDefinitionFile(path string) (*Definition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s", path)
	}
	def, err := ParseDefinition(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrapf(err, "in %s", path)
	}
	return def, nil
}
