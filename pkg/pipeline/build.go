package pipeline

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/go-go-golems/runnable/pkg/runnables"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Pipeline is a loaded definition together with the runnable it describes.
type Pipeline struct {
	Name        string
	Description string
	Definition  *Definition
	Runnable    runnables.Runnable
}

// Load parses and builds a pipeline definition. A nil registry means DefaultRegistry.
func Load(r io.Reader, registry *Registry) (*Pipeline, error) {
	def, err := ParseDefinition(r)
	if err != nil {
		return nil, err
	}
	return FromDefinition(def, registry)
}

func LoadFile(path string, registry *Registry) (*Pipeline, error) {
	def, err := ParseDefinitionFile(path)
	if err != nil {
		return nil, err
	}
	p, err := FromDefinition(def, registry)
	if err != nil {
		return nil, errors.Wrapf(err, "in %s", path)
	}
	return p, nil
}

func FromDefinition(def *Definition, registry *Registry) (*Pipeline, error) {
	if registry == nil {
		registry = DefaultRegistry()
	}
	b := &builder{registry: registry}
	r, err := b.build(def.Pipeline, "pipeline")
	if err != nil {
		return nil, err
	}
	if def.Name != "" {
		r = runnables.WithConfig(r, &config.RunnableConfig{RunName: def.Name})
	}
	log.Debug().Str("pipeline", def.Name).Str("runnable", r.GetName()).Msg("built pipeline")
	return &Pipeline{
		Name:        def.Name,
		Description: def.Description,
		Definition:  def,
		Runnable:    r,
	}, nil
}

type builder struct {
	registry *Registry
}

func (s *StepDefinition) kinds() []string {
	var ret []string
	if s.Op != "" {
		ret = append(ret, "op")
	}
	if s.Sequence != nil {
		ret = append(ret, "sequence")
	}
	if s.Parallel != nil {
		ret = append(ret, "parallel")
	}
	if s.Branch != nil {
		ret = append(ret, "branch")
	}
	if s.Assign != nil {
		ret = append(ret, "assign")
	}
	if s.Pick != nil {
		ret = append(ret, "pick")
	}
	if s.Passthrough {
		ret = append(ret, "passthrough")
	}
	if s.Each != nil {
		ret = append(ret, "each")
	}
	return ret
}

func (b *builder) build(s *StepDefinition, path string) (runnables.Runnable, error) {
	if s == nil {
		return nil, errors.Errorf("%s: empty step", path)
	}
	kinds := s.kinds()
	if len(kinds) != 1 {
		return nil, errors.Errorf("%s: a step needs exactly one of op, sequence, parallel, branch, assign, pick, passthrough or each, got [%s]",
			path, strings.Join(kinds, ", "))
	}

	r, err := b.buildKind(s, kinds[0], path)
	if err != nil {
		return nil, err
	}
	return b.wrap(r, s, path)
}

func (b *builder) buildKind(s *StepDefinition, kind string, path string) (runnables.Runnable, error) {
	switch kind {
	case "op":
		r, err := b.registry.Build(s.Op, Args(s.Args))
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		return r, nil

	case "sequence":
		steps := make([]runnables.RunnableLike, 0, len(s.Sequence))
		for i, step := range s.Sequence {
			r, err := b.build(step, fmt.Sprintf("%s.sequence[%d]", path, i))
			if err != nil {
				return nil, err
			}
			steps = append(steps, r)
		}
		seq, err := runnables.NewSequence(steps...)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		return seq, nil

	case "parallel", "assign":
		fields := s.Parallel
		if kind == "assign" {
			fields = s.Assign
		}
		steps := map[string]runnables.RunnableLike{}
		for _, key := range sortedKeys(fields) {
			r, err := b.build(fields[key], fmt.Sprintf("%s.%s.%s", path, kind, key))
			if err != nil {
				return nil, err
			}
			steps[key] = r
		}
		var ret runnables.Runnable
		var err error
		if kind == "assign" {
			ret, err = runnables.NewAssign(steps)
		} else {
			ret, err = runnables.NewParallel(steps)
		}
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		return ret, nil

	case "branch":
		cases := make([]runnables.Case, 0, len(s.Branch.Cases))
		for i, c := range s.Branch.Cases {
			if c == nil {
				return nil, errors.Errorf("%s.branch.cases[%d]: empty case", path, i)
			}
			when, err := b.build(c.When, fmt.Sprintf("%s.branch.cases[%d].when", path, i))
			if err != nil {
				return nil, err
			}
			then, err := b.build(c.Then, fmt.Sprintf("%s.branch.cases[%d].then", path, i))
			if err != nil {
				return nil, err
			}
			cases = append(cases, runnables.Case{Condition: when, Then: then})
		}
		def, err := b.build(s.Branch.Default, path+".branch.default")
		if err != nil {
			return nil, err
		}
		br, err := runnables.NewBranch(def, cases...)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		return br, nil

	case "pick":
		p, err := runnables.NewPick(s.Pick...)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		return p, nil

	case "passthrough":
		return runnables.NewPassthrough(), nil

	case "each":
		inner, err := b.build(s.Each, path+".each")
		if err != nil {
			return nil, err
		}
		e, err := runnables.NewEach(inner)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		return e, nil
	}
	return nil, errors.Errorf("%s: unknown step kind %s", path, kind)
}

// wrap applies, innermost first, input validation, retries, fallbacks and the bound config.
func (b *builder) wrap(r runnables.Runnable, s *StepDefinition, path string) (runnables.Runnable, error) {
	if s.InputSchema != nil {
		v, err := runnables.WithInputSchema(r, s.InputSchema)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		r = v
	}

	if s.Retry != nil {
		r = runnables.WithRetry(r, runnables.RetryOptions{
			MaxAttempts:     s.Retry.MaxAttempts,
			InitialInterval: time.Duration(s.Retry.InitialInterval),
			MaxInterval:     time.Duration(s.Retry.MaxInterval),
			Jitter:          s.Retry.Jitter,
		})
	}

	if len(s.Fallbacks) > 0 {
		alternates := make([]runnables.Runnable, 0, len(s.Fallbacks))
		for i, f := range s.Fallbacks {
			alt, err := b.build(f, fmt.Sprintf("%s.fallbacks[%d]", path, i))
			if err != nil {
				return nil, err
			}
			alternates = append(alternates, alt)
		}
		r = runnables.WithFallbacks(r, alternates...)
	}

	if s.RunName != "" || len(s.Tags) > 0 || s.MaxConcurrency > 0 || s.Timeout > 0 {
		r = runnables.WithConfig(r, &config.RunnableConfig{
			RunName:        s.RunName,
			Tags:           s.Tags,
			MaxConcurrency: s.MaxConcurrency,
			Timeout:        time.Duration(s.Timeout),
		})
	}
	return r, nil
}

func sortedKeys(m map[string]*StepDefinition) []string {
	ret := make([]string, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}
