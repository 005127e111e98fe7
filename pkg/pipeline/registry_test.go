package pipeline

import (
	"context"
	"testing"

	"github.com/go-go-golems/runnable/pkg/runnables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryNormalizesNames(t *testing.T) {
	r := DefaultRegistry()
	for _, name := range []string{"to_string", "toString", "ToString", "to-string"} {
		_, ok := r.Lookup(name)
		assert.True(t, ok, name)
	}
	assert.Error(t, r.Register("parseJson", func(Args) (runnables.Runnable, error) { return nil, nil }))
	assert.Contains(t, r.Ops(), "split_words")
}

func TestBuiltinOps(t *testing.T) {
	r := DefaultRegistry()
	for _, tc := range []struct {
		name  string
		op    string
		args  Args
		input any
		want  any
	}{
		{name: "add ints", op: "add", args: Args{"value": 2}, input: 3, want: 5},
		{name: "add float", op: "add", args: Args{"value": 0.5}, input: 1, want: 1.5},
		{name: "gt", op: "gt", args: Args{"value": 2}, input: 3.0, want: true},
		{name: "lt", op: "lt", args: Args{"value": 2}, input: 3, want: false},
		{name: "eq numbers", op: "eq", args: Args{"value": 3}, input: 3.0, want: true},
		{name: "eq strings", op: "eq", args: Args{"value": "a"}, input: "b", want: false},
		{name: "not", op: "not", input: "", want: true},
		{name: "upper", op: "upper", input: "abc", want: "ABC"},
		{name: "template sprig", op: "template", args: Args{"template": `{{ .name | title }}!`}, input: map[string]any{"name": "bob"}, want: "Bob!"},
		{name: "parse json", op: "parse_json", input: `{"a":[1,2]}`, want: map[string]any{"a": []any{1.0, 2.0}}},
		{name: "to json", op: "to_json", input: map[string]any{"a": 1}, want: `{"a":1}`},
		{name: "length", op: "length", input: []any{1, 2}, want: 2},
		{name: "get", op: "get", args: Args{"key": "k"}, input: map[string]any{"k": "v"}, want: "v"},
		{name: "constant", op: "constant", args: Args{"value": 7}, input: nil, want: 7},
	} {
		t.Run(tc.name, func(t *testing.T) {
			run, err := r.Build(tc.op, tc.args)
			require.NoError(t, err)
			out, err := run.Invoke(context.Background(), tc.input, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}
}

func TestBuiltinOpErrors(t *testing.T) {
	r := DefaultRegistry()

	add, err := r.Build("add", Args{"value": 1})
	require.NoError(t, err)
	_, err = add.Invoke(context.Background(), "one", nil)
	assert.ErrorIs(t, err, runnables.ErrValidation)

	parse, err := r.Build("parse_json", nil)
	require.NoError(t, err)
	_, err = parse.Invoke(context.Background(), "{", nil)
	assert.ErrorIs(t, err, runnables.ErrUpstream)

	flaky, err := r.Build("flaky", Args{"failures": 1})
	require.NoError(t, err)
	_, err = flaky.Invoke(context.Background(), 1, nil)
	assert.Error(t, err)
	out, err := flaky.Invoke(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out)

	_, err = r.Build("add", Args{"value": "x"})
	assert.Error(t, err)
	_, err = r.Build("flaky", Args{"failures": 1.5})
	assert.Error(t, err)
}
