package pipeline

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Args are the arguments of an op step, as decoded from YAML.
type Args map[string]any

func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

func (a Args) Any(key string) (any, bool) {
	v, ok := a[key]
	return v, ok
}

func (a Args) String(key string, def string) (string, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("argument %s must be a string, got %T", key, v)
	}
	return s, nil
}

func (a Args) RequiredString(key string) (string, error) {
	if !a.Has(key) {
		return "", errors.Errorf("missing argument %s", key)
	}
	return a.String(key, "")
}

func (a Args) Number(key string) (float64, error) {
	v, ok := a[key]
	if !ok {
		return 0, errors.Errorf("missing argument %s", key)
	}
	f, ok := toNumber(v)
	if !ok {
		return 0, errors.Errorf("argument %s must be a number, got %T", key, v)
	}
	return f, nil
}

func (a Args) Int(key string, def int) (int, error) {
	if !a.Has(key) {
		return def, nil
	}
	f, err := a.Number(key)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, errors.Errorf("argument %s must be an integer, got %v", key, f)
	}
	return int(f), nil
}

func (a Args) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	switch t := v.(type) {
	case string:
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, errors.Wrapf(err, "argument %s", key)
		}
		return d, nil
	case int:
		return time.Duration(t) * time.Millisecond, nil
	}
	return 0, errors.Errorf("argument %s must be a duration, got %s", key, fmt.Sprintf("%T", v))
}
