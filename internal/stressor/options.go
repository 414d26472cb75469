package stressor

import (
	"fmt"
	"strconv"
	"strings"

	appErr "stressforge/pkg/errors"
)

// OptionKind selects the parser for one option.
type OptionKind int

const (
	OptInt OptionKind = iota
	OptBytes
	OptString
	OptBool
	OptChoice
)

// OptionSpec declares one option: its parser, validated range, and
// default. Min/Max apply to OptInt and OptBytes; Choices to OptChoice.
type OptionSpec struct {
	Kind    OptionKind
	Default string
	Min     int64
	Max     int64
	Choices []string
	Help    string
}

// Schema maps option names to their specs.
type Schema map[string]OptionSpec

// Options holds the parsed values for one run.
type Options struct {
	values map[string]string
	schema Schema
}

// Parse validates raw option strings against the schema, rejecting
// unknown names and out-of-range values, and filling defaults.
func (s Schema) Parse(raw map[string]string) (Options, error) {
	o := Options{values: map[string]string{}, schema: s}
	for name, spec := range s {
		o.values[name] = spec.Default
	}
	for name, val := range raw {
		spec, ok := s[name]
		if !ok {
			return Options{}, appErr.New(appErr.OptionInvalid).
				WithMessagef("unknown option %q", name)
		}
		if err := spec.check(name, val); err != nil {
			return Options{}, err
		}
		o.values[name] = val
	}
	return o, nil
}

func (spec OptionSpec) check(name, val string) error {
	bad := func(reason string) error {
		return appErr.New(appErr.OptionInvalid).
			WithMessagef("option %q: %s", name, reason).
			WithDetail("value", val)
	}
	switch spec.Kind {
	case OptInt:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return bad("not an integer")
		}
		if n < spec.Min || n > spec.Max {
			return bad(fmt.Sprintf("out of range [%d, %d]", spec.Min, spec.Max))
		}
	case OptBytes:
		n, err := parseBytes(val)
		if err != nil {
			return bad(err.Error())
		}
		if n < spec.Min || n > spec.Max {
			return bad(fmt.Sprintf("out of range [%d, %d] bytes", spec.Min, spec.Max))
		}
	case OptBool:
		if _, err := strconv.ParseBool(val); err != nil {
			return bad("not a boolean")
		}
	case OptChoice:
		for _, c := range spec.Choices {
			if val == c {
				return nil
			}
		}
		return bad("must be one of " + strings.Join(spec.Choices, ", "))
	}
	return nil
}

// Int returns a validated integer option. Schema validation has already
// run, so a parse failure here means a schema bug.
func (o Options) Int(name string) int64 {
	n, _ := strconv.ParseInt(o.values[name], 10, 64)
	return n
}

// Bytes returns a size option in bytes, accepting k/m/g suffixes.
func (o Options) Bytes(name string) int64 {
	n, _ := parseBytes(o.values[name])
	return n
}

func (o Options) String(name string) string {
	return o.values[name]
}

func (o Options) Bool(name string) bool {
	b, _ := strconv.ParseBool(o.values[name])
	return b
}

// parseBytes parses "4096", "64k", "8m", "1g" into a byte count.
func parseBytes(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'k':
		mult, s = 1<<10, s[:len(s)-1]
	case 'm':
		mult, s = 1<<20, s[:len(s)-1]
	case 'g':
		mult, s = 1<<30, s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad size %q", s)
	}
	return n * mult, nil
}
