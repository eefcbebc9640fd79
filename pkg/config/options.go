// Package config loads the charm option schema, resolves user-set values
// against it, and holds the operator process settings.
package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/cuemby/charmed-norris/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Option types understood by the schema
const (
	TypeString  = "string"
	TypeInt     = "int"
	TypeFloat   = "float"
	TypeBoolean = "boolean"
)

// DefaultSchema is the operator's config.yaml
const DefaultSchema = `options:
  category:
    type: string
    default: ""
    description: |
      Category of jokes served by the workload. Empty means any category.
      See https://api.chucknorris.io/jokes/categories for valid values.
`

// Option is one entry of the config schema
type Option struct {
	Type        string      `yaml:"type"`
	Default     interface{} `yaml:"default"`
	Description string      `yaml:"description,omitempty"`
}

// Options is the parsed config schema
type Options struct {
	Options map[string]Option `yaml:"options"`
}

// ParseOptions parses a config schema document
func ParseOptions(data []byte) (*Options, error) {
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, errors.NewValidationError("failed to parse config schema", err)
	}
	if opts.Options == nil {
		opts.Options = make(map[string]Option)
	}

	for name, opt := range opts.Options {
		switch opt.Type {
		case TypeString, TypeInt, TypeFloat, TypeBoolean:
		default:
			return nil, errors.NewValidationError(
				fmt.Sprintf("option %q has unsupported type %q", name, opt.Type), nil)
		}
		if opt.Default != nil {
			if _, err := render(opt.Type, opt.Default); err != nil {
				return nil, errors.NewValidationError(
					fmt.Sprintf("option %q has invalid default", name), err)
			}
		}
	}
	return &opts, nil
}

// LoadOptions reads a config schema from disk
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("failed to read config schema", err).WithContext("path", path)
	}
	return ParseOptions(data)
}

// MustDefaultOptions parses DefaultSchema
func MustDefaultOptions() *Options {
	opts, err := ParseOptions([]byte(DefaultSchema))
	if err != nil {
		panic(err)
	}
	return opts
}

// Names returns the option names in sorted order
func (o *Options) Names() []string {
	names := make([]string, 0, len(o.Options))
	for name := range o.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Defaults returns every option's default rendered as a string. Options
// without a default are omitted.
func (o *Options) Defaults() map[string]string {
	out := make(map[string]string, len(o.Options))
	for name, opt := range o.Options {
		if opt.Default == nil {
			continue
		}
		v, _ := render(opt.Type, opt.Default)
		out[name] = v
	}
	return out
}

// Resolve layers values over the schema defaults and returns the flat
// config handed to the operator. Unknown keys are ignored.
func (o *Options) Resolve(values map[string]interface{}) (map[string]string, error) {
	out := o.Defaults()
	for name, value := range values {
		opt, ok := o.Options[name]
		if !ok || value == nil {
			continue
		}
		v, err := render(opt.Type, value)
		if err != nil {
			return nil, errors.NewValidationError(
				fmt.Sprintf("invalid value for option %q", name), err).WithContext("option", name)
		}
		out[name] = v
	}
	return out, nil
}

// ParseValues parses a YAML document of option values
func ParseValues(data []byte) (map[string]interface{}, error) {
	values := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, errors.NewValidationError("failed to parse config values", err)
	}
	return values, nil
}

// LoadValues reads option values from disk. A missing file yields no values.
func LoadValues(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, errors.NewIOError("failed to read config values", err).WithContext("path", path)
	}
	return ParseValues(data)
}

// render checks a value against an option type and formats it
func render(typ string, value interface{}) (string, error) {
	switch typ {
	case TypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case TypeInt:
		switch value.(type) {
		case int, int64, uint64:
			return fmt.Sprint(value), nil
		}
	case TypeFloat:
		switch value.(type) {
		case int, int64, uint64, float64:
			return fmt.Sprint(value), nil
		}
	case TypeBoolean:
		if b, ok := value.(bool); ok {
			return fmt.Sprint(b), nil
		}
	}
	return "", fmt.Errorf("expected %s, got %T", typ, value)
}
