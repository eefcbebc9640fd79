package plan

import (
	"fmt"

	"github.com/cuemby/charmed-norris/pkg/types"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gopkg.in/yaml.v3"
)

const (
	// ServiceName is the managed service inside the workload container
	ServiceName = "norris"

	// Command is the workload entrypoint
	Command = "/charmed-norris"

	// CategoryKey is the config option feeding the workload's joke category
	CategoryKey = "category"

	// CategoryEnv is the environment variable the workload reads
	CategoryEnv = "CHUCK_CATEGORY"

	// LayerSummary and LayerDescription label the pushed layer
	LayerSummary     = "norris layer"
	LayerDescription = "pebble config layer for norris"
)

// BuildDesired renders the desired layer from flat charm config. Unknown
// keys are ignored and missing keys default to the empty string.
func BuildDesired(config map[string]string) types.Plan {
	return types.Plan{
		Summary:     LayerSummary,
		Description: LayerDescription,
		Services: map[string]types.ServiceDefinition{
			ServiceName: {
				Name:     ServiceName,
				Override: types.OverrideReplace,
				Summary:  ServiceName,
				Command:  Command,
				Startup:  types.StartupEnabled,
				Environment: map[string]string{
					CategoryEnv: config[CategoryKey],
				},
			},
		},
	}
}

var servicesEqualOpts = []cmp.Option{
	cmpopts.EquateEmpty(),
}

// ServicesEqual compares the services of two plans structurally. Layer
// summary and description are not part of the comparison, and a nil
// environment equals an empty one.
func ServicesEqual(a, b types.Plan) bool {
	return cmp.Equal(a.Normalize().Services, b.Normalize().Services, servicesEqualOpts...)
}

// Diff returns a human readable diff of two plans' services, empty if equal
func Diff(current, desired types.Plan) string {
	return cmp.Diff(current.Normalize().Services, desired.Normalize().Services, servicesEqualOpts...)
}

// Marshal renders a plan as a supervisor layer document
func Marshal(p types.Plan) ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal layer: %w", err)
	}
	return data, nil
}

// Unmarshal parses a plan or layer document
func Unmarshal(data []byte) (types.Plan, error) {
	var p types.Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return types.Plan{}, fmt.Errorf("failed to parse plan: %w", err)
	}
	return p.Normalize(), nil
}

// Subset returns a layer holding only the named service, keeping the
// layer summary and description
func Subset(p types.Plan, name string) (types.Plan, error) {
	svc, ok := p.Service(name)
	if !ok {
		return types.Plan{}, fmt.Errorf("service %q not in plan", name)
	}
	return types.Plan{
		Summary:     p.Summary,
		Description: p.Description,
		Services:    map[string]types.ServiceDefinition{name: svc.Clone()},
	}, nil
}

// Combine merges a layer into a plan with "combine" semantics: services the
// layer names are replaced (override: replace) or merged (override: merge),
// every other service is left untouched. Layer summary and description are
// not carried into the resulting plan.
func Combine(base, layer types.Plan) types.Plan {
	out := types.Plan{Services: make(map[string]types.ServiceDefinition)}
	for name, svc := range base.Services {
		out.Services[name] = svc.Clone()
	}
	for name, svc := range layer.Services {
		svc = svc.Clone()
		svc.Name = name
		existing, ok := out.Services[name]
		if !ok || svc.Override != types.OverrideMerge {
			out.Services[name] = svc
			continue
		}
		out.Services[name] = merge(existing, svc)
	}
	return out
}

func merge(base, over types.ServiceDefinition) types.ServiceDefinition {
	out := base.Clone()
	out.Override = over.Override
	if over.Summary != "" {
		out.Summary = over.Summary
	}
	if over.Command != "" {
		out.Command = over.Command
	}
	if over.Startup != "" {
		out.Startup = over.Startup
	}
	if len(over.Environment) > 0 && out.Environment == nil {
		out.Environment = make(map[string]string, len(over.Environment))
	}
	for k, v := range over.Environment {
		out.Environment[k] = v
	}
	return out
}
