// Package types holds the data model shared by the operator packages: plans
// and service definitions, supervisor process views, unit status and state.
package types

import (
	"sort"
	"strconv"
	"time"
)

// StartupPolicy defines whether the supervisor starts a service on autostart
type StartupPolicy string

const (
	StartupEnabled  StartupPolicy = "enabled"
	StartupDisabled StartupPolicy = "disabled"
)

// Override defines how a layer's service entry combines with earlier layers
type Override string

const (
	OverrideReplace Override = "replace"
	OverrideMerge   Override = "merge"
)

// ServiceDefinition describes one managed process
type ServiceDefinition struct {
	Name        string            `yaml:"-" json:"name"`
	Override    Override          `yaml:"override,omitempty" json:"override,omitempty"`
	Summary     string            `yaml:"summary,omitempty" json:"summary,omitempty"`
	Command     string            `yaml:"command,omitempty" json:"command,omitempty"`
	Startup     StartupPolicy     `yaml:"startup,omitempty" json:"startup,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`
}

// Clone returns a deep copy of the definition
func (s ServiceDefinition) Clone() ServiceDefinition {
	out := s
	if s.Environment != nil {
		out.Environment = make(map[string]string, len(s.Environment))
		for k, v := range s.Environment {
			out.Environment[k] = v
		}
	}
	return out
}

// Plan maps service names to definitions. A plan pushed to the supervisor
// is a layer and carries a summary and description; a plan read back from
// the supervisor carries services only.
type Plan struct {
	Summary     string                       `yaml:"summary,omitempty" json:"summary,omitempty"`
	Description string                       `yaml:"description,omitempty" json:"description,omitempty"`
	Services    map[string]ServiceDefinition `yaml:"services,omitempty" json:"services,omitempty"`
}

// Service returns the named service definition
func (p Plan) Service(name string) (ServiceDefinition, bool) {
	svc, ok := p.Services[name]
	return svc, ok
}

// ServiceNames returns the plan's service names in sorted order
func (p Plan) ServiceNames() []string {
	names := make([]string, 0, len(p.Services))
	for name := range p.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize fills each definition's Name from its map key. Plans decoded
// from YAML or JSON carry the name only as the key.
func (p Plan) Normalize() Plan {
	if p.Services == nil {
		return p
	}
	services := make(map[string]ServiceDefinition, len(p.Services))
	for name, svc := range p.Services {
		svc = svc.Clone()
		svc.Name = name
		services[name] = svc
	}
	p.Services = services
	return p
}

// Clone returns a deep copy of the plan
func (p Plan) Clone() Plan {
	out := Plan{Summary: p.Summary, Description: p.Description}
	if p.Services != nil {
		out.Services = make(map[string]ServiceDefinition, len(p.Services))
		for name, svc := range p.Services {
			out.Services[name] = svc.Clone()
		}
	}
	return out
}

// ServiceState is the supervisor-reported state of a managed process
type ServiceState string

const (
	ServiceStateActive   ServiceState = "active"
	ServiceStateInactive ServiceState = "inactive"
	ServiceStateBackoff  ServiceState = "backoff"
	ServiceStateError    ServiceState = "error"
)

// ServiceInfo is a point-in-time view of a managed process
type ServiceInfo struct {
	Name         string
	Startup      StartupPolicy
	Current      ServiceState
	CurrentSince time.Time
}

// IsRunning reports whether the process is up
func (s ServiceInfo) IsRunning() bool {
	return s.Current == ServiceStateActive
}

// StatusKind is the unit-level status reported to the platform
type StatusKind string

const (
	StatusActive      StatusKind = "active"
	StatusBlocked     StatusKind = "blocked"
	StatusWaiting     StatusKind = "waiting"
	StatusMaintenance StatusKind = "maintenance"
	StatusUnknown     StatusKind = "unknown"
)

// UnitStatus is the outcome of the last reconciliation attempt
type UnitStatus struct {
	Kind      StatusKind `json:"kind"`
	Message   string     `json:"message,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ActiveStatus returns an Active status with no message
func ActiveStatus() UnitStatus {
	return UnitStatus{Kind: StatusActive}
}

// BlockedStatus returns a Blocked status
func BlockedStatus(message string) UnitStatus {
	return UnitStatus{Kind: StatusBlocked, Message: message}
}

// WaitingStatus returns a Waiting status
func WaitingStatus(message string) UnitStatus {
	return UnitStatus{Kind: StatusWaiting, Message: message}
}

// MaintenanceStatus returns a Maintenance status
func MaintenanceStatus(message string) UnitStatus {
	return UnitStatus{Kind: StatusMaintenance, Message: message}
}

// Equal compares kind and message, ignoring the timestamp
func (s UnitStatus) Equal(other UnitStatus) bool {
	return s.Kind == other.Kind && s.Message == other.Message
}

// Ingress relation data keys
const (
	IngressKeyHostname = "service-hostname"
	IngressKeyName     = "service-name"
	IngressKeyPort     = "service-port"
)

// IngressConfig is what the operator asks the ingress sidecar to expose
type IngressConfig struct {
	ServiceHostname string `json:"service-hostname" yaml:"service-hostname"`
	ServiceName     string `json:"service-name" yaml:"service-name"`
	ServicePort     int    `json:"service-port" yaml:"service-port"`
}

// RelationData renders the config as a flat relation data bag
func (c IngressConfig) RelationData() map[string]string {
	return map[string]string{
		IngressKeyHostname: c.ServiceHostname,
		IngressKeyName:     c.ServiceName,
		IngressKeyPort:     strconv.Itoa(c.ServicePort),
	}
}

// UnitState is the operator's own state carried between hook invocations.
// It is passed explicitly into handlers and never consulted when deciding
// whether to apply a plan; the supervisor's plan is always re-fetched.
type UnitState struct {
	LastApplied *Plan             `json:"last_applied,omitempty"`
	LastConfig  map[string]string `json:"last_config,omitempty"`
	LastEvent   string            `json:"last_event,omitempty"`
	Status      UnitStatus        `json:"status"`
	Restarts    int               `json:"restarts"`
}

// LayerRecord is a labelled layer held by the local supervisor
type LayerRecord struct {
	Label string `json:"label"`
	Order int    `json:"order"`
	Layer Plan   `json:"layer"`
}

// ProcessRecord is the persisted state of a process under the local supervisor
type ProcessRecord struct {
	Name         string       `json:"name"`
	Current      ServiceState `json:"current"`
	CurrentSince time.Time    `json:"current_since"`
	Starts       int          `json:"starts"`
}
