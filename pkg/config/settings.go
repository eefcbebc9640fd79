package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/charmed-norris/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAppName         = "norris"
	DefaultUnitName        = "norris/0"
	DefaultContainerName   = "norris"
	DefaultIngressHostname = "charmed.norris"
	DefaultServicePort     = 3333
	DefaultBackend         = "pebble"
	DefaultSocket          = "/charm/containers/norris/pebble.socket"
	DefaultDataDir         = "/var/lib/norris-operator"
	DefaultValuesFile      = "/var/lib/norris-operator/config-values.yaml"
	DefaultMetricsAddr     = "127.0.0.1:9090"
	DefaultPollInterval    = 10 * time.Second
	DefaultLogLevel        = "info"
)

// Settings configures the operator process itself, as opposed to the charm
// options a user sets on the deployed application
type Settings struct {
	AppName         string        `yaml:"app_name"`
	UnitName        string        `yaml:"unit_name"`
	ContainerName   string        `yaml:"container_name"`
	IngressHostname string        `yaml:"ingress_hostname"`
	ServicePort     int           `yaml:"service_port"`
	Backend         string        `yaml:"backend"`
	Socket          string        `yaml:"socket"`
	DataDir         string        `yaml:"data_dir"`
	SchemaFile      string        `yaml:"schema_file"`
	ValuesFile      string        `yaml:"values_file"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	WorkloadURL     string        `yaml:"workload_url"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	LogLevel        string        `yaml:"log_level"`
	LogJSON         bool          `yaml:"log_json"`
}

// DefaultSettings returns settings for a unit running next to its workload
func DefaultSettings() Settings {
	return Settings{
		AppName:         DefaultAppName,
		UnitName:        DefaultUnitName,
		ContainerName:   DefaultContainerName,
		IngressHostname: DefaultIngressHostname,
		ServicePort:     DefaultServicePort,
		Backend:         DefaultBackend,
		Socket:          DefaultSocket,
		DataDir:         DefaultDataDir,
		ValuesFile:      DefaultValuesFile,
		MetricsAddr:     DefaultMetricsAddr,
		PollInterval:    DefaultPollInterval,
		LogLevel:        DefaultLogLevel,
	}
}

// LoadSettings reads settings from a YAML file over the defaults. An empty
// path returns the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return s, errors.NewIOError("failed to read settings", err).WithContext("path", path)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, errors.NewValidationError("failed to parse settings", err).WithContext("path", path)
	}
	return s, s.Validate()
}

// Validate checks the settings are usable
func (s Settings) Validate() error {
	switch {
	case s.AppName == "":
		return errors.NewValidationError("app name is required", nil)
	case s.ContainerName == "":
		return errors.NewValidationError("container name is required", nil)
	case s.IngressHostname == "":
		return errors.NewValidationError("ingress hostname is required", nil)
	case s.ServicePort <= 0 || s.ServicePort > 65535:
		return errors.NewValidationError(fmt.Sprintf("service port %d out of range", s.ServicePort), nil)
	case s.Backend != "pebble" && s.Backend != "local":
		return errors.NewValidationError(fmt.Sprintf("unknown supervisor backend %q", s.Backend), nil)
	case s.Backend == "pebble" && s.Socket == "":
		return errors.NewValidationError("pebble socket is required", nil)
	case s.DataDir == "":
		return errors.NewValidationError("data dir is required", nil)
	case s.PollInterval <= 0:
		return errors.NewValidationError("poll interval must be positive", nil)
	}
	return nil
}

// WorkloadEndpoint returns the URL the agent probes for workload health
func (s Settings) WorkloadEndpoint() string {
	if s.WorkloadURL != "" {
		return s.WorkloadURL
	}
	return fmt.Sprintf("http://127.0.0.1:%d/healthz", s.ServicePort)
}

// Schema loads the option schema from SchemaFile, or the built-in one
func (s Settings) Schema() (*Options, error) {
	if s.SchemaFile == "" {
		return MustDefaultOptions(), nil
	}
	return LoadOptions(s.SchemaFile)
}
