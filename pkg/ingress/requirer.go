package ingress

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cuemby/charmed-norris/pkg/errors"
	"github.com/cuemby/charmed-norris/pkg/log"
	"github.com/cuemby/charmed-norris/pkg/metrics"
	"github.com/cuemby/charmed-norris/pkg/types"
	"github.com/rs/zerolog"
)

// RelationName is the relation endpoint the ingress provider joins
const RelationName = "ingress"

// Update results used as the "result" metric label
const (
	ResultPublished = "published"
	ResultDeferred  = "deferred"
	ResultInvalid   = "invalid"
	ResultError     = "error"
)

// RelationData is the relation data bag the requirer writes into
type RelationData interface {
	SetRelationData(relation string, data map[string]string) error
	GetRelationData(relation string) (map[string]string, error)
	ListRelations() ([]string, error)
}

// Requirer asks an ingress provider to expose the workload. It keeps the
// full ingress config and publishes it whenever the relation exists.
type Requirer struct {
	mu     sync.Mutex
	data   RelationData
	config types.IngressConfig
	logger zerolog.Logger
}

// NewRequirer creates a requirer with an initial config
func NewRequirer(data RelationData, config types.IngressConfig) *Requirer {
	return &Requirer{
		data:   data,
		config: config,
		logger: log.WithComponent("ingress"),
	}
}

// Config returns the current ingress config
func (r *Requirer) Config() types.IngressConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

// UpdateConfig merges the given keys into the config and republishes it if
// the relation exists. Keys not present are left as they were. The config
// is only replaced when the merged result is valid.
func (r *Requirer) UpdateConfig(partial map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged, err := Merge(r.config, partial)
	if err == nil {
		err = Validate(merged)
	}
	if err != nil {
		metrics.IngressUpdatesTotal.WithLabelValues(ResultInvalid).Inc()
		return err
	}
	r.config = merged

	joined, err := r.joined()
	if err != nil {
		metrics.IngressUpdatesTotal.WithLabelValues(ResultError).Inc()
		return err
	}
	if !joined {
		metrics.IngressUpdatesTotal.WithLabelValues(ResultDeferred).Inc()
		r.logger.Debug().Msg("No ingress relation yet, config kept for later")
		return nil
	}
	return r.publish()
}

// Publish writes the full config to the relation data bag, creating the
// relation entry if needed. Used when the relation joins or changes.
func (r *Requirer) Publish() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := Validate(r.config); err != nil {
		metrics.IngressUpdatesTotal.WithLabelValues(ResultInvalid).Inc()
		return err
	}
	return r.publish()
}

// Published returns what is currently in the relation data bag
func (r *Requirer) Published() (map[string]string, error) {
	return r.data.GetRelationData(RelationName)
}

// publish writes the config; caller holds mu
func (r *Requirer) publish() error {
	if err := r.data.SetRelationData(RelationName, r.config.RelationData()); err != nil {
		metrics.IngressUpdatesTotal.WithLabelValues(ResultError).Inc()
		return errors.NewIOError("failed to publish ingress config", err)
	}

	metrics.IngressUpdatesTotal.WithLabelValues(ResultPublished).Inc()
	r.logger.Info().
		Str("hostname", r.config.ServiceHostname).
		Str("service", r.config.ServiceName).
		Int("port", r.config.ServicePort).
		Msg("Published ingress config")
	return nil
}

// joined reports whether the relation exists; caller holds mu
func (r *Requirer) joined() (bool, error) {
	relations, err := r.data.ListRelations()
	if err != nil {
		return false, errors.NewIOError("failed to list relations", err)
	}
	for _, name := range relations {
		if name == RelationName {
			return true, nil
		}
	}
	return false, nil
}

// Merge applies relation-data style keys over a config. Unknown keys are
// rejected.
func Merge(config types.IngressConfig, partial map[string]string) (types.IngressConfig, error) {
	keys := make([]string, 0, len(partial))
	for k := range partial {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := partial[key]
		switch key {
		case types.IngressKeyHostname:
			config.ServiceHostname = value
		case types.IngressKeyName:
			config.ServiceName = value
		case types.IngressKeyPort:
			port, err := strconv.Atoi(value)
			if err != nil {
				return config, errors.NewValidationError(
					fmt.Sprintf("invalid %s %q", types.IngressKeyPort, value), err)
			}
			config.ServicePort = port
		default:
			return config, errors.NewValidationError(fmt.Sprintf("unknown ingress key %q", key), nil)
		}
	}
	return config, nil
}

// Validate checks an ingress config can be published
func Validate(config types.IngressConfig) error {
	if err := validateHostname(config.ServiceHostname); err != nil {
		return err
	}
	if config.ServiceName == "" {
		return errors.NewValidationError("ingress service name is required", nil)
	}
	if config.ServicePort <= 0 || config.ServicePort > 65535 {
		return errors.NewValidationError(
			fmt.Sprintf("ingress service port %d out of range", config.ServicePort), nil)
	}
	return nil
}

// validateHostname accepts a DNS name or a single leading wildcard label
// (*.example.com)
func validateHostname(host string) error {
	if host == "" {
		return errors.NewValidationError("ingress service hostname is required", nil)
	}
	if len(host) > 253 {
		return errors.NewValidationError(fmt.Sprintf("ingress hostname %q too long", host), nil)
	}

	labels := strings.Split(strings.TrimPrefix(host, "*."), ".")
	for _, label := range labels {
		if !validLabel(label) {
			return errors.NewValidationError(fmt.Sprintf("invalid ingress hostname %q", host), nil)
		}
	}
	return nil
}

func validLabel(label string) bool {
	if label == "" || len(label) > 63 {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for _, c := range label {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}
