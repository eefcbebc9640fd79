package ingress

import (
	"testing"

	"github.com/cuemby/charmed-norris/pkg/errors"
	"github.com/cuemby/charmed-norris/pkg/metrics"
	"github.com/cuemby/charmed-norris/pkg/storage"
	"github.com/cuemby/charmed-norris/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() types.IngressConfig {
	return types.IngressConfig{
		ServiceHostname: "charmed.norris",
		ServiceName:     "norris",
		ServicePort:     3333,
	}
}

func newRequirer(t *testing.T) (*Requirer, *storage.BoltStore) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewRequirer(store, defaultConfig()), store
}

func TestRequirer_UpdateBeforeJoin(t *testing.T) {
	r, store := newRequirer(t)

	deferred := testutil.ToFloat64(metrics.IngressUpdatesTotal.WithLabelValues(ResultDeferred))

	require.NoError(t, r.UpdateConfig(map[string]string{
		types.IngressKeyHostname: "jokes.example.com",
	}))
	assert.Equal(t, "jokes.example.com", r.Config().ServiceHostname)
	assert.Equal(t, deferred+1, testutil.ToFloat64(metrics.IngressUpdatesTotal.WithLabelValues(ResultDeferred)))

	_, err := store.GetRelationData(RelationName)
	assert.True(t, errors.IsNotFoundError(err))

	// Joining publishes what was kept
	require.NoError(t, r.Publish())
	data, err := r.Published()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"service-hostname": "jokes.example.com",
		"service-name":     "norris",
		"service-port":     "3333",
	}, data)
}

func TestRequirer_UpdateAfterJoin(t *testing.T) {
	r, _ := newRequirer(t)
	require.NoError(t, r.Publish())

	// Same partial update the operator sends on every config change
	require.NoError(t, r.UpdateConfig(map[string]string{
		types.IngressKeyHostname: "charmed.norris",
		types.IngressKeyPort:     "3333",
	}))

	data, err := r.Published()
	require.NoError(t, err)
	assert.Equal(t, "norris", data[types.IngressKeyName], "keys not in the update are kept")
	assert.Equal(t, "3333", data[types.IngressKeyPort])

	require.NoError(t, r.UpdateConfig(map[string]string{types.IngressKeyPort: "8080"}))
	data, err = r.Published()
	require.NoError(t, err)
	assert.Equal(t, "8080", data[types.IngressKeyPort])
}

func TestRequirer_InvalidUpdateKeepsConfig(t *testing.T) {
	r, _ := newRequirer(t)
	require.NoError(t, r.Publish())

	tests := []struct {
		name    string
		partial map[string]string
	}{
		{"bad port", map[string]string{types.IngressKeyPort: "http"}},
		{"port out of range", map[string]string{types.IngressKeyPort: "0"}},
		{"empty hostname", map[string]string{types.IngressKeyHostname: ""}},
		{"empty name", map[string]string{types.IngressKeyName: ""}},
		{"unknown key", map[string]string{"service-path": "/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.UpdateConfig(tt.partial)
			assert.True(t, errors.IsValidationError(err), "got %v", err)
			assert.Equal(t, defaultConfig(), r.Config())
		})
	}

	data, err := r.Published()
	require.NoError(t, err)
	assert.Equal(t, defaultConfig().RelationData(), data)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		wantErr bool
	}{
		{"default", "charmed.norris", false},
		{"single label", "norris", false},
		{"wildcard", "*.example.com", false},
		{"inner wildcard", "jokes.*.com", true},
		{"empty label", "charmed..norris", true},
		{"leading hyphen", "-norris.com", true},
		{"underscore", "charmed_norris", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.ServiceHostname = tt.host
			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	merged, err := Merge(defaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), merged)

	merged, err = Merge(defaultConfig(), map[string]string{
		types.IngressKeyName: "jokes",
		types.IngressKeyPort: "80",
	})
	require.NoError(t, err)
	assert.Equal(t, types.IngressConfig{ServiceHostname: "charmed.norris", ServiceName: "jokes", ServicePort: 80}, merged)
}
