package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("lifedrop", reg)

	m.ChannelSends.WithLabelValues("email", "success").Inc()
	m.ChannelSends.WithLabelValues("email", "success").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChannelSends.WithLabelValues("email", "success")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "lifedrop_notification_channel_sends_total")
}

func TestIndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop()
		NewNop()
	})
}
