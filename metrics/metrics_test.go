package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectorsRegistersAndCounts(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c, err := NewCollectors(reg)
	require.NoError(t, err)

	c.TicksTotal.Inc()
	c.TicksTotal.Inc()
	c.ArenaBytesUsed.Set(128)

	var m dto.Metric
	require.NoError(t, c.TicksTotal.Write(&m))
	assert.Equal(t, float64(2), m.GetCounter().GetValue())
}

func TestNewCollectorsRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	_, err := NewCollectors(reg)
	require.NoError(t, err)

	_, err = NewCollectors(reg)
	assert.Error(t, err)
}
