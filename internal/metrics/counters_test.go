package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrementAndExport(t *testing.T) {
	c := New("logjoin_test")

	c.IncLoglinesTotal()
	c.IncLoglinesTotal()
	c.IncLoglinesInvalid()
	c.IncJoinedSessions()
	c.IncJoinedQueries()
	c.IncJoinedQueries()
	c.IncJoinedItemVisits()

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		values[mf.GetName()] = metricValue(mf)
	}

	require.Equal(t, 2.0, values["logjoin_test_loglines_total"])
	require.Equal(t, 1.0, values["logjoin_test_loglines_invalid_total"])
	require.Equal(t, 1.0, values["logjoin_test_joined_sessions_total"])
	require.Equal(t, 2.0, values["logjoin_test_joined_queries_total"])
	require.Equal(t, 1.0, values["logjoin_test_joined_item_visits_total"])
}

func metricValue(mf *dto.MetricFamily) float64 {
	if len(mf.Metric) == 0 {
		return 0
	}

	return mf.Metric[0].GetCounter().GetValue()
}
