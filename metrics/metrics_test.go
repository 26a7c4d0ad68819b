package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullName(t *testing.T) {
	assert.Equal(t, "commlib_net_conn_accepted_total", FullName("net", "conn_accepted_total"))
	assert.Equal(t, "commlib_net_redis_cmd_total", FullName("net.redis", "cmd_total"))
}

func TestIncrCounter(t *testing.T) {
	IncrCounterWithGroup("test", "counter_total", 1)
	IncrCounterWithGroup("test", "counter_total", 2)

	c := getVec(PolicySum, "test", "counter_total", nil).(*prometheus.CounterVec)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.With(nil)))
}

func TestIncrCounterWithDim(t *testing.T) {
	IncrCounterWithDimGroup("test", "dim_total", 1, Dimension{"reason": "a"})
	IncrCounterWithDimGroup("test", "dim_total", 1, Dimension{"reason": "b"})
	IncrCounterWithDimGroup("test", "dim_total", 1, Dimension{"reason": "a"})

	c := getVec(PolicySum, "test", "dim_total", Dimension{"reason": ""}).(*prometheus.CounterVec)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.With(prometheus.Labels{"reason": "a"})))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.With(prometheus.Labels{"reason": "b"})))
}

func TestGaugeAndStopwatch(t *testing.T) {
	UpdateGaugeWithGroup("test", "queue_length", 7)
	UpdateGaugeWithGroup("test", "queue_length", 4)
	g := getVec(PolicySet, "test", "queue_length", nil).(*prometheus.GaugeVec)
	assert.Equal(t, 4.0, testutil.ToFloat64(g.With(nil)))

	RecordStopwatchWithGroup("test", "cost", time.Now().Add(-5*time.Millisecond))
	h := getVec(PolicyStopwatch, "test", "cost", nil)
	assert.Equal(t, 1, testutil.CollectAndCount(h))
}

func TestHandlerExposesMetrics(t *testing.T) {
	IncrCounterWithGroup("test", "exposed_total", 1)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "commlib_test_exposed_total"))
}
