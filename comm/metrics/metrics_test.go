package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewBusMetrics(reg)

	m.Accepted.Inc()
	m.DecodeTotal.WithLabelValues("ok").Inc()
	m.DecodeTotal.WithLabelValues("crc").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Accepted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecodeTotal.WithLabelValues("crc")))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "rs485_frame_decode_total")
}
