package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// BusMetrics 模拟总线的业务指标
type BusMetrics struct {
	Accepted      prometheus.Counter
	BytesReceived prometheus.Counter
	DecodeTotal   *prometheus.CounterVec // labels: result=ok|too_short|length|marker|crc
	ReplyTotal    *prometheus.CounterVec // labels: kind=write|read|bad_crc
	OnlineGauge   prometheus.Gauge
}

// NewBusMetrics 注册并返回业务指标
func NewBusMetrics(reg prometheus.Registerer) *BusMetrics {
	m := &BusMetrics{
		Accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rs485_tcp_accept_total",
			Help: "Total accepted TCP connections.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rs485_bytes_received_total",
			Help: "Total bytes received over TCP.",
		}),
		DecodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rs485_frame_decode_total",
			Help: "Frame decode attempts by result.",
		}, []string{"result"}),
		ReplyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rs485_frame_reply_total",
			Help: "Reply frames sent by kind.",
		}, []string{"kind"}),
		OnlineGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rs485_online_connections",
			Help: "Current number of open connections.",
		}),
	}
	reg.MustRegister(m.Accepted, m.BytesReceived, m.DecodeTotal, m.ReplyTotal, m.OnlineGauge)
	return m
}
