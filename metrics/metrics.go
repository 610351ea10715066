package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the collectors exported on /metrics. Each instance owns its
// registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	ChatConnections  prometheus.Gauge
	ChatMessages     prometheus.Counter
	ChatRejected     *prometheus.CounterVec
	ChatDeliveries   prometheus.Counter
	ChatDropped      prometheus.Counter
	OrdersCreated    prometheus.Counter
	OrderTransitions *prometheus.CounterVec
	OrderRejections  *prometheus.CounterVec
	OTPSent          prometheus.Counter
	OTPVerifications *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		ChatConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "farmconnect", Subsystem: "chat", Name: "connections",
			Help: "Open websocket connections.",
		}),
		ChatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "farmconnect", Subsystem: "chat", Name: "messages_total",
			Help: "Chat messages accepted and published.",
		}),
		ChatRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "farmconnect", Subsystem: "chat", Name: "rejected_total",
			Help: "Client events rejected at the gateway, by reason.",
		}, []string{"reason"}),
		ChatDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "farmconnect", Subsystem: "chat", Name: "deliveries_total",
			Help: "Messages queued to subscribed connections.",
		}),
		ChatDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "farmconnect", Subsystem: "chat", Name: "dropped_total",
			Help: "Deliveries dropped because a connection queue was full.",
		}),
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "farmconnect", Subsystem: "orders", Name: "created_total",
			Help: "Orders created.",
		}),
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "farmconnect", Subsystem: "orders", Name: "transitions_total",
			Help: "Successful order status transitions, by target status.",
		}, []string{"status"}),
		OrderRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "farmconnect", Subsystem: "orders", Name: "rejections_total",
			Help: "Rejected order operations, by error kind.",
		}, []string{"kind"}),
		OTPSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "farmconnect", Subsystem: "otp", Name: "sent_total",
			Help: "OTP codes issued.",
		}),
		OTPVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "farmconnect", Subsystem: "otp", Name: "verifications_total",
			Help: "OTP verification attempts, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ChatConnections, m.ChatMessages, m.ChatRejected, m.ChatDeliveries, m.ChatDropped,
		m.OrdersCreated, m.OrderTransitions, m.OrderRejections,
		m.OTPSent, m.OTPVerifications,
	)
	return m
}
