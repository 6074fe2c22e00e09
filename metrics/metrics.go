package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OnlineChannels = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gymtalk_online_channels",
		Help: "Current registered push channels.",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gymtalk_online_users",
		Help: "Current users with at least one push channel.",
	})

	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gymtalk_messages_sent_total",
		Help: "Total direct messages persisted.",
	})
	SendRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gymtalk_send_rejected_total",
		Help: "Total send attempts rejected before persistence, by error code.",
	}, []string{"code"})

	PushOK = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gymtalk_push_ok_total",
		Help: "Total envelopes handed to a channel, by envelope type.",
	}, []string{"type"})
	PushFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gymtalk_push_failed_total",
		Help: "Total per-channel push failures, by envelope type.",
	}, []string{"type"})
	PushOffline = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gymtalk_push_offline_total",
		Help: "Total pushes dropped because the recipient had no channel.",
	}, []string{"type"})

	NotificationsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gymtalk_notifications_dropped_total",
		Help: "Total domain events dropped before delivery, by reason.",
	}, []string{"reason"})

	EventsConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gymtalk_events_consumed_total",
		Help: "Total domain events received, by source.",
	}, []string{"source"})
	EventDecodeFail = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gymtalk_event_decode_fail_total",
		Help: "Total domain events that could not be decoded.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		OnlineChannels, OnlineUsers,
		MessagesSent, SendRejected,
		PushOK, PushFailed, PushOffline,
		NotificationsDropped,
		EventsConsumed, EventDecodeFail,
	)
}
