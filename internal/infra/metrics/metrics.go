package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	MessagesComposed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anon_messages_composed_total",
		Help: "Созданные анонимные сообщения",
	}, []string{"mode"})

	MessagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anon_messages_delivered_total",
		Help: "Доставленные анонимные сообщения",
	})

	DeliveryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anon_delivery_failures_total",
		Help: "Ошибки доставки по причинам",
	}, []string{"reason"})

	QuotaRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anon_quota_rejections_total",
		Help: "Отказы из-за исчерпанного дневного лимита",
	})

	Reveals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anon_reveals_total",
		Help: "Запросы раскрытия отправителя по исходам",
	}, []string{"outcome"})

	SchedulerTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anon_scheduler_ticks_total",
		Help: "Тики планировщика отложенной доставки",
	})

	SchedulerDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anon_scheduler_dispatched_total",
		Help: "Отложенные сообщения, отправленные планировщиком",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		MessagesComposed,
		MessagesDelivered,
		DeliveryFailures,
		QuotaRejections,
		Reveals,
		SchedulerTicks,
		SchedulerDispatched,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
