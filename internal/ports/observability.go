package ports

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)
}

type Field struct {
	Key   string
	Value any
}

const (
	MetricDelivered       = "aegis_watch_samples_delivered_total"
	MetricSkipped         = "aegis_watch_samples_skipped_total"
	MetricFetchErrors     = "aegis_watch_fetch_errors_total"
	MetricHeartbeats      = "aegis_watch_heartbeats_total"
	MetricArchiveErrors   = "aegis_watch_archive_errors_total"
	MetricReportLogErrors = "aegis_watch_report_log_errors_total"
	MetricFetchLatency    = "aegis_watch_fetch_latency_seconds"
	MetricWatermarkKeys   = "aegis_watch_watermark_keys"
)
