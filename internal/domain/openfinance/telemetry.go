package openfinance

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	syncTracer        = otel.Tracer("ledgersync/sync")
	syncMeter         = otel.Meter("ledgersync/sync")
	syncDuration, _   = syncMeter.Float64Histogram("sync.connection.duration", metric.WithDescription("Connection sync duration in seconds"), metric.WithUnit("s"))
	syncTotal, _      = syncMeter.Int64Counter("sync.connection.total", metric.WithDescription("Connection syncs by outcome"))
	syncAttempts, _   = syncMeter.Int64Counter("sync.connection.attempts", metric.WithDescription("Walk and apply attempts, including retries"))
	entriesApplied, _ = syncMeter.Int64Counter("sync.entries.applied", metric.WithDescription("Ledger entries written or removed by kind"))
)
