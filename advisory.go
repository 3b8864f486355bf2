package reservebase

import "context"

// advisoryWriter runs secondary writes whose failures must never fail the
// enclosing operation. Index and change-log maintenance after a successful
// primary write goes through here: errors are logged and counted, then
// dropped. This is the type-level line between primary writes (errors
// propagate) and advisory writes (errors do not).
type advisoryWriter struct {
	logger  Logger
	metrics Metrics
}

func newAdvisoryWriter(logger Logger, metrics Metrics) *advisoryWriter {
	return &advisoryWriter{logger: logger, metrics: metrics}
}

// Do executes fn and swallows its error after logging it.
// op and key identify the write for the log line.
func (aw *advisoryWriter) Do(ctx context.Context, op, key string, fn func(ctx context.Context) error) {
	if err := fn(ctx); err != nil {
		aw.logger.Warn("advisory write failed",
			"op", op,
			"key", key,
			"error", err,
		)
		aw.metrics.Increment(MetricAdvisoryErrors)
	}
}
