package node

import (
	"github.com/jamnode/jam/log"
	"github.com/jamnode/jam/metrics"
)

// logReportBackend implements metrics.ReportBackend by writing the registry
// snapshot to the node's structured logger on every export tick, ignoring
// the map the reporter passes in and reading metrics.DefaultRegistry
// directly -- this node doesn't accumulate metrics into the reporter's own
// RecordMetric store, it just uses MetricsReporter for its ticking.
type logReportBackend struct {
	logger *log.Logger
}

// Report logs every counter and gauge value in the default registry, and
// each histogram's count/mean, at debug level.
func (b *logReportBackend) Report(_ map[string]float64) error {
	snap := metrics.DefaultRegistry.Snapshot()
	args := make([]interface{}, 0, len(snap)*2)
	for name, v := range snap {
		switch val := v.(type) {
		case map[string]interface{}:
			args = append(args, name+".count", val["count"], name+".mean", val["mean"])
		default:
			args = append(args, name, val)
		}
	}
	b.logger.Debug("metrics snapshot", args...)
	return nil
}
