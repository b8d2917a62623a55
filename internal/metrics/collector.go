package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"solrtmp/pkg/rtmp"
)

// ConnectionCollector exports the counters of the current connection on every
// scrape. Nothing is exported while there is no connection.
type ConnectionCollector struct {
	current func() *rtmp.Connection

	pendingMessages *prometheus.Desc
	pendingCalls    *prometheus.Desc
	deferredResults *prometheus.Desc
	streams         *prometheus.Desc
	bytesRead       *prometheus.Desc
	bytesWritten    *prometheus.Desc
	idle            *prometheus.Desc
}

func NewConnectionCollector(current func() *rtmp.Connection) *ConnectionCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "connection", name), help, labels, nil)
	}
	return &ConnectionCollector{
		current:         current,
		pendingMessages: desc("pending_messages", "Messages queued for writing"),
		pendingCalls:    desc("pending_calls", "Calls waiting for a reply"),
		deferredResults: desc("deferred_results", "Replies waiting for a deferred result"),
		streams:         desc("streams", "Created streams"),
		bytesRead:       desc("read_bytes_total", "Bytes read from the transport"),
		bytesWritten:    desc("written_bytes_total", "Bytes written to the transport"),
		idle:            desc("idle", "1 when the direction has been idle past the threshold", "direction"),
	}
}

func (c *ConnectionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pendingMessages
	ch <- c.pendingCalls
	ch <- c.deferredResults
	ch <- c.streams
	ch <- c.bytesRead
	ch <- c.bytesWritten
	ch <- c.idle
}

func (c *ConnectionCollector) Collect(ch chan<- prometheus.Metric) {
	conn := c.current()
	if conn == nil {
		return
	}
	s := conn.Stats()

	ch <- prometheus.MustNewConstMetric(c.pendingMessages, prometheus.GaugeValue, float64(s.PendingMessages))
	ch <- prometheus.MustNewConstMetric(c.pendingCalls, prometheus.GaugeValue, float64(s.PendingCalls))
	ch <- prometheus.MustNewConstMetric(c.deferredResults, prometheus.GaugeValue, float64(s.DeferredResults))
	ch <- prometheus.MustNewConstMetric(c.streams, prometheus.GaugeValue, float64(s.Streams))
	ch <- prometheus.MustNewConstMetric(c.bytesRead, prometheus.CounterValue, float64(s.BytesRead))
	ch <- prometheus.MustNewConstMetric(c.bytesWritten, prometheus.CounterValue, float64(s.BytesWritten))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, boolValue(s.ReaderIdle), "read")
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, boolValue(s.WriterIdle), "write")
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
