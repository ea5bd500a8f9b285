package conn

import (
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
	"io"
	"time"
)

// stats are the metrics of one connection. Every connection has its own set, so
// several connections to the same endpoint can exist in one process.
type stats struct {
	set *metrics.Set

	framesSent     *metrics.Counter
	framesReceived *metrics.Counter
	bytesSent      *metrics.Counter
	bytesReceived  *metrics.Counter
	requests       *metrics.Counter
	unsolicited    *metrics.Counter
	dispatchErrors *metrics.Counter
	writeErrors    *metrics.Counter
	connects       *metrics.Counter
	resets         *metrics.Counter

	// latency of successful calls
	latency gometrics.Timer
}

func newStats(c *Connection) *stats {
	set := metrics.NewSet()
	label := fmt.Sprintf(`{endpoint=%q}`, c.config.Endpoint)
	name := func(metric string) string {
		return "rconn_client_" + metric + label
	}

	s := &stats{
		set:            set,
		framesSent:     set.NewCounter(name("frames_sent_total")),
		framesReceived: set.NewCounter(name("frames_received_total")),
		bytesSent:      set.NewCounter(name("bytes_sent_total")),
		bytesReceived:  set.NewCounter(name("bytes_received_total")),
		requests:       set.NewCounter(name("requests_total")),
		unsolicited:    set.NewCounter(name("unsolicited_frames_total")),
		dispatchErrors: set.NewCounter(name("dispatch_errors_total")),
		writeErrors:    set.NewCounter(name("write_errors_total")),
		connects:       set.NewCounter(name("connect_attempts_total")),
		resets:         set.NewCounter(name("resets_total")),
		latency:        gometrics.NewTimer(),
	}

	set.NewGauge(name("state"), func() float64 {
		return float64(c.State())
	})
	set.NewGauge(name("pending_requests"), func() float64 {
		return float64(c.pending.Len())
	})
	set.NewGauge(name("requests_expired"), func() float64 {
		return float64(c.pending.Stats().Expired)
	})
	for _, q := range []float64{0.5, 0.99} {
		quantile := fmt.Sprintf(`rconn_client_call_duration_seconds{endpoint=%q,quantile="%g"}`, c.config.Endpoint, q)
		set.NewGauge(quantile, func() float64 {
			return time.Duration(s.latency.Percentile(q)).Seconds()
		})
	}
	return s
}

func (s *stats) frameSent(size int) {
	s.framesSent.Inc()
	s.bytesSent.Add(size)
}

func (s *stats) frameReceived(size int) {
	s.framesReceived.Inc()
	s.bytesReceived.Add(size)
}

func (s *stats) write(w io.Writer) {
	s.set.WritePrometheus(w)
}
