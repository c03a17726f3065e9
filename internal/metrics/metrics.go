// Package metrics exports session counters in Prometheus format. The CLI is
// short-lived, so the registry is written to a node_exporter textfile on
// exit instead of being scraped.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"wpplink/internal/session"
	"wpplink/internal/wpp"
)

const namespace = "wpplink"

var _ session.Observer = (*Collector)(nil)

// Collector implements session.Observer.
type Collector struct {
	reg   *prometheus.Registry
	names *wpp.Registry

	framesSent        *prometheus.CounterVec
	framesReceived    *prometheus.CounterVec
	bytesSent         prometheus.Counter
	bytesReceived     prometheus.Counter
	unsolicited       *prometheus.CounterVec
	decodeFailures    prometheus.Counter
	transactions      *prometheus.CounterVec
	transactionFrames *prometheus.HistogramVec
	transactionTime   *prometheus.HistogramVec
	authentications   *prometheus.CounterVec
}

func New(names *wpp.Registry) *Collector {
	if names == nil {
		names = wpp.DefaultRegistry()
	}
	c := &Collector{
		reg:   prometheus.NewRegistry(),
		names: names,
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "frames_sent_total",
			Help:      "Frames written to the transport.",
		}, []string{"command"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "frames_received_total",
			Help:      "Decoded reply frames.",
		}, []string{"command"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "bytes_sent_total",
			Help:      "Encoded frame bytes written.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "bytes_received_total",
			Help:      "Decoded frame bytes received.",
		}),
		unsolicited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "unsolicited_dropped_total",
			Help:      "Unsolicited frames discarded by the engine.",
		}, []string{"command"}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "decode_failures_total",
			Help:      "Frames that could not be decoded.",
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transactions_total",
			Help:      "Finished transactions by outcome.",
		}, []string{"command", "outcome"}),
		transactionFrames: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transaction_frames",
			Help:      "Reply frames merged per transaction.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"command"}),
		transactionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transaction_duration_seconds",
			Help:      "Transaction duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "handshakes_total",
			Help:      "Authentication handshakes by result.",
		}, []string{"result"}),
	}
	c.reg.MustRegister(
		c.framesSent,
		c.framesReceived,
		c.bytesSent,
		c.bytesReceived,
		c.unsolicited,
		c.decodeFailures,
		c.transactions,
		c.transactionFrames,
		c.transactionTime,
		c.authentications,
	)
	return c
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) FrameSent(cmd wpp.CommandID, size int) {
	c.framesSent.WithLabelValues(c.names.CommandName(cmd)).Inc()
	c.bytesSent.Add(float64(size))
}

func (c *Collector) FrameReceived(cmd wpp.CommandID, size int) {
	c.framesReceived.WithLabelValues(c.names.CommandName(cmd)).Inc()
	c.bytesReceived.Add(float64(size))
}

func (c *Collector) UnsolicitedDropped(cmd wpp.CommandID) {
	c.unsolicited.WithLabelValues(c.names.CommandName(cmd)).Inc()
}

func (c *Collector) DecodeFailed(error) {
	c.decodeFailures.Inc()
}

func (c *Collector) TransactionDone(cmd wpp.CommandID, frames int, elapsed time.Duration, err error) {
	name := c.names.CommandName(cmd)
	c.transactions.WithLabelValues(name, Outcome(err)).Inc()
	c.transactionTime.WithLabelValues(name).Observe(elapsed.Seconds())
	if frames > 0 {
		c.transactionFrames.WithLabelValues(name).Observe(float64(frames))
	}
}

// AuthDone records a handshake result: "challenged", "implicit" or "failed".
func (c *Collector) AuthDone(challenged bool, err error) {
	switch {
	case err != nil:
		c.authentications.WithLabelValues("failed").Inc()
	case challenged:
		c.authentications.WithLabelValues("challenged").Inc()
	default:
		c.authentications.WithLabelValues("implicit").Inc()
	}
}

// WriteTextfile atomically writes the current values in the text
// exposition format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Outcome classifies a transaction error for the outcome label.
func Outcome(err error) string {
	var (
		devErr  *session.DeviceError
		lostErr *session.ConnectionLostError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &devErr):
		return "device_error"
	case errors.As(err, &lostErr):
		return "connection_lost"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, wpp.ErrDecode):
		return "decode_error"
	default:
		return "error"
	}
}
