// Package metrics records workflow events and serves them to Prometheus.
package metrics

import "time"

// Event and operation names shared by the workflow components.
const (
	EventProbe        = "probe"
	EventConnect      = "wallet_connect"
	EventEncryption   = "encryption"
	EventRegistration = "registration"
)

// Recorder receives workflow events. Labels other than "outcome" are ignored.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Outcome is a shorthand for the outcome label set.
func Outcome(outcome string) map[string]string {
	return map[string]string{"outcome": outcome}
}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
