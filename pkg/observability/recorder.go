// Package observability declares the metrics the treasury services report.
// The Prometheus implementation lives in infra/observability.
package observability

import "time"

// Recorder receives business metrics from the services.
type Recorder interface {
	LedgerWrite(pool, direction string)
	Settlement(pool string, ok bool, d time.Duration)
	BatchTransition(to string)
	CompOutcome(outcome string)
	Sunset(percentage float64, triggered bool)
}

// Nop discards every metric.
type Nop struct{}

func (Nop) LedgerWrite(string, string) {}
func (Nop) Settlement(string, bool, time.Duration) {}
func (Nop) BatchTransition(string) {}
func (Nop) CompOutcome(string) {}
func (Nop) Sunset(float64, bool) {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
