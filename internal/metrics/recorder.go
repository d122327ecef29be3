// Package metrics defines the observability hooks of the notifier and their
// Prometheus implementation.
package metrics

import "time"

// Outcome labels a finished notification
type Outcome string

const (
	OutcomeScheduled Outcome = "scheduled" // Jenkins answered "Scheduled..."
	OutcomeRejected  Outcome = "rejected"  // Jenkins answered with anything else
	OutcomeError     Outcome = "error"     // transport or configuration failure
)

// Recorder receives notifier events. NoopRecorder is used when metrics are disabled.
type Recorder interface {
	IncEventReceived(kind string)
	IncFilterVeto(filter string)
	IncNotification(outcome Outcome)
	ObserveNotifyDuration(d time.Duration)
	AddInFlight(delta int)
}

// NoopRecorder is a Recorder that does nothing
type NoopRecorder struct{}

func (NoopRecorder) IncEventReceived(string) {}
func (NoopRecorder) IncFilterVeto(string) {}
func (NoopRecorder) IncNotification(Outcome) {}
func (NoopRecorder) ObserveNotifyDuration(time.Duration) {}
func (NoopRecorder) AddInFlight(int) {}
