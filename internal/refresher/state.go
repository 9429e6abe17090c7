package refresher

import "time"

// Trigger names what started a refresh. It is used as a metric label.
type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerTimer    Trigger = "timer"
	TriggerOnDemand Trigger = "on_demand"
)

// State is the outcome of the most recent completed refresh attempt.
// A State value is never modified after publication.
type State struct {
	// LastRefreshTime is when the last successful fetch completed.
	// It is nil until the first success and is not moved by failures.
	LastRefreshTime *time.Time `json:"lastRefreshTime"`
	// LastRefreshSucceeded reports whether the latest attempt fetched rules.
	LastRefreshSucceeded bool `json:"lastRefreshSucceeded"`

	LastAttemptTime *time.Time `json:"lastAttemptTime,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
	FetchedRules    int        `json:"fetchedRules"`
	CompiledRules   int        `json:"compiledRules"`
	FailedRules     int        `json:"failedRules"`
}

func (s *State) failed(at time.Time, err error) *State {
	next := *s
	next.LastRefreshSucceeded = false
	next.LastAttemptTime = &at
	next.LastError = err.Error()
	return &next
}

func succeeded(at time.Time, fetched, compiled int) *State {
	return &State{
		LastRefreshTime:      &at,
		LastRefreshSucceeded: true,
		LastAttemptTime:      &at,
		FetchedRules:         fetched,
		CompiledRules:        compiled,
		FailedRules:          fetched - compiled,
	}
}
