package domain

// DispatchOutcome is the result of one message within a bulk dispatch.
type DispatchOutcome struct {
	To                string
	Success           bool
	SentEmailID       string
	ProviderMessageID string
	Error             string
}

// DispatchFailure pairs a recipient with the error that prevented its send.
type DispatchFailure struct {
	To    string
	Error string
}

// DispatchResult aggregates the outcomes of one bulk dispatch. It is never persisted.
type DispatchResult struct {
	Attempted int
	Sent      int
	Failed    int
	Success   bool
	Errors    []DispatchFailure
	Outcomes  []DispatchOutcome
}

func NewDispatchResult(capacity int) *DispatchResult {
	return &DispatchResult{
		Errors:   make([]DispatchFailure, 0),
		Outcomes: make([]DispatchOutcome, 0, capacity),
	}
}

// Record appends an outcome and keeps the counters consistent.
func (r *DispatchResult) Record(outcome DispatchOutcome) {
	r.Attempted++
	r.Outcomes = append(r.Outcomes, outcome)
	if outcome.Success {
		r.Sent++
		r.Success = true
		return
	}
	r.Failed++
	r.Errors = append(r.Errors, DispatchFailure{To: outcome.To, Error: outcome.Error})
}
