package reconcile

import "fmt"

// Phase is a step of one user's reconciliation.
type Phase string

const (
	PhaseStart       Phase = "start"
	PhaseScraping    Phase = "scraping"
	PhaseClassifying Phase = "classifying"
	PhaseMutating    Phase = "mutating"
	PhaseRemovalScan Phase = "removal_scan"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// PhaseError is a failure that aborted a user's reconciliation.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
