package core

// status.go holds the batch state machine as pure functions so that
// generation, deliverable building and stores share one set of rules.

// BatchEvent is an input to the batch state machine.
type BatchEvent string

const (
	EventGenerationStarted BatchEvent = "generation_started"
	EventGuideDone         BatchEvent = "guide_done"
	EventAllGuidesDone     BatchEvent = "all_guides_done"
	EventFailure           BatchEvent = "failure"
)

// NextStatus returns the status after ev. Completed batches stay completed
// on further guide events so regeneration is idempotent; failed batches
// never move.
func NextStatus(current BatchStatus, ev BatchEvent) BatchStatus {
	if current.Terminal() {
		return current
	}

	switch ev {
	case EventFailure:
		return StatusFailed
	case EventGenerationStarted, EventGuideDone:
		return StatusGenerating
	case EventAllGuidesDone:
		return StatusCompleted
	default:
		return current
	}
}

var validationRank = map[ValidationStatus]int{
	ValidationNone:        0,
	ValidationValidated:   1,
	ValidationHasWarnings: 2,
	ValidationHasBlockers: 3,
}

// MergeValidation combines a batch's validation status with a guide's.
// The more severe status wins, so a batch never downgrades.
func MergeValidation(current, incoming ValidationStatus) ValidationStatus {
	if validationRank[incoming] > validationRank[current] {
		return incoming
	}
	return current
}

// allPlannedDone reports whether every planned guide has an artifact.
func allPlannedDone(b *Batch) bool {
	for _, g := range b.PlannedGuides {
		if _, ok := b.Artifact(g); !ok {
			return false
		}
	}
	return len(b.PlannedGuides) > 0
}
