package orchestrator

import (
	"errors"

	"github.com/lexybrain/backend/internal/modelclient"
	"github.com/lexybrain/backend/internal/quota"
)

// Kind is the machine-readable classification of a terminal failure. Callers
// branch on it, never on the message text.
type Kind string

const (
	KindNoData           Kind = "no_data"
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindCostCapReached   Kind = "cost_cap_reached"
	KindGenerationFailed Kind = "generation_failed"
)

// ErrNoReliableData covers both unresolvable keyword identifiers and empty
// corpus retrieval. Refusing to answer beats answering without grounding.
var ErrNoReliableData = errors.New("no reliable data for this request")

// FailureKind classifies a pipeline error into its terminal kind. The second
// return is false for errors that are not part of the failure taxonomy
// (infrastructure faults the caller should treat as internal).
func FailureKind(err error) (Kind, bool) {
	if errors.Is(err, ErrNoReliableData) {
		return KindNoData, true
	}

	var quotaErr *quota.ExceededError
	if errors.As(err, &quotaErr) {
		return KindQuotaExceeded, true
	}

	var capErr *quota.CostCapError
	if errors.As(err, &capErr) {
		return KindCostCapReached, true
	}

	var unavailErr *modelclient.UnavailableError
	if errors.As(err, &unavailErr) {
		return KindGenerationFailed, true
	}

	var validationErr *modelclient.ValidationError
	if errors.As(err, &validationErr) {
		return KindGenerationFailed, true
	}

	return "", false
}
