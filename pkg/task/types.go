// Package task owns task records and the lifecycle state machine. It
// calls into the escrow ledger to lock, release and refund funds; it
// never holds funds directly.
package task

import (
	"errors"
	"time"

	"github.com/airinterface/contract-safe/pkg/escrow"
	"github.com/airinterface/contract-safe/pkg/principal"
)

// State represents the lifecycle of a task.
type State string

const (
	StateCreated           State = "CREATED"
	StateWorking           State = "WORKING"
	StateApprovalRequested State = "APPROVAL_REQUESTED"
	StateValidating        State = "VALIDATING"
	StateProcessingPayment State = "PROCESSING_PAYMENT"
	StateRefunded          State = "REFUNDED"
)

// validTransitions is the exhaustive table; any pair not listed is
// invalid. ProcessingPayment and Refunded are terminal. Validating is
// traversed inside ApproveWork and never persisted.
var validTransitions = map[State][]State{
	StateCreated:           {StateWorking},
	StateWorking:           {StateApprovalRequested},
	StateApprovalRequested: {StateValidating, StateRefunded},
	StateValidating:        {StateProcessingPayment},
}

// IsValidTransition reports whether from → to appears in the lifecycle
// transition table.
func IsValidTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AgentValidation is the sidecar record present when the validator is an
// automated agent. The controller stores it but never evaluates it; that
// judgment belongs to the external validation service.
type AgentValidation struct {
	Endpoint            string `json:"endpoint"`
	Criteria            string `json:"criteria"`
	ConfidenceThreshold int    `json:"confidence_threshold"` // 1..100
}

// Task is one unit of escrowed work.
type Task struct {
	ID             int64               `json:"id"`
	Creator        principal.Principal `json:"creator"`
	Contributor    principal.Principal `json:"contributor"`
	Validator      principal.Principal `json:"validator"`
	Asset          escrow.Asset        `json:"asset"`
	Amount         int64               `json:"amount"`
	ContributorPct int                 `json:"contributor_pct"`
	ValidatorPct   int                 `json:"validator_pct"`
	State          State               `json:"state"`
	DescriptionRef string              `json:"description_ref"`
	ArtifactRef    string              `json:"artifact_ref,omitempty"`
	Agent          *AgentValidation    `json:"agent,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Payout splits the escrow amount per the stored percentages. The
// contributor share is floored; the validator receives the remainder so
// the two always sum to the escrow amount exactly.
func (t *Task) Payout() (contributor, validator int64) {
	contributor = t.Amount * int64(t.ContributorPct) / 100
	validator = t.Amount - contributor
	return contributor, validator
}

var (
	// ErrZeroAddress is returned when a required principal is absent.
	ErrZeroAddress = errors.New("zero principal")

	// ErrSameParty is returned when creator, contributor and validator
	// are not three distinct principals.
	ErrSameParty = errors.New("creator, contributor and validator must be distinct")

	// ErrInvalidPercentages is returned unless both shares are positive
	// and sum to exactly 100.
	ErrInvalidPercentages = errors.New("shares must be positive and sum to 100")

	// ErrZeroAmount is returned for a non-positive funded amount.
	ErrZeroAmount = errors.New("funded amount must be positive")

	// ErrNotContributor is returned when the caller is not the task's
	// contributor.
	ErrNotContributor = errors.New("caller is not the contributor")

	// ErrNotValidator is returned when the caller is not the task's
	// validator.
	ErrNotValidator = errors.New("caller is not the validator")

	// ErrInvalidState is returned when the operation is not valid in
	// the task's current lifecycle state.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrEmptyArtifact is returned for a submission without an artifact
	// reference.
	ErrEmptyArtifact = errors.New("artifact reference must not be empty")

	// ErrEmptyEndpoint is returned for an agent task without an
	// endpoint reference.
	ErrEmptyEndpoint = errors.New("agent endpoint must not be empty")

	// ErrEmptyCriteria is returned for an agent task without evaluation
	// criteria.
	ErrEmptyCriteria = errors.New("agent criteria must not be empty")

	// ErrInvalidThreshold is returned for a confidence threshold
	// outside 1..100.
	ErrInvalidThreshold = errors.New("confidence threshold must be in 1..100")

	// ErrTaskNotFound is returned when no task exists for the given id.
	ErrTaskNotFound = errors.New("task not found")
)
