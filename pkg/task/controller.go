package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/airinterface/contract-safe/pkg/escrow"
	"github.com/airinterface/contract-safe/pkg/event"
	"github.com/airinterface/contract-safe/pkg/principal"
)

// Ledger is the slice of the escrow ledger the controller needs. The
// controller presents its own identity as the caller; bootstrap wiring
// must have admitted that identity to the ledger's authorized set.
type Ledger interface {
	Deposit(ctx context.Context, caller principal.Principal, taskID int64, asset escrow.Asset, amount, supplied int64) error
	Release(ctx context.Context, caller principal.Principal, taskID int64, asset escrow.Asset, recipients []principal.Principal, amounts []int64) error
	Refund(ctx context.Context, caller principal.Principal, taskID int64, asset escrow.Asset, recipient principal.Principal, amount int64) error
}

// Controller runs the task lifecycle. Each task id is a single-writer
// resource: every transition holds that task's lock for its full
// duration, including nested ledger calls, so operations either fully
// commit or fully abort with no partial interleaving visible.
type Controller struct {
	self  principal.Principal
	asset escrow.Asset

	ledger Ledger
	emit   event.Emitter
	log    *slog.Logger
	clock  func() time.Time

	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*Task
	locks  map[int64]*sync.Mutex
}

// NewController creates a Controller. self is the identity it presents
// to the ledger; asset is the designated default asset for escrow
// deposits. The emitter may be nil.
func NewController(self principal.Principal, asset escrow.Asset, ledger Ledger, emit event.Emitter) *Controller {
	return NewControllerWithClock(self, asset, ledger, emit, time.Now)
}

// NewControllerWithClock injects the clock, for tests.
func NewControllerWithClock(self principal.Principal, asset escrow.Asset, ledger Ledger, emit event.Emitter, clock func() time.Time) *Controller {
	if emit == nil {
		emit = event.Nop{}
	}
	return &Controller{
		self:   self,
		asset:  asset,
		ledger: ledger,
		emit:   emit,
		log:    slog.Default().With("component", "task"),
		clock:  clock,
		nextID: 1,
		tasks:  make(map[int64]*Task),
		locks:  make(map[int64]*sync.Mutex),
	}
}

// CreateTask validates the task invariants, assigns the next id, stores
// the record in Created state and locks the full funded amount in
// escrow. The caller becomes the creator. Returns the new task id.
func (c *Controller) CreateTask(ctx context.Context, caller, contributor, validator principal.Principal, contributorPct, validatorPct int, descriptionRef string, fundedAmount int64) (int64, error) {
	return c.create(ctx, caller, contributor, validator, contributorPct, validatorPct, descriptionRef, fundedAmount, nil)
}

// CreateTaskWithAgent is CreateTask plus the agent-validation sidecar.
// The lifecycle is identical: the validator principal, human or
// automated, is whoever may call ApproveWork/RejectWork.
func (c *Controller) CreateTaskWithAgent(ctx context.Context, caller, contributor, validator principal.Principal, contributorPct, validatorPct int, descriptionRef string, fundedAmount int64, endpoint, criteria string, confidenceThreshold int) (int64, error) {
	if endpoint == "" {
		return 0, ErrEmptyEndpoint
	}
	if criteria == "" {
		return 0, ErrEmptyCriteria
	}
	if confidenceThreshold < 1 || confidenceThreshold > 100 {
		return 0, fmt.Errorf("threshold %d: %w", confidenceThreshold, ErrInvalidThreshold)
	}
	agent := &AgentValidation{
		Endpoint:            endpoint,
		Criteria:            criteria,
		ConfidenceThreshold: confidenceThreshold,
	}
	return c.create(ctx, caller, contributor, validator, contributorPct, validatorPct, descriptionRef, fundedAmount, agent)
}

func (c *Controller) create(ctx context.Context, creator, contributor, validator principal.Principal, contributorPct, validatorPct int, descriptionRef string, fundedAmount int64, agent *AgentValidation) (int64, error) {
	if creator.IsZero() || contributor.IsZero() || validator.IsZero() {
		return 0, ErrZeroAddress
	}
	if creator == contributor || creator == validator || contributor == validator {
		return 0, ErrSameParty
	}
	if contributorPct <= 0 || validatorPct <= 0 || contributorPct+validatorPct != 100 {
		return 0, fmt.Errorf("%d/%d: %w", contributorPct, validatorPct, ErrInvalidPercentages)
	}
	if fundedAmount <= 0 {
		return 0, ErrZeroAmount
	}

	// The id is assigned and the record stored under the global lock so
	// that ids stay contiguous: a failed deposit surrenders the id.
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	if err := c.ledger.Deposit(ctx, c.self, id, c.asset, fundedAmount, fundedAmount); err != nil {
		return 0, fmt.Errorf("escrow deposit for task %d: %w", id, err)
	}
	c.nextID++

	now := c.clock()
	c.tasks[id] = &Task{
		ID:             id,
		Creator:        creator,
		Contributor:    contributor,
		Validator:      validator,
		Asset:          c.asset,
		Amount:         fundedAmount,
		ContributorPct: contributorPct,
		ValidatorPct:   validatorPct,
		State:          StateCreated,
		DescriptionRef: descriptionRef,
		Agent:          agent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	c.locks[id] = &sync.Mutex{}

	c.notify(ctx, event.New(event.TypeTaskCreated, id, creator, map[string]any{
		"creator":     creator.String(),
		"contributor": contributor.String(),
		"validator":   validator.String(),
		"amount":      fundedAmount,
		"agent":       agent != nil,
	}))
	return id, nil
}

// StartWork transitions Created → Working. Contributor only.
func (c *Controller) StartWork(ctx context.Context, caller principal.Principal, taskID int64) error {
	t, lk, err := c.lookup(taskID)
	if err != nil {
		return err
	}
	lk.Lock()
	defer lk.Unlock()

	if caller != t.Contributor {
		return ErrNotContributor
	}
	if !IsValidTransition(t.State, StateWorking) {
		return fmt.Errorf("%s → %s: %w", t.State, StateWorking, ErrInvalidState)
	}

	t.State = StateWorking
	t.UpdatedAt = c.clock()

	c.notify(ctx, event.New(event.TypeTaskWorkingStarted, taskID, caller, map[string]any{
		"contributor": caller.String(),
	}))
	return nil
}

// SubmitWork stores the artifact reference and transitions
// Working → ApprovalRequested. Contributor only.
func (c *Controller) SubmitWork(ctx context.Context, caller principal.Principal, taskID int64, artifactRef string) error {
	t, lk, err := c.lookup(taskID)
	if err != nil {
		return err
	}
	lk.Lock()
	defer lk.Unlock()

	if caller != t.Contributor {
		return ErrNotContributor
	}
	if artifactRef == "" {
		return ErrEmptyArtifact
	}
	if !IsValidTransition(t.State, StateApprovalRequested) {
		return fmt.Errorf("%s → %s: %w", t.State, StateApprovalRequested, ErrInvalidState)
	}

	t.ArtifactRef = artifactRef
	t.State = StateApprovalRequested
	t.UpdatedAt = c.clock()

	c.notify(ctx, event.New(event.TypeApprovalRequested, taskID, caller, map[string]any{
		"artifact_ref": artifactRef,
		"agent":        t.Agent != nil,
	}))
	return nil
}

// ApproveWork walks ApprovalRequested → Validating → ProcessingPayment
// and releases the payout in one atomic unit. Validating is never
// observable from outside the critical section. Validator only. A
// ledger failure aborts the whole operation including the state change.
func (c *Controller) ApproveWork(ctx context.Context, caller principal.Principal, taskID int64) error {
	t, lk, err := c.lookup(taskID)
	if err != nil {
		return err
	}
	lk.Lock()
	defer lk.Unlock()

	if caller != t.Validator {
		return ErrNotValidator
	}
	if !IsValidTransition(t.State, StateValidating) || !IsValidTransition(StateValidating, StateProcessingPayment) {
		return fmt.Errorf("%s → %s: %w", t.State, StateProcessingPayment, ErrInvalidState)
	}

	contributorAmount, validatorAmount := t.Payout()

	// A floored contributor share of zero is a valid outcome; the
	// ledger rejects zero-amount legs, so such a leg is simply omitted.
	recipients := make([]principal.Principal, 0, 2)
	amounts := make([]int64, 0, 2)
	if contributorAmount > 0 {
		recipients = append(recipients, t.Contributor)
		amounts = append(amounts, contributorAmount)
	}
	if validatorAmount > 0 {
		recipients = append(recipients, t.Validator)
		amounts = append(amounts, validatorAmount)
	}

	if err := c.ledger.Release(ctx, c.self, taskID, t.Asset, recipients, amounts); err != nil {
		return fmt.Errorf("release for task %d: %w", taskID, err)
	}

	t.State = StateProcessingPayment
	t.UpdatedAt = c.clock()

	c.notify(ctx, event.New(event.TypeValidationStarted, taskID, caller, nil))
	c.notify(ctx, event.New(event.TypeTaskApproved, taskID, caller, nil))
	c.notify(ctx, event.New(event.TypePaymentProcessed, taskID, caller, map[string]any{
		"contributor_amount": contributorAmount,
		"validator_amount":   validatorAmount,
	}))
	return nil
}

// RejectWork transitions ApprovalRequested → Refunded and returns the
// full escrow amount to the creator. Validator only.
func (c *Controller) RejectWork(ctx context.Context, caller principal.Principal, taskID int64) error {
	t, lk, err := c.lookup(taskID)
	if err != nil {
		return err
	}
	lk.Lock()
	defer lk.Unlock()

	if caller != t.Validator {
		return ErrNotValidator
	}
	if !IsValidTransition(t.State, StateRefunded) {
		return fmt.Errorf("%s → %s: %w", t.State, StateRefunded, ErrInvalidState)
	}

	if err := c.ledger.Refund(ctx, c.self, taskID, t.Asset, t.Creator, t.Amount); err != nil {
		return fmt.Errorf("refund for task %d: %w", taskID, err)
	}

	t.State = StateRefunded
	t.UpdatedAt = c.clock()

	c.notify(ctx, event.New(event.TypeTaskRejected, taskID, caller, nil))
	c.notify(ctx, event.New(event.TypeTaskRefunded, taskID, caller, map[string]any{
		"creator": t.Creator.String(),
		"amount":  t.Amount,
	}))
	return nil
}

// GetTask returns a copy of the task record.
func (c *Controller) GetTask(taskID int64) (Task, error) {
	t, lk, err := c.lookup(taskID)
	if err != nil {
		return Task{}, err
	}
	lk.Lock()
	defer lk.Unlock()

	out := *t
	if t.Agent != nil {
		agent := *t.Agent
		out.Agent = &agent
	}
	return out, nil
}

func (c *Controller) lookup(taskID int64) (*Task, *sync.Mutex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[taskID]
	if !ok {
		return nil, nil, fmt.Errorf("task %d: %w", taskID, ErrTaskNotFound)
	}
	return t, c.locks[taskID], nil
}

func (c *Controller) notify(ctx context.Context, ev event.Event) {
	if err := c.emit.Emit(ctx, ev); err != nil {
		c.log.Error("emit failed", "type", ev.Type, "task_id", ev.TaskID, "error", err)
	}
}
