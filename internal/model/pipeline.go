package model

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus is the lifecycle state of a PipelineStep or Pipeline.
//
// Pending is the only non-terminal state: Completed, Failed, and Cancelled
// are all terminal and must never transition further.
type StepStatus string

const (
	StepPending   StepStatus = "Pending"
	StepCompleted StepStatus = "Completed"
	StepFailed    StepStatus = "Failed"
	StepCancelled StepStatus = "Cancelled"
)

// Terminal reports whether status admits no further transitions.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepCancelled
}

// SwapOrder describes a single on-chain (or cross-chain bridge) swap.
// When FromChain != ToChain it is a bridge order.
type SwapOrder struct {
	InputAsset     Asset    `json:"input_asset"`
	OutputAsset    Asset    `json:"output_asset"`
	AmountBaseUnit string   `json:"amount_base_units"`
	FromChain      ChainRef `json:"from_chain"`
	ToChain        ChainRef `json:"to_chain"`
}

// IsBridge reports whether the order crosses chains.
func (s SwapOrder) IsBridge() bool {
	return s.FromChain != s.ToChain
}

// ActionKind discriminates Action variants.
type ActionKind string

const (
	ActionOrder        ActionKind = "Order"
	ActionNotification ActionKind = "Notification"
)

// Action is the effect a PipelineStep performs once its conditions fire.
// Exactly one of Order/Message is meaningful, selected by Kind.
type Action struct {
	Kind    ActionKind `json:"kind"`
	Order   *SwapOrder `json:"order,omitempty"`
	Message string     `json:"message,omitempty"`
}

// OrderAction builds an Order action.
func OrderAction(order SwapOrder) Action {
	return Action{Kind: ActionOrder, Order: &order}
}

// NotificationAction builds a Notification action.
func NotificationAction(message string) Action {
	return Action{Kind: ActionNotification, Message: message}
}

// PipelineStep is a single node in a pipeline's step DAG.
type PipelineStep struct {
	ID             uuid.UUID   `json:"id"`
	Action         Action      `json:"action"`
	Conditions     []Condition `json:"conditions"`
	NextSteps      []uuid.UUID `json:"next_steps"`
	Status         StepStatus  `json:"status"`
	TransactionHash string     `json:"transaction_hash,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// Pipeline is a user-owned DAG of steps gated by conditions on asset prices.
type Pipeline struct {
	ID           uuid.UUID                    `json:"id"`
	UserID       string                       `json:"user_id"`
	EVMAddress   string                       `json:"evm_address,omitempty"`
	AltAddress   string                       `json:"alt_address,omitempty"`
	CurrentSteps []uuid.UUID                  `json:"current_steps"`
	Steps        map[uuid.UUID]*PipelineStep  `json:"steps"`
	Status       StepStatus                   `json:"status"`
	CreatedAt    time.Time                    `json:"created_at"`
}

// NewPipeline constructs a Pipeline with a fresh id and Pending status. The
// caller supplies the step set and the graph's roots; a copy of roots
// becomes current_steps.
func NewPipeline(userID string, steps map[uuid.UUID]*PipelineStep, roots []uuid.UUID) *Pipeline {
	return &Pipeline{
		ID:           uuid.New(),
		UserID:       userID,
		CurrentSteps: append([]uuid.UUID(nil), roots...),
		Steps:        steps,
		Status:       StepPending,
		CreatedAt:    time.Now().UTC(),
	}
}

// Clone returns a copy, used by store backends to avoid handing out aliased
// mutable state to callers. CurrentSteps, the Steps map, each step struct and
// each step's Conditions and NextSteps slices are copied; values those
// reach further down (a condition's nested sub-conditions, pointer fields
// such as an Order action) are shared with the original.
func (p *Pipeline) Clone() *Pipeline {
	if p == nil {
		return nil
	}
	cp := *p
	cp.CurrentSteps = append([]uuid.UUID(nil), p.CurrentSteps...)
	cp.Steps = make(map[uuid.UUID]*PipelineStep, len(p.Steps))
	for id, step := range p.Steps {
		s := *step
		s.Conditions = append([]Condition(nil), step.Conditions...)
		s.NextSteps = append([]uuid.UUID(nil), step.NextSteps...)
		cp.Steps[id] = &s
	}
	return &cp
}
