package execution

import "time"

type ActionStatus string

type StepStatus string

type StepType string

const (
	ActionStatusPlanned   ActionStatus = "planned"
	ActionStatusRunning   ActionStatus = "running"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusVerified  StepStatus = "verified"
	StepStatusSubmitted StepStatus = "submitted"
	StepStatusConfirmed StepStatus = "confirmed"
	StepStatusFailed    StepStatus = "failed"
)

const (
	StepTypeTransfer     StepType = "transfer"
	StepTypeXChainInit   StepType = "xchain_init"
	StepTypeContinuation StepType = "xchain_continuation"
	StepTypeSwap         StepType = "swap"
)

const (
	IntentTransfer = "transfer"
	IntentSwap     = "swap"
)

type ActionStep struct {
	StepID      string     `json:"step_id"`
	Type        StepType   `json:"type"`
	Status      StepStatus `json:"status"`
	ChainID     string     `json:"chain_id"`
	Description string     `json:"description,omitempty"`
	RequestKey  string     `json:"request_key,omitempty"`
	PactID      string     `json:"pact_id,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type Transition struct {
	State State  `json:"state"`
	At    string `json:"at"`
	Error string `json:"error,omitempty"`
}

// Action is the persisted record of one transfer or swap. It is written for
// inspection only; nothing reads it back to resume work.
type Action struct {
	ActionID      string            `json:"action_id"`
	IntentType    string            `json:"intent_type"`
	Provider      string            `json:"provider,omitempty"`
	Status        ActionStatus      `json:"status"`
	State         State             `json:"state"`
	Network       string            `json:"network"`
	ChainID       string            `json:"chain_id"`
	TargetChainID string            `json:"target_chain_id,omitempty"`
	FromAccount   string            `json:"from_account,omitempty"`
	ToAccount     string            `json:"to_account,omitempty"`
	InputAmount   string            `json:"input_amount,omitempty"`
	RequestKey    string            `json:"request_key,omitempty"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
	Steps         []ActionStep      `json:"steps"`
	Transitions   []Transition      `json:"transitions"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func NewAction(actionID, intentType, network, chainID string) Action {
	now := time.Now().UTC().Format(time.RFC3339)
	return Action{
		ActionID:    actionID,
		IntentType:  intentType,
		Status:      ActionStatusPlanned,
		Network:     network,
		ChainID:     chainID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Steps:       []ActionStep{},
		Transitions: []Transition{},
	}
}

func (a *Action) Touch() {
	a.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// Step returns the step with the given id, or nil.
func (a *Action) Step(stepID string) *ActionStep {
	for i := range a.Steps {
		if a.Steps[i].StepID == stepID {
			return &a.Steps[i]
		}
	}
	return nil
}

func (a *Action) AddStep(step ActionStep) *ActionStep {
	if step.Status == "" {
		step.Status = StepStatusPending
	}
	a.Steps = append(a.Steps, step)
	return &a.Steps[len(a.Steps)-1]
}

func markStepFailed(action *Action, msg string) {
	for i := range action.Steps {
		step := &action.Steps[i]
		if step.Status != StepStatusConfirmed {
			step.Status = StepStatusFailed
			step.Error = msg
			break
		}
	}
	action.Status = ActionStatusFailed
}
