package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
)

// State is a step of the transfer saga.
type State string

const (
	StateBuilt                 State = "BUILT"
	StateSigned                State = "SIGNED"
	StateLocallyVerified       State = "LOCALLY_VERIFIED"
	StateSubmitted             State = "SUBMITTED"
	StateSourceConfirmed       State = "SOURCE_CONFIRMED"
	StateProofObtained         State = "PROOF_OBTAINED"
	StateContinuationSigned    State = "CONTINUATION_SIGNED"
	StateContinuationVerified  State = "CONTINUATION_VERIFIED"
	StateContinuationSubmitted State = "CONTINUATION_SUBMITTED"
	StateFailed                State = "FAILED"
)

var (
	singlePath = []State{StateBuilt, StateSigned, StateLocallyVerified, StateSubmitted}
	crossPath  = []State{
		StateBuilt, StateSigned, StateLocallyVerified, StateSubmitted,
		StateSourceConfirmed, StateProofObtained,
		StateContinuationSigned, StateContinuationVerified, StateContinuationSubmitted,
	}
)

// Recorder persists saga snapshots.
type Recorder interface {
	Save(ctx context.Context, action Action) error
}

// TransitionHook observes every accepted transition.
type TransitionHook func(action Action)

// Saga enforces the ordered state path of one action and records each step.
type Saga struct {
	action   Action
	path     []State
	recorder Recorder
	hooks    []TransitionHook
	log      *logrus.Entry
}

type SagaOption func(*Saga)

func WithRecorder(r Recorder) SagaOption {
	return func(s *Saga) { s.recorder = r }
}

func WithHook(h TransitionHook) SagaOption {
	return func(s *Saga) {
		if h != nil {
			s.hooks = append(s.hooks, h)
		}
	}
}

func WithLogger(log *logrus.Entry) SagaOption {
	return func(s *Saga) {
		if log != nil {
			s.log = log
		}
	}
}

func NewSaga(action Action, crossChain bool, opts ...SagaOption) *Saga {
	path := singlePath
	if crossChain {
		path = crossPath
	}
	s := &Saga{action: action, path: path, log: logrus.NewEntry(logrus.StandardLogger())}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Saga) Action() Action { return s.action }

func (s *Saga) State() State { return s.action.State }

func (s *Saga) IsTerminal() bool {
	return s.action.State == StateFailed || s.action.State == s.path[len(s.path)-1]
}

// Mutate applies fn to the record without changing state.
func (s *Saga) Mutate(fn func(*Action)) {
	fn(&s.action)
}

func (s *Saga) next() State {
	if s.action.State == "" {
		return s.path[0]
	}
	for i, st := range s.path {
		if st == s.action.State && i+1 < len(s.path) {
			return s.path[i+1]
		}
	}
	return ""
}

// Advance moves to next, which must be the following state on the path.
func (s *Saga) Advance(ctx context.Context, next State) error {
	if s.IsTerminal() {
		return clierr.New(clierr.CodeInternal, fmt.Sprintf("saga %s is terminal in state %s", s.action.ActionID, s.action.State))
	}
	if want := s.next(); next != want {
		return clierr.New(clierr.CodeInternal, fmt.Sprintf("invalid saga transition %s -> %s", s.action.State, next))
	}
	s.apply(next, "")
	if s.IsTerminal() {
		s.action.Status = ActionStatusCompleted
	} else {
		s.action.Status = ActionStatusRunning
	}
	s.record(ctx)
	return nil
}

// Fail moves a non-terminal saga to FAILED and returns cause unchanged.
func (s *Saga) Fail(ctx context.Context, cause error) error {
	if s.IsTerminal() {
		return cause
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	markStepFailed(&s.action, msg)
	s.apply(StateFailed, msg)
	s.record(ctx)
	return cause
}

func (s *Saga) apply(state State, errMsg string) {
	s.action.State = state
	s.action.Transitions = append(s.action.Transitions, Transition{
		State: state,
		At:    time.Now().UTC().Format(time.RFC3339Nano),
		Error: errMsg,
	})
	s.action.Touch()
}

// record logs store failures instead of returning them.
func (s *Saga) record(ctx context.Context) {
	s.log.WithFields(logrus.Fields{
		"action_id": s.action.ActionID,
		"state":     s.action.State,
	}).Info("saga transition")
	for _, hook := range s.hooks {
		hook(s.action)
	}
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Save(context.WithoutCancel(ctx), s.action); err != nil {
		s.log.WithError(err).WithField("action_id", s.action.ActionID).Warn("record saga state")
	}
}
