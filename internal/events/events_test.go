package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/kadena-cli/internal/execution"
)

type recordingEmitter struct {
	events []SagaEvent
	err    error
}

func (r *recordingEmitter) Emit(_ context.Context, ev SagaEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingEmitter) Close() error { return nil }

func TestFromActionUsesLastTransition(t *testing.T) {
	action := execution.NewAction("a1", execution.IntentTransfer, "mainnet01", "1")
	action.TargetChainID = "3"
	action.InputAmount = "5.000000000000"
	action.RequestKey = "req-1"
	action.State = execution.StateFailed
	action.Transitions = []execution.Transition{
		{State: execution.StateBuilt, At: "t1"},
		{State: execution.StateFailed, At: "t2", Error: "proof unavailable"},
	}

	ev := FromAction(action)
	assert.Equal(t, SagaEvent{
		ActionID:   "a1",
		Intent:     "transfer",
		State:      "FAILED",
		RequestKey: "req-1",
		FromChain:  "1",
		ToChain:    "3",
		Amount:     "5.000000000000",
		Error:      "proof unavailable",
		At:         "t2",
	}, ev)
}

func TestHookEmitsAndSwallowsErrors(t *testing.T) {
	rec := &recordingEmitter{err: errors.New("broker down")}
	hook := Hook(rec, nil)
	require.NotNil(t, hook)

	saga := execution.NewSaga(execution.NewAction("a2", execution.IntentSwap, "mainnet01", "1"), false, execution.WithHook(hook))
	require.NoError(t, saga.Advance(context.Background(), execution.StateBuilt))
	require.Len(t, rec.events, 1)
	assert.Equal(t, "BUILT", rec.events[0].State)

	assert.Nil(t, Hook(nil, nil))
}

func TestNewKafkaEmitterValidation(t *testing.T) {
	_, err := NewKafkaEmitter(nil, "sagas", nil)
	assert.Error(t, err)
	_, err = NewKafkaEmitter([]string{"localhost:9092"}, " ", nil)
	assert.Error(t, err)

	emitter, err := NewKafkaEmitter([]string{"localhost:9092"}, "sagas", nil)
	require.NoError(t, err)
	require.NoError(t, emitter.Close())
	assert.Error(t, emitter.Emit(context.Background(), SagaEvent{ActionID: "a"}))
}
