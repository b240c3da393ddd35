// Package events publishes saga transitions to an event stream.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/kadena-cli/internal/execution"
)

type SagaEvent struct {
	ActionID   string `json:"action_id"`
	Intent     string `json:"intent"`
	State      string `json:"state"`
	RequestKey string `json:"request_key,omitempty"`
	FromChain  string `json:"from_chain"`
	ToChain    string `json:"to_chain,omitempty"`
	Amount     string `json:"amount,omitempty"`
	Error      string `json:"error,omitempty"`
	At         string `json:"at"`
}

func FromAction(action execution.Action) SagaEvent {
	ev := SagaEvent{
		ActionID:   action.ActionID,
		Intent:     action.IntentType,
		State:      string(action.State),
		RequestKey: action.RequestKey,
		FromChain:  action.ChainID,
		ToChain:    action.TargetChainID,
		Amount:     action.InputAmount,
		At:         action.UpdatedAt,
	}
	if n := len(action.Transitions); n > 0 {
		last := action.Transitions[n-1]
		ev.Error = last.Error
		ev.At = last.At
	}
	return ev
}

type Emitter interface {
	Emit(ctx context.Context, event SagaEvent) error
	Close() error
}

type Noop struct{}

func (Noop) Emit(context.Context, SagaEvent) error { return nil }
func (Noop) Close() error                          { return nil }

// KafkaEmitter writes one message per event, keyed by action id so every
// event of a saga lands on the same partition.
type KafkaEmitter struct {
	writer *kafka.Writer
	mu     sync.Mutex
	log    *logrus.Entry
}

func NewKafkaEmitter(brokers []string, topic string, log *logrus.Entry) (*KafkaEmitter, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka topic is required")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &KafkaEmitter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: 5 * time.Second,
		},
		log: log,
	}, nil
}

func (k *KafkaEmitter) Emit(ctx context.Context, event SagaEvent) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.writer == nil {
		return errors.New("kafka emitter is closed")
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal saga event: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(event.ActionID), Value: value}); err != nil {
		return fmt.Errorf("write saga event: %w", err)
	}
	k.log.WithFields(logrus.Fields{"action_id": event.ActionID, "state": event.State}).Debug("emitted saga event")
	return nil
}

func (k *KafkaEmitter) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.writer != nil {
		err := k.writer.Close()
		k.writer = nil
		return err
	}
	return nil
}

// Hook adapts an emitter to a saga transition hook. Emit failures are logged.
func Hook(emitter Emitter, log *logrus.Entry) execution.TransitionHook {
	if emitter == nil {
		return nil
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return func(action execution.Action) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := emitter.Emit(ctx, FromAction(action)); err != nil {
			log.WithError(err).WithField("action_id", action.ActionID).Warn("emit saga event")
		}
	}
}
