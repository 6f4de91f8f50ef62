// Package kafka publishes audit events to a Kafka topic. Kafka is the
// durable sink for the audit trail in deployments; tests and single-node
// setups use the in-memory store instead.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "lumenpay/pkg/platform/audit"
)

// Store implements audit.Store by producing one JSON record per event, keyed
// by owner so per-owner ordering is preserved within a partition.
type Store struct {
	client *kgo.Client
	topic  string
}

// payload is the wire shape. Field names are part of the consumer contract.
type payload struct {
	Timestamp string `json:"timestamp"`
	OwnerID   string `json:"owner_id,omitempty"`
	Action    string `json:"action"`
	Handle    string `json:"handle,omitempty"`
	Address   string `json:"address,omitempty"`
	TxRef     string `json:"tx_ref,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// New connects a producer to the given brokers.
func New(brokers []string, topic string) (*Store, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Store{client: client, topic: topic}, nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	body, err := json.Marshal(payload{
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		OwnerID:   event.OwnerID,
		Action:    event.Action,
		Handle:    event.Handle,
		Address:   event.Address,
		TxRef:     event.TxRef,
		Reason:    event.Reason,
		RequestID: event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.OwnerID),
		Value: body,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.client.Close()
}
