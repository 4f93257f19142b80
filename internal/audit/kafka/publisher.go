// Package kafka streams audit entries to a Kafka topic so downstream review
// tooling can consume outcomes without touching the archive database.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"medgate/internal/audit"
)

// Publisher implements audit.Store by producing one JSON record per entry.
// Entries are keyed by record identifier so one record's history stays in
// partition order.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// message is the wire shape; field names are part of the consumer contract.
type message struct {
	ID               string    `json:"id"`
	RunID            string    `json:"run_id"`
	LocalID          string    `json:"local_id"`
	Channel          string    `json:"channel"`
	Category         string    `json:"category"`
	Message          string    `json:"message"`
	OriginalCategory string    `json:"original_category,omitempty"`
	OriginalMessage  string    `json:"original_message,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewPublisher connects to the brokers and ensures the topic exists.
func NewPublisher(ctx context.Context, brokers []string, topic string) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure topic %s: %w", topic, err)
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			client.Close()
			return nil, fmt.Errorf("ensure topic %s: %w", topic, res.Err)
		}
	}

	return &Publisher{client: client, topic: topic}, nil
}

func (p *Publisher) Append(ctx context.Context, e audit.Entry) error {
	payload, err := json.Marshal(message{
		ID:               e.ID,
		RunID:            e.RunID,
		LocalID:          e.LocalID,
		Channel:          e.Channel(),
		Category:         string(e.Category),
		Message:          e.Message,
		OriginalCategory: string(e.OriginalCategory),
		OriginalMessage:  e.OriginalMessage,
		Timestamp:        e.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("encode audit message: %w", err)
	}

	rec := &kgo.Record{Topic: p.topic, Key: []byte(e.LocalID), Value: payload}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce audit message: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Close()
}
