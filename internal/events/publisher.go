// Package events publishes decision outcomes to Kafka for downstream
// consumers (case management, alerting). Publishing happens strictly after
// commit and is best-effort: a broker outage never affects a recorded
// decision.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/banking/fraud-engine/internal/config"
	"github.com/banking/fraud-engine/internal/domain"
	"github.com/banking/fraud-engine/internal/pkg/logger"
)

// Publisher sends DecisionRecorded events to the decisions topic, plus a
// copy to the alerts topic for anything that was not approved.
type Publisher struct {
	producer       sarama.SyncProducer
	decisionsTopic string
	alertsTopic    string
	log            *logger.Logger
}

// DecisionEvent is the wire format of a published decision.
type DecisionEvent struct {
	EventID   uuid.UUID             `json:"event_id"`
	EventType string                `json:"event_type"`
	Timestamp time.Time             `json:"timestamp"`
	Decision  *domain.FraudDecision `json:"payload"`
}

// NewPublisher connects a synchronous Kafka producer.
func NewPublisher(cfg config.KafkaConfig, log *logger.Logger) (*Publisher, error) {
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer: %w", err)
	}

	return &Publisher{
		producer:       producer,
		decisionsTopic: cfg.DecisionsTopic,
		alertsTopic:    cfg.AlertsTopic,
		log:            log.Named("event_publisher"),
	}, nil
}

// DecisionRecorded publishes a committed decision. REVIEW and BLOCKED
// decisions additionally go to the alerts topic.
func (p *Publisher) DecisionRecorded(ctx context.Context, d *domain.FraudDecision) error {
	event := DecisionEvent{
		EventID:   uuid.New(),
		EventType: "fraud.decision.recorded",
		Timestamp: time.Now().UTC(),
		Decision:  d,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode decision event: %w", err)
	}

	if err := p.send(p.decisionsTopic, d.UserID.String(), payload); err != nil {
		return err
	}
	if d.Decision != domain.DecisionApproved {
		if err := p.send(p.alertsTopic, d.UserID.String(), payload); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) send(topic, key string, payload []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.log.Debug("event published",
		logger.StringField("topic", topic),
		logger.IntField("partition", int(partition)),
		logger.IntField("offset", int(offset)),
	)
	return nil
}

// Close shuts the producer down.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
