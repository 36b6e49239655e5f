package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"affiliate-commission/internal/config"
	"affiliate-commission/internal/metrics"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaWriter(cfg config.Kafka, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true, // never block the order request on the broker
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				metrics.NotificationErrors.Add(float64(len(messages)))
				logger.Error("failed to publish affiliate events", zap.Int("count", len(messages)), zap.Error(err))
			}
		},
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
	}
}

func NewKafkaPublisher(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) PublishAffiliateCreated(ctx context.Context, event AffiliateCreated) error {
	event.Type = EventAffiliateCreated
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal affiliate event: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AffiliateID),
		Value: data,
		Time:  event.OccurredAt,
	})
}

// Consumer reads affiliate events and sends the welcome mail. Delivery
// failures are logged and the offset still advances.
type Consumer struct {
	reader *kafka.Reader
	mailer Mailer
	logger *zap.Logger
}

func NewConsumer(cfg config.Kafka, mailer Mailer, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 1 << 20,
		}),
		mailer: mailer,
		logger: logger,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read affiliate event: %w", err)
		}
		c.Handle(msg.Value)
	}
}

func (c *Consumer) Handle(value []byte) {
	var event AffiliateCreated
	if err := json.Unmarshal(value, &event); err != nil {
		c.logger.Error("skip undecodable affiliate event", zap.Error(err))
		return
	}
	if event.Type != "" && event.Type != EventAffiliateCreated {
		return
	}

	subject, body := affiliateCreatedMail(event)
	if err := c.mailer.Send(event.Email, subject, body); err != nil {
		metrics.NotificationErrors.Inc()
		c.logger.Warn("affiliate welcome mail failed",
			zap.String("affiliate_id", event.AffiliateID),
			zap.Error(err),
		)
		return
	}

	c.logger.Info("affiliate welcome mail sent", zap.String("affiliate_id", event.AffiliateID))
}
