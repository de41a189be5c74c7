package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const kafkaWriteTimeout = 5 * time.Second

// MessageWriter is the part of *kafka.Writer the notifier uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes magic link messages as JSON events keyed by user id,
// so all messages for one user land on the same partition.
type KafkaNotifier struct {
	writer MessageWriter
}

// NewKafkaWriter builds the writer for NewKafkaNotifier
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

func (n *KafkaNotifier) Notify(ctx context.Context, msg MagicLinkMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, kafkaWriteTimeout)
	defer cancel()

	err = n.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(msg.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte("magic_link")},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}

// Close closes the writer
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
