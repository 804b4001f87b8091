package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-checkin/internal/models"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	Writer       *kafka.Writer
	ScanTopic    string
	CheckInTopic string
}

func NewProducer(brokers []string, scanTopic, checkInTopic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
	})
	return &Producer{
		Writer:       writer,
		ScanTopic:    scanTopic,
		CheckInTopic: checkInTopic,
	}
}

// PublishScanRecorded streams every scan attempt, whatever its outcome.
func (p *Producer) PublishScanRecorded(event models.ScanEvent) error {
	return p.publish(p.ScanTopic, event)
}

// PublishGuestCheckedIn streams only successful first check-ins.
func (p *Producer) PublishGuestCheckedIn(event models.ScanEvent) error {
	return p.publish(p.CheckInTopic, event)
}

func (p *Producer) publish(topic string, event models.ScanEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal scan event: %w", err)
	}

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(event.EventID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
