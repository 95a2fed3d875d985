package trafficlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"trafficcam/internal/logger"
	"trafficcam/internal/model"
)

// KafkaSink publishes traffic logs as JSON messages keyed by camera id.
type KafkaSink struct {
	producer     *kafka.Producer
	topic        string
	deliveryChan chan kafka.Event
	logger       *logger.Logger

	acked  atomic.Int64
	failed atomic.Int64

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewKafkaSink connects a producer to brokers (comma separated bootstrap servers).
func NewKafkaSink(brokers, topic string, logger *logger.Logger) (*KafkaSink, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":   brokers,
		"acks":                "all",
		"enable.idempotence":  true,
		"linger.ms":           50,
		"request.timeout.ms":  30000,
		"delivery.timeout.ms": 120000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	s := &KafkaSink{
		producer:     p,
		topic:        topic,
		deliveryChan: make(chan kafka.Event, 1000),
		logger:       logger,
	}

	s.wg.Add(1)
	go s.handleDeliveryReports()

	logger.Info("Kafka traffic log sink ready - topic: %s, servers: %s", topic, brokers)
	return s, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

// handleDeliveryReports drains delivery events until the channel is closed.
func (s *KafkaSink) handleDeliveryReports() {
	defer s.wg.Done()

	for e := range s.deliveryChan {
		m, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		if m.TopicPartition.Error != nil {
			s.failed.Add(1)
			s.logger.Error("Traffic log delivery failed: %v", m.TopicPartition.Error)
			continue
		}
		s.acked.Add(1)
	}
}

// Record queues one message. Delivery is confirmed asynchronously.
func (s *KafkaSink) Record(ctx context.Context, entry model.TrafficLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := encodeMessage(entry)
	if err != nil {
		return err
	}

	err = s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
		Key:            []byte(entry.CameraID),
		Value:          payload,
		Headers: []kafka.Header{
			{Key: "session_id", Value: []byte(entry.SessionID)},
		},
	}, s.deliveryChan)
	if err != nil {
		return fmt.Errorf("failed to produce traffic log: %w", err)
	}
	return nil
}

// Close flushes pending messages and shuts the producer down.
func (s *KafkaSink) Close() error {
	s.closeOnce.Do(func() {
		if remaining := s.producer.Flush(int((10 * time.Second).Milliseconds())); remaining > 0 {
			s.logger.Warning("%d traffic log messages still queued at shutdown", remaining)
		}
		s.producer.Close()
		close(s.deliveryChan)
		s.wg.Wait()
		s.logger.Info("Kafka sink closed - acked: %d, failed: %d", s.acked.Load(), s.failed.Load())
	})
	return nil
}

type message struct {
	CameraID      string    `json:"camera_id"`
	SessionID     string    `json:"session_id"`
	Car           int       `json:"car"`
	Motorcycle    int       `json:"motorcycle"`
	Bus           int       `json:"bus"`
	Truck         int       `json:"truck"`
	TotalVehicles int       `json:"total_vehicles"`
	FlowRate      int       `json:"flow_rate"`
	Timestamp     time.Time `json:"timestamp"`
}

func encodeMessage(entry model.TrafficLog) ([]byte, error) {
	payload, err := json.Marshal(message{
		CameraID:      entry.CameraID,
		SessionID:     entry.SessionID,
		Car:           entry.Car,
		Motorcycle:    entry.Motorcycle,
		Bus:           entry.Bus,
		Truck:         entry.Truck,
		TotalVehicles: entry.TotalVehicles,
		FlowRate:      entry.FlowRate,
		Timestamp:     entry.Timestamp.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode traffic log: %w", err)
	}
	return payload, nil
}
