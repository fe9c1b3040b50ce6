package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// NewReader returns a reader positioned at the newest message of topic.
// With an empty groupID it reads, without committing offsets, the one
// partition the publisher hashes the topic onto.
func NewReader(ctx context.Context, brokers []string, topic, groupID string) (*kafka.Reader, error) {
	cfg := kafka.ReaderConfig{
		Brokers:         brokers,
		Topic:           topic,
		GroupID:         groupID,
		MinBytes:        1,
		MaxBytes:        10e6,
		MaxWait:         time.Second,
		ReadLagInterval: -1,
		StartOffset:     kafka.LastOffset,
	}

	if groupID == "" {
		n, err := partitionCount(ctx, brokers, topic)
		if err != nil {
			return nil, err
		}
		cfg.Partition = PartitionFor(topic, n)
	}
	return kafka.NewReader(cfg), nil
}

// PartitionFor is the partition the publisher writes topic's messages to
// when the topic has n partitions.
func PartitionFor(topic string, n int) int {
	if n <= 1 {
		return 0
	}
	partitions := make([]int, n)
	for i := range partitions {
		partitions[i] = i
	}
	return (&kafka.Hash{}).Balance(kafka.Message{Key: []byte(topic)}, partitions...)
}

func partitionCount(ctx context.Context, brokers []string, topic string) (int, error) {
	var lastErr error
	for _, broker := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		partitions, err := conn.ReadPartitions(topic)
		conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return len(partitions), nil
	}
	return 0, fmt.Errorf("read partitions of %s: %w", topic, lastErr)
}
