package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/csvquery/csvscan/internal/parser"
)

// KafkaSink publishes every row as one record: the value is the row as a
// JSON array and the key its row number. Records are produced in batches.
type KafkaSink struct {
	ctx     context.Context
	client  *kgo.Client
	batch   int
	pending []*kgo.Record
	fields  []any

	// Produced is the number of records acknowledged so far.
	Produced int64
}

// NewKafkaSink connects to the seed brokers; records go to topic.
func NewKafkaSink(ctx context.Context, brokers []string, topic string, batch int) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no brokers given")
	}
	if topic == "" {
		return nil, fmt.Errorf("no topic given")
	}
	if batch <= 0 {
		batch = 1000
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &KafkaSink{ctx: ctx, client: client, batch: batch}, nil
}

func (s *KafkaSink) WriteRow(rownum int64, row parser.Row) error {
	s.fields = appendValues(s.fields[:0], row)
	value, err := json.Marshal(s.fields)
	if err != nil {
		return err
	}
	s.pending = append(s.pending, &kgo.Record{
		Key:   strconv.AppendInt(nil, rownum, 10),
		Value: value,
	})
	if len(s.pending) >= s.batch {
		return s.Flush()
	}
	return nil
}

// Flush produces the pending records and waits for them to be acknowledged.
func (s *KafkaSink) Flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	results := s.client.ProduceSync(s.ctx, s.pending...)
	for _, r := range results {
		if r.Err == nil {
			s.Produced++
		}
	}
	s.pending = s.pending[:0]
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("produce: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	err := s.Flush()
	s.client.Close()
	return err
}
