package telemetry

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wavehub/pincore/internal/infrastructure/config"
)

// stubReader serves queued messages, then io.EOF as a closed reader would.
type stubReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	errs      []error
	committed []int64
	closed    bool
}

func (s *stubReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return kafka.Message{}, err
	}
	if len(s.queue) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := s.queue[0]
	s.queue = s.queue[1:]
	return m, nil
}

func (s *stubReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.committed = append(s.committed, m.Offset)
	}
	return nil
}

func (s *stubReader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestKafkaSource_Run(t *testing.T) {
	reader := &stubReader{
		errs: []error{context.DeadlineExceeded, errors.New("broker hiccup")},
		queue: []kafka.Message{
			{Key: []byte("soil-1"), Value: []byte(`{"value": 20}`), Offset: 1},
			{Value: []byte(`garbage`), Offset: 2},
			{Value: []byte(`{"sensor_id":"temp-1","value": 5}`), Offset: 3},
		},
	}
	h, m := &mockHandler{}, &countingMetrics{}
	src := newKafkaSource(reader, "readings", 10*time.Millisecond, newTestIngest(h, nil, m), nil)

	if err := src.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := h.all()
	if len(got) != 2 || got[0].SensorID != "soil-1" || got[1].SensorID != "temp-1" {
		t.Errorf("readings = %+v", got)
	}
	if m.failed != 1 {
		t.Errorf("failed = %d, want 1", m.failed)
	}
	// The undecodable message is committed too.
	if len(reader.committed) != 3 {
		t.Errorf("committed offsets = %v, want 3", reader.committed)
	}

	if err := src.Close(); err != nil || !reader.closed {
		t.Errorf("Close() error = %v, closed = %v", err, reader.closed)
	}
}

func TestKafkaSource_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := newKafkaSource(&stubReader{queue: []kafka.Message{{Value: []byte(`{"sensor_id":"s","value":1}`)}}},
		"readings", 0, newTestIngest(&mockHandler{}, nil, nil), nil)
	if err := src.Run(ctx); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestNewKafkaSource_Validation(t *testing.T) {
	in := newTestIngest(&mockHandler{}, nil, nil)

	if _, err := NewKafkaSource(config.KafkaConfig{Topic: "t", GroupID: "g"}, in, nil); err == nil {
		t.Error("NewKafkaSource() without brokers succeeded")
	}
	if _, err := NewKafkaSource(config.KafkaConfig{Brokers: []string{"k:9092"}, GroupID: "g"}, in, nil); err == nil {
		t.Error("NewKafkaSource() without topic succeeded")
	}

	src, err := NewKafkaSource(config.KafkaConfig{Brokers: []string{"k:9092"}, Topic: "t", GroupID: "g", PollTimeout: 250}, in, nil)
	if err != nil {
		t.Fatalf("NewKafkaSource() error = %v", err)
	}
	if src.poll != 250*time.Millisecond {
		t.Errorf("poll = %v, want 250ms", src.poll)
	}
	_ = src.Close() //nolint:errcheck // never connected
}
