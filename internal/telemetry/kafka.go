package telemetry

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wavehub/pincore/internal/infrastructure/config"
)

// SourceKafka labels readings consumed from Kafka.
const SourceKafka = "kafka"

const defaultPollTimeout = time.Second

// messageReader is the part of *kafka.Reader the source uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes readings from a topic in a consumer group. The
// message key, when set, is the sensor ID.
type KafkaSource struct {
	reader messageReader
	ingest *Ingest
	logger Logger
	poll   time.Duration
	topic  string
}

// NewKafkaSource creates a source reading cfg.Topic as cfg.GroupID.
func NewKafkaSource(cfg config.KafkaConfig, ingest *Ingest, logger Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("telemetry: at least one kafka broker is required")
	}
	if cfg.Topic == "" || cfg.GroupID == "" {
		return nil, errors.New("telemetry: kafka topic and group id are required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    1 << 20,
	})
	return newKafkaSource(reader, cfg.Topic, time.Duration(cfg.PollTimeout)*time.Millisecond, ingest, logger), nil
}

func newKafkaSource(r messageReader, topic string, poll time.Duration, ingest *Ingest, logger Logger) *KafkaSource {
	if poll <= 0 {
		poll = defaultPollTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &KafkaSource{reader: r, ingest: ingest, logger: logger, poll: poll, topic: topic}
}

// Run consumes until ctx is cancelled or the reader is closed. Every
// fetched message is committed, including ones that fail to decode, so a
// poison message cannot stall the partition.
func (k *KafkaSource) Run(ctx context.Context) error {
	k.logger.Info("kafka telemetry consumer started", "topic", k.topic)
	defer k.logger.Info("kafka telemetry consumer stopped", "topic", k.topic)

	for {
		if err := ctx.Err(); err != nil {
			return nil //nolint:nilerr // cancellation is a normal stop
		}

		fetchCtx, cancel := context.WithTimeout(ctx, k.poll)
		msg, err := k.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafka.ErrGroupClosed):
				return nil
			}
			k.logger.Error("fetching telemetry message failed", "error", err)
			continue
		}

		if err := k.ingest.Accept(SourceKafka, string(msg.Key), msg.Value); err != nil {
			k.logger.Warn("dropping telemetry message", "offset", msg.Offset, "partition", msg.Partition, "error", err)
		}

		commitCtx, commitCancel := context.WithTimeout(ctx, k.poll)
		if err := k.reader.CommitMessages(commitCtx, msg); err != nil && ctx.Err() == nil {
			k.logger.Error("committing telemetry offset failed", "offset", msg.Offset, "error", err)
		}
		commitCancel()
	}
}

// Close closes the reader, ending Run.
func (k *KafkaSource) Close() error {
	return k.reader.Close()
}
