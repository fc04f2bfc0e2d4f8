package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amoylab/tokengate/internal/common/config"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// NewKafkaConfig builds the sarama config shared by producer and consumer
func NewKafkaConfig(cfg config.KafkaBusConfig) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Version = sarama.V2_8_0_0
	if cfg.Version != "" {
		v, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid kafka version %q: %w", cfg.Version, err)
		}
		sc.Version = v
	}

	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	// one user's inputs land on one partition
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true

	sc.Net.DialTimeout = 10 * time.Second
	sc.Net.ReadTimeout = 30 * time.Second
	sc.Net.WriteTimeout = 30 * time.Second

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}
	return sc, nil
}

// KafkaPublisher produces envelopes keyed by user id
type KafkaPublisher struct {
	logger   *zap.Logger
	producer sarama.SyncProducer
	topic    string
}

var _ Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(logger *zap.Logger, cfg config.KafkaBusConfig) (*KafkaPublisher, error) {
	sc, err := NewKafkaConfig(cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(logger, producer, cfg.InputTopic), nil
}

func NewKafkaPublisherWithProducer(logger *zap.Logger, producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		logger:   logger.Named("bus.kafka.publisher"),
		producer: producer,
		topic:    topic,
	}
}

func (p *KafkaPublisher) Publish(_ context.Context, env *Envelope) (int, error) {
	data, err := env.Marshal()
	if err != nil {
		return 0, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(env.UserID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to produce kafka message: %w", err)
	}
	p.logger.Debug("message produced",
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return StatusAccepted, nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// KafkaSubscriber consumes every partition of the response topic from the
// newest offset. The message key carries the user id.
type KafkaSubscriber struct {
	logger     *zap.Logger
	consumer   sarama.Consumer
	partitions []sarama.PartitionConsumer
	messages   chan *sarama.ConsumerMessage
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

var _ Subscriber = (*KafkaSubscriber)(nil)

func NewKafkaSubscriber(logger *zap.Logger, cfg config.KafkaBusConfig) (*KafkaSubscriber, error) {
	sc, err := NewKafkaConfig(cfg)
	if err != nil {
		return nil, err
	}
	consumer, err := sarama.NewConsumer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	s, err := NewKafkaSubscriberWithConsumer(logger, consumer, cfg.ResponseTopic)
	if err != nil {
		_ = consumer.Close()
		return nil, err
	}
	return s, nil
}

func NewKafkaSubscriberWithConsumer(logger *zap.Logger, consumer sarama.Consumer, topic string) (*KafkaSubscriber, error) {
	ids, err := consumer.Partitions(topic)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions of %s: %w", topic, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("topic %s has no partitions", topic)
	}

	s := &KafkaSubscriber{
		logger:   logger.Named("bus.kafka.subscriber"),
		consumer: consumer,
		messages: make(chan *sarama.ConsumerMessage),
	}
	for _, id := range ids {
		pc, err := consumer.ConsumePartition(topic, id, sarama.OffsetNewest)
		if err != nil {
			s.closePartitions()
			return nil, fmt.Errorf("failed to consume %s/%d: %w", topic, id, err)
		}
		s.partitions = append(s.partitions, pc)
	}

	for _, pc := range s.partitions {
		s.wg.Add(1)
		go s.drain(pc)
	}
	go func() {
		s.wg.Wait()
		close(s.messages)
	}()

	s.logger.Info("consuming response topic", zap.String("topic", topic), zap.Int("partitions", len(ids)))
	return s, nil
}

func (s *KafkaSubscriber) drain(pc sarama.PartitionConsumer) {
	defer s.wg.Done()
	errs := pc.Errors()
	msgs := pc.Messages()
	for msgs != nil {
		select {
		case msg, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			s.messages <- msg
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Error("kafka partition error",
				zap.String("topic", err.Topic),
				zap.Int32("partition", err.Partition),
				zap.Error(err.Err))
		}
	}
}

func (s *KafkaSubscriber) Next(ctx context.Context) (*Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-s.messages:
		if !ok {
			return nil, ErrSubscriptionClosed
		}
		return &Event{
			Source:  msg.Topic,
			UserID:  string(msg.Key),
			Payload: msg.Value,
		}, nil
	}
}

func (s *KafkaSubscriber) closePartitions() error {
	var errs []error
	for _, pc := range s.partitions {
		if err := pc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.consumer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *KafkaSubscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// unblock drains waiting on a reader that is gone
		go func() {
			for range s.messages {
			}
		}()
		err = s.closePartitions()
	})
	return err
}
