package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/amoylab/tokengate/internal/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewKafkaConfig(t *testing.T) {
	sc, err := NewKafkaConfig(config.KafkaBusConfig{ClientID: "tokengate"})
	require.NoError(t, err)
	assert.Equal(t, sarama.V2_8_0_0, sc.Version)
	assert.True(t, sc.Producer.Return.Successes)
	assert.Equal(t, "tokengate", sc.ClientID)

	sc, err = NewKafkaConfig(config.KafkaBusConfig{ClientID: "tokengate", Version: "2.6.0"})
	require.NoError(t, err)
	assert.Equal(t, sarama.V2_6_0_0, sc.Version)

	_, err = NewKafkaConfig(config.KafkaBusConfig{ClientID: "tokengate", Version: "banana"})
	assert.Error(t, err)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	sc := mocks.NewTestConfig()
	sc.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, sc)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var env Envelope
		if err := json.Unmarshal(val, &env); err != nil {
			return err
		}
		if env.Message != "hello" || env.Sender != SenderUser {
			return errors.New("unexpected envelope")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisherWithProducer(zap.NewNop(), producer, "chat.message")
	status, err := p.Publish(context.Background(), testEnvelope("hello"))
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, status)

	_, err = p.Publish(context.Background(), testEnvelope("hello"))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	require.NoError(t, p.Close())
}

func TestKafkaSubscriber_Next(t *testing.T) {
	consumer := mocks.NewConsumer(t, mocks.NewTestConfig())
	consumer.SetTopicMetadata(map[string][]int32{"chat.response": {0, 1}})
	pc0 := consumer.ExpectConsumePartition("chat.response", 0, sarama.OffsetNewest)
	pc1 := consumer.ExpectConsumePartition("chat.response", 1, sarama.OffsetNewest)
	pc0.YieldMessage(&sarama.ConsumerMessage{Topic: "chat.response", Key: []byte("alice"), Value: []byte(`{"message":"a"}`)})
	pc1.YieldMessage(&sarama.ConsumerMessage{Topic: "chat.response", Key: []byte("bob"), Value: []byte(`{"message":"b"}`)})

	s, err := NewKafkaSubscriberWithConsumer(zap.NewNop(), consumer, "chat.response")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := map[string]string{}
	for i := 0; i < 2; i++ {
		ev, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "chat.response", ev.Source)
		got[ev.UserID] = string(ev.Payload)
	}
	assert.Equal(t, map[string]string{"alice": `{"message":"a"}`, "bob": `{"message":"b"}`}, got)

	pc0.AsyncClose()
	pc1.AsyncClose()
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestKafkaSubscriber_NoPartitions(t *testing.T) {
	consumer := mocks.NewConsumer(t, mocks.NewTestConfig())
	consumer.SetTopicMetadata(map[string][]int32{"chat.response": {}})

	_, err := NewKafkaSubscriberWithConsumer(zap.NewNop(), consumer, "chat.response")
	assert.Error(t, err)
}
