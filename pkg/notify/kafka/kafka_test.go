package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/edgeflare/sandman/pkg/notify"
	"github.com/edgeflare/sandman/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "acme.books.create" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "/books/1" {
			return errors.New("unexpected key " + string(key))
		}
		value, _ := msg.Value.Encode()
		var e notify.Event
		if err := json.Unmarshal(value, &e); err != nil {
			return err
		}
		if e.Op != notify.OpCreate || e.Resource["title"] != "Dune" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	sink := NewWithProducer(producer, "acme", zap.NewNop())
	e := notify.NewEvent(notify.OpCreate, "books", "/books/1", resource.Representation{"title": "Dune"})
	require.NoError(t, sink.Publish(context.Background(), e))
	require.NoError(t, sink.Close())
}

func TestPublishError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	sink := NewWithProducer(producer, "", zap.NewNop())
	err := sink.Publish(context.Background(), notify.NewEvent(notify.OpDelete, "books", "/books/1", nil))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, sink.Close())
}

func TestPublishNotConnected(t *testing.T) {
	err := New(zap.NewNop()).Publish(context.Background(), notify.Event{})
	assert.ErrorIs(t, err, notify.ErrNotConnected)
}

func TestToSaramaConfig(t *testing.T) {
	c := Config{SASL: &SASL{Username: "user", Password: "pencil", Mechanism: "sha512"}}
	c.setDefaults()
	assert.Equal(t, "sandman", c.TopicPrefix)

	conf, err := c.ToSaramaConfig()
	require.NoError(t, err)
	assert.True(t, conf.Net.SASL.Enable)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA512), conf.Net.SASL.Mechanism)
	assert.Equal(t, sarama.WaitForAll, conf.Producer.RequiredAcks)

	client := conf.Net.SASL.SCRAMClientGeneratorFunc()
	require.NoError(t, client.Begin("user", "pencil", ""))
	first, err := client.Step("")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "n,,n=user,r="), first)
	assert.False(t, client.Done())

	c.SASL.Mechanism = "plain"
	conf, err = c.ToSaramaConfig()
	require.NoError(t, err)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypePlaintext), conf.Net.SASL.Mechanism)

	c.SASL.Mechanism = "md5"
	_, err = c.ToSaramaConfig()
	assert.Error(t, err)

	c.SASL = nil
	c.Version = "not-a-version"
	_, err = c.ToSaramaConfig()
	assert.Error(t, err)
}
