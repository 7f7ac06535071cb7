// Package kafka provides a sink that produces change events to Kafka.
//
// Topics follow prefix.endpoint.op, eg sandman.books.create. Messages are
// keyed by resource URI so changes to one resource keep their order within
// a partition.
package kafka

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/edgeflare/sandman/pkg/notify"
	"go.uber.org/zap"
)

// DefaultTopicPrefix is used when the configuration names none.
const DefaultTopicPrefix = "sandman"

// Config represents Kafka-specific configuration
type Config struct {
	Brokers     []string         `json:"brokers"`
	TopicPrefix string           `json:"topicPrefix"`
	Version     string           `json:"version,omitempty"`
	ClientID    string           `json:"clientId,omitempty"`
	SASL        *SASL            `json:"sasl,omitempty"`
	TLS         notify.TLSConfig `json:"tls,omitempty"`
}

// SASL represents SASL authentication configuration. Mechanism is one of
// plain, sha256 or sha512.
type SASL struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Mechanism string `json:"mechanism"`
}

func (c *Config) setDefaults() {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	c.TopicPrefix = cmp.Or(c.TopicPrefix, DefaultTopicPrefix)
	c.Version = cmp.Or(c.Version, "2.1.1")
	c.ClientID = cmp.Or(c.ClientID, "sandman")
}

// ToSaramaConfig converts the Config to a producer sarama.Config.
func (c *Config) ToSaramaConfig() (*sarama.Config, error) {
	conf := sarama.NewConfig()

	version, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid Kafka version: %w", err)
	}
	conf.Version = version
	conf.ClientID = c.ClientID

	conf.Producer.RequiredAcks = sarama.WaitForAll
	conf.Producer.Retry.Max = 5
	conf.Producer.Return.Successes = true
	conf.Producer.Return.Errors = true

	if c.SASL != nil {
		conf.Net.SASL.Enable = true
		conf.Net.SASL.Handshake = true
		conf.Net.SASL.User = c.SASL.Username
		conf.Net.SASL.Password = c.SASL.Password

		switch c.SASL.Mechanism {
		case "", "plain":
			conf.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		case "sha256":
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA256} }
		case "sha512":
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA512} }
		default:
			return nil, fmt.Errorf("invalid SASL mechanism: %s", c.SASL.Mechanism)
		}
	}

	tlsConfig, err := c.TLS.Load()
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		conf.Net.TLS.Enable = true
		conf.Net.TLS.Config = tlsConfig
	}

	return conf, conf.Validate()
}

// Sink produces events with a synchronous producer.
type Sink struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
	config   Config
}

func New(logger *zap.Logger) notify.Sink {
	return &Sink{logger: logger}
}

// NewWithProducer returns a sink that sends through producer.
func NewWithProducer(producer sarama.SyncProducer, topicPrefix string, logger *zap.Logger) *Sink {
	s := &Sink{producer: producer, logger: logger, config: Config{TopicPrefix: topicPrefix}}
	s.config.setDefaults()
	return s
}

func (s *Sink) Connect(config json.RawMessage) error {
	if len(config) > 0 {
		if err := json.Unmarshal(config, &s.config); err != nil {
			return fmt.Errorf("unmarshal Kafka config: %w", err)
		}
	}
	s.config.setDefaults()

	conf, err := s.config.ToSaramaConfig()
	if err != nil {
		return err
	}
	producer, err := sarama.NewSyncProducer(s.config.Brokers, conf)
	if err != nil {
		return fmt.Errorf("create Kafka producer: %w", err)
	}
	s.producer = producer
	return nil
}

// Topic returns the topic e is produced to.
func (s *Sink) Topic(e notify.Event) string {
	return e.Subject(s.config.TopicPrefix, ".")
}

func (s *Sink) Publish(ctx context.Context, e notify.Event) error {
	if s.producer == nil {
		return notify.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.Topic(e),
		Key:   sarama.StringEncoder(e.URI),
		Value: sarama.ByteEncoder(data),
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	s.logger.Debug("published event",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (s *Sink) Close() error {
	if s.producer == nil {
		return nil
	}
	err := s.producer.Close()
	s.producer = nil
	return err
}

func init() {
	notify.Register(notify.SinkKafka, New)
}
