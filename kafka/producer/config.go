package producer

import (
	stderrors "errors"
	"time"

	"github.com/naresh-chaudhary/tw-tasks-executor/kafka"
	"github.com/naresh-chaudhary/tw-tasks-executor/protocol"
)

var (
	// ErrNoBrokers indicates missing broker configuration.
	ErrNoBrokers = kafka.ErrNoBrokers

	// ErrNoTopic indicates missing topic configuration.
	ErrNoTopic = kafka.ErrNoTopic
)

// Config contains configuration for the Kafka producer.
//
// The defaults describe the shared idempotent producer used for the
// trigger-publishing path: acks=all, idempotence on, bounded in-flight
// requests, and bounded blocking/delivery/request timeouts so a stalled
// broker degrades the caller rather than hanging it indefinitely.
type Config struct {
	// Brokers is the list of Kafka broker addresses (required).
	Brokers []string `yaml:"brokers"`

	// Topic is the default Kafka topic for messages (required; a message's
	// own Topic, when set, overrides it for that message).
	Topic string `yaml:"topic"`

	// Idempotent enables exactly-once-per-partition produce semantics
	// (acks=all, enable.idempotence=true).
	Idempotent bool `yaml:"idempotent" default:"true"`

	// MaxInFlight bounds in-flight produce requests per broker connection.
	MaxInFlight int `yaml:"max_in_flight" default:"5"`

	// MaxBlock is kept in Config but is not passed to the franz-go client:
	// a Produce/ProduceSync call that blocks on a full buffer waits until
	// its ctx is done.
	MaxBlock time.Duration `yaml:"max_block" default:"5s"`

	// RequestTimeout bounds a single produce request round-trip.
	RequestTimeout time.Duration `yaml:"request_timeout" default:"5s"`

	// DeliveryTimeout bounds the total time (including retries) a record
	// may take to be acknowledged or fail permanently.
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" default:"10s"`

	// Linger batches records for this long before a produce request is
	// sent, trading latency for batch efficiency.
	Linger time.Duration `yaml:"linger" default:"5ms"`

	// ReconnectBackoffMin/Max bound the broker reconnect backoff.
	ReconnectBackoffMin time.Duration `yaml:"reconnect_backoff_min" default:"100ms"`
	ReconnectBackoffMax time.Duration `yaml:"reconnect_backoff_max" default:"5s"`

	// Logger is the logger for structured logging (optional, uses protocol.NopLogger).
	Logger protocol.Logger `yaml:"-"`

	// producer is the Kafka producer implementation (optional, primarily for testing).
	producer KafkaProducer `yaml:"-"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}
	if c.Topic == "" {
		return ErrNoTopic
	}
	return nil
}

// Option is a function that configures the Producer.
type Option func(*Config) error

// defaults returns default producer configuration.
func defaults() []Option {
	return []Option{
		WithLogger(protocol.NopLogger{}),
		WithIdempotence(true),
		WithMaxInFlight(5),
		WithMaxBlock(5 * time.Second),
		WithRequestTimeout(5 * time.Second),
		WithDeliveryTimeout(10 * time.Second),
		WithLinger(5 * time.Millisecond),
		WithReconnectBackoff(100*time.Millisecond, 5*time.Second),
	}
}

// WithBrokers sets the Kafka broker addresses for producer.
func WithBrokers(brokers ...string) Option {
	return func(cfg *Config) error {
		if len(brokers) == 0 {
			return stderrors.New("brokers cannot be empty")
		}
		cfg.Brokers = brokers
		return nil
	}
}

// WithTopic sets the default topic for producer messages.
func WithTopic(topic string) Option {
	return func(cfg *Config) error {
		if topic == "" {
			return stderrors.New("topic cannot be empty")
		}
		cfg.Topic = topic
		return nil
	}
}

// WithLogger sets the logger for producer.
func WithLogger(logger protocol.Logger) Option {
	return func(cfg *Config) error {
		if logger == nil {
			return stderrors.New("logger cannot be nil")
		}
		cfg.Logger = logger
		return nil
	}
}

// WithIdempotence toggles acks=all + enable.idempotence.
func WithIdempotence(on bool) Option {
	return func(cfg *Config) error {
		cfg.Idempotent = on
		return nil
	}
}

// WithMaxInFlight bounds in-flight produce requests per connection.
func WithMaxInFlight(n int) Option {
	return func(cfg *Config) error {
		if n <= 0 {
			return stderrors.New("max in flight must be positive")
		}
		cfg.MaxInFlight = n
		return nil
	}
}

// WithMaxBlock sets Config.MaxBlock; the value is not passed to the client.
func WithMaxBlock(d time.Duration) Option {
	return func(cfg *Config) error {
		cfg.MaxBlock = d
		return nil
	}
}

// WithRequestTimeout bounds a single produce request round-trip.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *Config) error {
		cfg.RequestTimeout = d
		return nil
	}
}

// WithDeliveryTimeout bounds total time to deliver or fail a record.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(cfg *Config) error {
		cfg.DeliveryTimeout = d
		return nil
	}
}

// WithLinger sets the client-side batching delay.
func WithLinger(d time.Duration) Option {
	return func(cfg *Config) error {
		cfg.Linger = d
		return nil
	}
}

// WithReconnectBackoff bounds broker reconnect backoff.
func WithReconnectBackoff(min, max time.Duration) Option {
	return func(cfg *Config) error {
		cfg.ReconnectBackoffMin = min
		cfg.ReconnectBackoffMax = max
		return nil
	}
}

// WithKafkaProducer sets a custom Kafka producer implementation.
// This is primarily used for testing with mock implementations.
func WithKafkaProducer(p KafkaProducer) Option {
	return func(cfg *Config) error {
		cfg.producer = p
		return nil
	}
}

// WithConfig replaces the configuration with c, keeping the current logger
// and Kafka producer implementation where c leaves them unset.
func WithConfig(c Config) Option {
	return func(cfg *Config) error {
		if c.Logger == nil {
			c.Logger = cfg.Logger
		}
		if c.producer == nil {
			c.producer = cfg.producer
		}
		*cfg = c
		return nil
	}
}
