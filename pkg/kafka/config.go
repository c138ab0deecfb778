package kafka

import (
	"fmt"
	"time"
)

// Config holds broker connection and tuning parameters shared by
// producers and consumers.
type Config struct {
	Brokers []string

	ProducerMaxAttempts  int
	ProducerBatchTimeout time.Duration

	ConsumerMinBytes       int
	ConsumerMaxBytes       int
	ConsumerMaxWait        time.Duration
	ConsumerCommitInterval time.Duration
	ConsumerMaxRetries     int
}

func NewConfig(brokers []string) *Config {
	return &Config{
		Brokers: brokers,

		ProducerMaxAttempts:  3,
		ProducerBatchTimeout: 10 * time.Millisecond,

		ConsumerMinBytes:       1,
		ConsumerMaxBytes:       10 << 20,
		ConsumerMaxWait:        500 * time.Millisecond,
		ConsumerCommitInterval: time.Second,
		ConsumerMaxRetries:     3,
	}
}

func (cfg *Config) Validate() error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("at least one broker is required")
	}
	for i, broker := range cfg.Brokers {
		if broker == "" {
			return fmt.Errorf("broker %d cannot be empty", i)
		}
	}
	if cfg.ProducerMaxAttempts <= 0 {
		return fmt.Errorf("ProducerMaxAttempts must be positive, got: %d", cfg.ProducerMaxAttempts)
	}
	if cfg.ConsumerMaxRetries < 0 {
		return fmt.Errorf("ConsumerMaxRetries cannot be negative, got: %d", cfg.ConsumerMaxRetries)
	}
	return nil
}
