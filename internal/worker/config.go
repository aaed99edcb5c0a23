package worker

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config groups the pool tunables. Values are taken from environment
// variables with the prefix "CSYNC_". Example: CSYNC_SHARDS=8 CSYNC_QUEUE_SIZE=256 .
type Config struct {
	Shards         int           `envconfig:"SHARDS"          default:"4"`
	QueueSize      int           `envconfig:"QUEUE_SIZE"      default:"128"`
	EnqueueTimeout time.Duration `envconfig:"ENQUEUE_TIMEOUT" default:"100ms"`

	// MaxAttempts defaults to a single attempt: failed updates are retried
	// only by an explicit caller-invoked retry, never automatically.
	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"1"`
	BaseBackoff time.Duration `envconfig:"BASE_BACKOFF" default:"100ms"`
	MaxInterval time.Duration `envconfig:"MAX_INTERVAL" default:"20s"`

	// OnResult is called synchronously after a job finishes, with the job's
	// key and its final error (nil on success). Leave nil if you do not care.
	OnResult func(key string, err error) `envconfig:"-"`
}

// LoadConfig populates Config from environment variables (prefix CSYNC_).
func LoadConfig() (Config, error) {
	var c Config
	return c, envconfig.Process("CSYNC", &c)
}
