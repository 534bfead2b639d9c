package queue

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendAMQP   = "amqp"
)

// Options selects and configures a queue backend.
type Options struct {
	Backend    string
	Name       string
	Redis      *redis.Client
	AMQPURL    string
	MemorySize int
}

// Open returns the configured queue and a func releasing it.
func Open(opts Options) (Queue, func() error, error) {
	noop := func() error { return nil }
	switch opts.Backend {
	case BackendMemory, "":
		size := opts.MemorySize
		if size <= 0 {
			size = 64
		}
		return NewInMemory(size), noop, nil
	case BackendRedis:
		if opts.Redis == nil {
			return nil, nil, fmt.Errorf("redis queue needs a client")
		}
		return NewRedisQueue(opts.Redis, opts.Name), noop, nil
	case BackendAMQP:
		q, err := DialAMQP(opts.AMQPURL, opts.Name)
		if err != nil {
			return nil, nil, err
		}
		return q, q.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", opts.Backend)
	}
}
