package cache

import (
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig is the connection shared by the model store, the response
// cache and the job queue.
type RedisConfig struct {
	Host         string        `yaml:"host" default:"localhost"`
	Port         int           `yaml:"port" default:"6379" validate:"min=1,max=65535"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"gte=0"`
	PoolSize     int           `yaml:"pool_size" default:"10" validate:"min=1"`
	MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
	PoolTimeout  time.Duration `yaml:"pool_timeout" default:"4s"`
	Prefix       string        `yaml:"prefix" default:"priceopt"`
}

func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c RedisConfig) clientOptions() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		PoolTimeout:  c.PoolTimeout,
		MinIdleConns: c.MinIdleConns,
	}
}

// LocalConfig sizes the in-process LRU. TTL bounds how long the layered
// cache serves a value before going back to Redis.
type LocalConfig struct {
	MaxSize int           `yaml:"memory_max_size" default:"1000" validate:"min=1"`
	TTL     time.Duration `yaml:"memory_ttl" default:"10s"`
}

type MemoryOption func(*LocalConfig)

func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *LocalConfig) {
		if size > 0 {
			c.MaxSize = size
		}
	}
}
