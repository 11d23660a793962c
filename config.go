package fiberio

import (
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config mirrors the teacher's Config struct, generalized from "TCP server
// bind options" to "runtime tuning knobs".
type Config struct {
	Workers        int  `yaml:"workers"`
	MaxEvents      int  `yaml:"max_events"`
	ThreadPoolSize int  `yaml:"thread_pool_size"`
	Debug          bool `yaml:"debug"`
}

func defaultConfig() *Config {
	return &Config{
		Workers:        runtime.NumCPU(),
		MaxEvents:      500, // epoll_wait batch size, §4.4
		ThreadPoolSize: runtime.NumCPU(),
	}
}

// Option configures a Config at StartLoop time, following the teacher's
// functional-options pattern.
type Option func(conf *Config)

// WithWorkers overrides the worker count (default: runtime.NumCPU()).
func WithWorkers(n int) Option {
	return func(conf *Config) { conf.Workers = n }
}

// WithMaxEvents overrides the epoll_wait batch size (default: 500).
func WithMaxEvents(n int) Option {
	return func(conf *Config) { conf.MaxEvents = n }
}

// WithThreadPoolSize overrides the non-pollable-fd offload pool size.
func WithThreadPoolSize(n int) Option {
	return func(conf *Config) { conf.ThreadPoolSize = n }
}

// WithDebug enables verbose diagnostic logging.
func WithDebug() Option {
	return func(conf *Config) { conf.Debug = true }
}

// LoadConfig reads a YAML config file, starting from defaultConfig and
// overlaying whatever fields the file sets.
func LoadConfig(path string) (*Config, error) {
	conf := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, err
	}
	return conf, nil
}
