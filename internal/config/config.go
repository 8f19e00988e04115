// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration knobs for the session service and its sinks.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string

	GatewayBaseURL string
	GatewayToken   string
	GatewayTimeout time.Duration

	LookupDebounce   time.Duration
	LookupMinCodeLen int
	NoticeDelay      time.Duration
	CounterDuration  time.Duration
	CounterMinStep   time.Duration

	RedisAddr  string
	RedisIDTTL time.Duration

	JournalPath string
	AMQPURL     string

	DispatchWorkers int
	DispatchBuffer  int
}

// SimConfig holds configuration for the inventory gateway simulator.
type SimConfig struct {
	Addr     string
	Latency  time.Duration
	LogLevel string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

// Load collects configuration from environment with defaults.
func Load() Config {
	workers := atoienv("DISPATCH_WORKERS", 1)
	if workers < 1 {
		workers = 1
	}
	minLen := atoienv("LOOKUP_MIN_CODE_LEN", 3)
	if minLen < 1 {
		minLen = 1
	}
	return Config{
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		ShutdownTimeout:  durenvs("SHUTDOWN_TIMEOUT", 15),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		GatewayBaseURL:   getenv("GATEWAY_BASE_URL", "http://localhost:8081"),
		GatewayToken:     getenv("GATEWAY_TOKEN", ""),
		GatewayTimeout:   durenvms("GATEWAY_TIMEOUT_MS", 5000),
		LookupDebounce:   durenvms("LOOKUP_DEBOUNCE_MS", 500),
		LookupMinCodeLen: minLen,
		NoticeDelay:      durenvms("NOTICE_DELAY_MS", 3000),
		CounterDuration:  durenvms("COUNTER_DURATION_MS", 500),
		CounterMinStep:   durenvms("COUNTER_MIN_STEP_MS", 20),
		RedisAddr:        getenv("REDIS_ADDR", ""),
		RedisIDTTL:       durenvs("REDIS_ID_TTL", 300),
		JournalPath:      getenv("JOURNAL_PATH", ""),
		AMQPURL:          getenv("AMQP_URL", ""),
		DispatchWorkers:  workers,
		DispatchBuffer:   atoienv("DISPATCH_BUFFER", 128),
	}
}

// LoadSim collects simulator configuration from environment with defaults.
func LoadSim() SimConfig {
	return SimConfig{
		Addr:     getenv("SIM_ADDR", ":8081"),
		Latency:  durenvms("SIM_LATENCY_MS", 600),
		LogLevel: getenv("LOG_LEVEL", "info"),
	}
}
