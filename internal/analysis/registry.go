package analysis

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Provider identifiers accepted by New.
const (
	ProviderHTTP        = "http"
	ProviderPlaceholder = "placeholder"
)

// Factory builds a Service from the generic config below.
type Factory func(Config) (Service, error)

// Config carries common knobs used by services.
type Config struct {
	BaseURL     string
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Placeholder only.
	Latency time.Duration
	Logger  *zap.Logger
}

var registry = map[string]Factory{}

// Register registers a provider name with its factory.
func Register(name string, f Factory) { registry[name] = f }

// New creates the Service registered under name.
func New(name string, cfg Config) (Service, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown analysis provider %q (known: %v)", name, Providers())
	}
	return f(cfg)
}

// Providers lists registered provider names.
func Providers() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register(ProviderHTTP, func(c Config) (Service, error) {
		if c.BaseURL == "" {
			return nil, fmt.Errorf("provider %q requires analysis_url", ProviderHTTP)
		}
		return NewClient(c.BaseURL, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay).WithLogger(c.Logger), nil
	})
	Register(ProviderPlaceholder, func(c Config) (Service, error) {
		return NewPlaceholder(c.Latency), nil
	})
}
