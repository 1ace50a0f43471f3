package graph

import "time"

// Config carries the per-run options threaded through Invoke/Stream,
// grounded on this codebase's Config/WithThreadID/WithInterruptBefore
// functional-option pattern.
type Config struct {
	ThreadID          string
	MaxSteps          int
	ResumeFrom        string
	InterruptBefore   []string
	InterruptAfter    []string
	CancelGrace       time.Duration
	AllowLossyResume  bool
	Extra             map[string]any
}

func defaultConfig() *Config {
	return &Config{
		MaxSteps:    1000,
		CancelGrace: 5 * time.Second,
		Extra:       make(map[string]any),
	}
}

type Option func(*Config)

func WithThreadID(id string) Option {
	return func(c *Config) { c.ThreadID = id }
}

func WithMaxSteps(n int) Option {
	return func(c *Config) { c.MaxSteps = n }
}

func WithResumeFrom(checkpointID string) Option {
	return func(c *Config) { c.ResumeFrom = checkpointID }
}

func WithInterruptBefore(labels ...string) Option {
	return func(c *Config) { c.InterruptBefore = append(c.InterruptBefore, labels...) }
}

func WithInterruptAfter(labels ...string) Option {
	return func(c *Config) { c.InterruptAfter = append(c.InterruptAfter, labels...) }
}

func WithCancelGrace(d time.Duration) Option {
	return func(c *Config) { c.CancelGrace = d }
}

func WithAllowLossyResume(allow bool) Option {
	return func(c *Config) { c.AllowLossyResume = allow }
}

func WithExtra(key string, value any) Option {
	return func(c *Config) {
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		c.Extra[key] = value
	}
}

func buildConfig(opts ...Option) *Config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
