package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the tunables of the negotiation engine and the notification
// dispatcher. Values come from an optional YAML file over defaults.
type Policy struct {
	CallTimeout            time.Duration      `yaml:"call_timeout"`
	DefaultDeadline        time.Duration      `yaml:"default_deadline"`
	PlaceholderDescription string             `yaml:"placeholder_description"`
	OfferorMayAgreeFirst   bool               `yaml:"offeror_may_agree_first"`
	Notifications          NotificationPolicy `yaml:"notifications"`
}

// NotificationPolicy sizes the notification outbox.
type NotificationPolicy struct {
	Workers     int           `yaml:"workers"`
	Buffer      int           `yaml:"buffer"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// DefaultPolicy returns the values used when no policy file is given.
func DefaultPolicy() Policy {
	return Policy{
		CallTimeout:            3 * time.Second,
		DefaultDeadline:        7 * 24 * time.Hour,
		PlaceholderDescription: "Work as agreed in the negotiation.",
		OfferorMayAgreeFirst:   true,
		Notifications: NotificationPolicy{
			Workers:     2,
			Buffer:      256,
			MaxAttempts: 5,
			BaseBackoff: 500 * time.Millisecond,
			MaxBackoff:  30 * time.Second,
		},
	}
}

// LoadPolicy decodes the YAML file at path over DefaultPolicy. An empty
// path returns the defaults. Keys absent from the file keep their default.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Policy{}, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&p); err != nil {
		return Policy{}, fmt.Errorf("policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// Validate rejects values the engine cannot run with.
func (p Policy) Validate() error {
	switch {
	case p.CallTimeout <= 0:
		return fmt.Errorf("call_timeout must be positive")
	case p.DefaultDeadline <= 0:
		return fmt.Errorf("default_deadline must be positive")
	case p.Notifications.Workers < 1:
		return fmt.Errorf("notifications.workers must be at least 1")
	case p.Notifications.Buffer < 1:
		return fmt.Errorf("notifications.buffer must be at least 1")
	case p.Notifications.MaxAttempts < 1:
		return fmt.Errorf("notifications.max_attempts must be at least 1")
	case p.Notifications.MaxBackoff < p.Notifications.BaseBackoff:
		return fmt.Errorf("notifications.max_backoff must not be below base_backoff")
	}
	return nil
}
