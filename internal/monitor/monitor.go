// Package monitor samples host resources and turns threshold breaches into
// alerts.
package monitor

import (
	"context"
	"errors"
	"fmt"

	"adminpanel/pkg/sysstat"
)

// MemoryThreshold is the exclusive memory percentage above which
// ResourceAlert reports a breach.
const MemoryThreshold = 80.0

type Monitor struct {
	sampler sysstat.Sampler
}

func New(s sysstat.Sampler) (*Monitor, error) {
	if s == nil {
		return nil, errors.New("monitor: sampler is required")
	}
	return &Monitor{sampler: s}, nil
}

// CheckResources samples the host. Every call samples again.
func (m *Monitor) CheckResources(ctx context.Context) (sysstat.Usage, error) {
	u, err := m.sampler.Sample(ctx)
	if err != nil {
		return sysstat.Usage{}, fmt.Errorf("sample resources: %w", err)
	}
	return u, nil
}

// ResourceAlert returns a breach message when memory usage is above
// MemoryThreshold and "" otherwise. Repeated breaches each yield a message.
func (m *Monitor) ResourceAlert(ctx context.Context) (string, error) {
	u, err := m.CheckResources(ctx)
	if err != nil {
		return "", err
	}
	return Evaluate(u), nil
}

// Evaluate applies the alert policy to an existing sample.
func Evaluate(u sysstat.Usage) string {
	if u.Memory > MemoryThreshold {
		return fmt.Sprintf("⚠️ High Memory Usage: %.1f%%", u.Memory)
	}
	return ""
}
