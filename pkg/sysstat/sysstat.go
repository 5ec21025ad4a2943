// Package sysstat samples host CPU, memory and disk utilization.
//
// Two sources are provided: the local host via gopsutil and a Prometheus
// node-exporter endpoint. Both report percentages in [0, 100].
package sysstat

import (
	"context"
	"fmt"
	"math"
)

// Usage is a point-in-time utilization snapshot in percent.
type Usage struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
	Disk   float64 `json:"disk"`
}

func (u Usage) String() string {
	return fmt.Sprintf("CPU %.1f%%, Memory %.1f%%, Disk %.1f%%", u.CPU, u.Memory, u.Disk)
}

type Sampler interface {
	Sample(ctx context.Context) (Usage, error)
}

// SamplerFunc adapts a plain function to Sampler.
type SamplerFunc func(ctx context.Context) (Usage, error)

func (f SamplerFunc) Sample(ctx context.Context) (Usage, error) { return f(ctx) }

// Static always returns u.
func Static(u Usage) Sampler {
	return SamplerFunc(func(context.Context) (Usage, error) { return u, nil })
}

func percent(used, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return clamp(used / total * 100)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
