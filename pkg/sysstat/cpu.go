package sysstat

import "sync"

// cpuTimes is an aggregate of busy and total jiffies (or seconds).
type cpuTimes struct {
	idle  float64
	total float64
}

// cpuTracker turns cumulative CPU counters into a utilization percentage.
// The first observation has no baseline and reports 0.
type cpuTracker struct {
	mu   sync.Mutex
	prev cpuTimes
	have bool
}

func (c *cpuTracker) observe(cur cpuTimes) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, had := c.prev, c.have
	c.prev, c.have = cur, true
	if !had {
		return 0
	}
	dt := cur.total - prev.total
	if dt <= 0 {
		return 0
	}
	return clamp((dt - (cur.idle - prev.idle)) / dt * 100)
}
