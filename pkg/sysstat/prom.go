package sysstat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const defaultScrapeTimeout = 5 * time.Second

// NodeExporter samples a Prometheus node-exporter /metrics endpoint.
type NodeExporter struct {
	url        string
	mountpoint string
	client     *http.Client
	cpu        cpuTracker
}

// NewNodeExporter returns a sampler for url. Disk usage is read for the
// filesystem mounted at mountpoint ("/" when empty).
func NewNodeExporter(url, mountpoint string, timeout time.Duration) (*NodeExporter, error) {
	if url == "" {
		return nil, errors.New("sysstat: node exporter endpoint is required")
	}
	if mountpoint == "" {
		mountpoint = "/"
	}
	if timeout <= 0 {
		timeout = defaultScrapeTimeout
	}
	return &NodeExporter{
		url:        url,
		mountpoint: mountpoint,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

func (n *NodeExporter) Sample(ctx context.Context) (Usage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.url, nil)
	if err != nil {
		return Usage{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := n.client.Do(req)
	if err != nil {
		return Usage{}, fmt.Errorf("scrape node exporter: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Usage{}, fmt.Errorf("scrape node exporter: unexpected status %d", resp.StatusCode)
	}

	mfs, err := parseMetrics(resp.Body)
	if err != nil {
		return Usage{}, err
	}
	return n.usageFrom(mfs)
}

func (n *NodeExporter) usageFrom(mfs map[string]*dto.MetricFamily) (Usage, error) {
	memTotal := sumFamily(mfs["node_memory_MemTotal_bytes"], nil)
	if memTotal <= 0 {
		return Usage{}, errors.New("node exporter: node_memory_MemTotal_bytes missing")
	}
	memAvail := sumFamily(mfs["node_memory_MemAvailable_bytes"], nil)

	onMount := func(m *dto.Metric) bool { return label(m, "mountpoint") == n.mountpoint }
	size := sumFamily(mfs["node_filesystem_size_bytes"], onMount)
	avail := sumFamily(mfs["node_filesystem_avail_bytes"], onMount)

	cpuAll := sumFamily(mfs["node_cpu_seconds_total"], nil)
	cpuIdle := sumFamily(mfs["node_cpu_seconds_total"], func(m *dto.Metric) bool {
		mode := label(m, "mode")
		return mode == "idle" || mode == "iowait"
	})

	return Usage{
		CPU:    n.cpu.observe(cpuTimes{idle: cpuIdle, total: cpuAll}),
		Memory: percent(memTotal-memAvail, memTotal),
		Disk:   percent(size-avail, size),
	}, nil
}

// parseMetrics decodes a Prometheus text exposition. A partial parse with
// at least one family is accepted.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds counter, gauge and untyped values of the series accepted by keep.
func sumFamily(mf *dto.MetricFamily, keep func(*dto.Metric) bool) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		if keep != nil && !keep(m) {
			continue
		}
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
