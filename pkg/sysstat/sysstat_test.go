package sysstat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPUTrackerDelta(t *testing.T) {
	var c cpuTracker
	a := cpuTimes{idle: 800, total: 1000}
	b := cpuTimes{idle: 1400, total: 1800}

	assert.Equal(t, 0.0, c.observe(a), "no baseline yet")
	// total +800, idle +600 -> 25% busy
	assert.InDelta(t, 25.0, c.observe(b), 0.001)
	assert.Equal(t, 0.0, c.observe(b), "no elapsed time")
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, percent(5, 0))
	assert.Equal(t, 100.0, percent(12, 10))
	assert.Equal(t, 0.0, percent(-1, 10))
	assert.Equal(t, 50.0, percent(5, 10))
}

func TestHostSampleClampsAndWrapsErrors(t *testing.T) {
	h := NewHost("")
	assert.Equal(t, "/", h.diskPath)

	h.cpuPercent = func(context.Context) (float64, error) { return 101, nil }
	h.memPercent = func(context.Context) (float64, error) { return 42.5, nil }
	h.diskPercent = func(_ context.Context, path string) (float64, error) {
		assert.Equal(t, "/", path)
		return -1, nil
	}
	u, err := h.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Usage{CPU: 100, Memory: 42.5, Disk: 0}, u)

	boom := errors.New("boom")
	h.memPercent = func(context.Context) (float64, error) { return 0, boom }
	_, err = h.Sample(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "memory")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Sample(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestHostSampleLocalMachine(t *testing.T) {
	u, err := NewHost(t.TempDir()).Sample(context.Background())
	require.NoError(t, err)
	for _, v := range []float64{u.CPU, u.Memory, u.Disk} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
	assert.Greater(t, u.Memory, 0.0)
}

func TestStaticAndString(t *testing.T) {
	u, err := Static(Usage{CPU: 1, Memory: 81, Disk: 3}).Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 81.0, u.Memory)
	assert.Equal(t, "CPU 1.0%, Memory 81.0%, Disk 3.0%", u.String())
}

const nodeMetrics = `# HELP node_memory_MemTotal_bytes Memory information field MemTotal_bytes.
# TYPE node_memory_MemTotal_bytes gauge
node_memory_MemTotal_bytes 1000
# HELP node_memory_MemAvailable_bytes Memory information field MemAvailable_bytes.
# TYPE node_memory_MemAvailable_bytes gauge
node_memory_MemAvailable_bytes 190
# HELP node_filesystem_size_bytes Filesystem size in bytes.
# TYPE node_filesystem_size_bytes gauge
node_filesystem_size_bytes{device="/dev/sda1",fstype="ext4",mountpoint="/"} 400
node_filesystem_size_bytes{device="/dev/sdb1",fstype="ext4",mountpoint="/data"} 9999
# HELP node_filesystem_avail_bytes Filesystem space available to non-root users in bytes.
# TYPE node_filesystem_avail_bytes gauge
node_filesystem_avail_bytes{device="/dev/sda1",fstype="ext4",mountpoint="/"} 100
node_filesystem_avail_bytes{device="/dev/sdb1",fstype="ext4",mountpoint="/data"} 1
# HELP node_cpu_seconds_total Seconds the CPUs spent in each mode.
# TYPE node_cpu_seconds_total counter
node_cpu_seconds_total{cpu="0",mode="idle"} 90
node_cpu_seconds_total{cpu="0",mode="user"} 10
`

func TestNodeExporterSample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(nodeMetrics))
	}))
	defer srv.Close()

	n, err := NewNodeExporter(srv.URL, "", 0)
	require.NoError(t, err)

	u, err := n.Sample(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 81.0, u.Memory, 0.001)
	assert.InDelta(t, 75.0, u.Disk, 0.001)
	assert.Equal(t, 0.0, u.CPU)
}

func TestNodeExporterErrors(t *testing.T) {
	_, err := NewNodeExporter("", "/", 0)
	require.Error(t, err)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()
	n, err := NewNodeExporter(bad.URL, "/", 0)
	require.NoError(t, err)
	_, err = n.Sample(context.Background())
	require.Error(t, err)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# TYPE up gauge\nup 1\n"))
	}))
	defer empty.Close()
	n, err = NewNodeExporter(empty.URL, "/", 0)
	require.NoError(t, err)
	_, err = n.Sample(context.Background())
	require.Error(t, err)
}
