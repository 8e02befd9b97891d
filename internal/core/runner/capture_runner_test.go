package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nccgroup/scrying/internal/config"
	"github.com/nccgroup/scrying/internal/core/lib/imaging"
	"github.com/nccgroup/scrying/internal/core/model"
	"github.com/nccgroup/scrying/internal/core/options"
	"github.com/nccgroup/scrying/internal/pkg/monitor"
)

const nmapXML = `<?xml version="1.0" encoding="UTF-8"?>
<nmaprun scanner="nmap">
  <host>
    <address addr="192.0.2.1" addrtype="ipv4"/>
    <ports>
      <port protocol="tcp" portid="3389"><state state="open"/><service name="ms-wbt-server"/></port>
    </ports>
  </host>
</nmaprun>`

// imageDriver 写出一张小图的假驱动
type imageDriver struct {
	protocol model.Protocol
	gate     chan struct{} // 非 nil 时等待放行
	started  chan struct{}
	calls    int32
	closed   int32
}

func (d *imageDriver) Name() string             { return "fake-" + string(d.protocol) }
func (d *imageDriver) Protocol() model.Protocol { return d.protocol }
func (d *imageDriver) Close() error             { atomic.AddInt32(&d.closed, 1); return nil }

func (d *imageDriver) Capture(ctx context.Context, job *model.Job) model.CaptureOutcome {
	atomic.AddInt32(&d.calls, 1)
	if d.started != nil {
		d.started <- struct{}{}
	}
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return model.NewFailure(job.Target, model.KindCancelled, "cancelled")
		}
	}
	if err := imaging.SavePNG(job.ArtifactPath, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		return model.NewFailure(job.Target, model.KindIO, err.Error())
	}
	return model.NewSuccess(job.Target, job.ArtifactPath, 4, 4)
}

func quietProbe() monitor.Probe {
	return monitor.Probe{
		DiskFree:     func(string) (uint64, error) { return 10 << 30, nil },
		MemAvailable: func() (uint64, error) { return 8 << 30, nil },
		HostInfo:     func() (monitor.HostInfo, error) { return monitor.HostInfo{Hostname: "test"}, nil },
	}
}

func newRunner(t *testing.T, opts *options.CaptureOptions, drivers ...*imageDriver) (*CaptureRunner, *config.Config) {
	cfg := config.DefaultConfig()
	cfg.Capture.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.Workers.RDP = 2

	r := NewCaptureRunner(cfg, opts).
		WithProbe(quietProbe()).
		WithStdout(io.Discard).
		WithDrivers(func(protocols []model.Protocol) (*DriverManager, error) {
			m := NewDriverManager()
			for _, d := range drivers {
				m.Register(d)
			}
			return m, nil
		})
	return r, cfg
}

func TestCaptureRunner_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "targets.txt")
	require.NoError(t, os.WriteFile(file, []byte("rdp://192.0.2.1\nhttp://intranet.test/\n"), 0644))
	nmap := filepath.Join(dir, "scan.xml")
	require.NoError(t, os.WriteFile(nmap, []byte(nmapXML), 0644))

	rdp := &imageDriver{protocol: model.ProtocolRDP}
	web := &imageDriver{protocol: model.ProtocolWeb}
	opts := &options.CaptureOptions{
		Targets:   []string{"192.0.2.1:3389"},
		Files:     []string{file},
		NmapFiles: []string{nmap},
	}
	r, cfg := newRunner(t, opts, rdp, web)

	code, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitOK, code)

	// 同一个 RDP 目标只截一次
	assert.Equal(t, int32(1), atomic.LoadInt32(&rdp.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&web.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&web.closed))

	out := cfg.Capture.OutputDir
	assert.FileExists(t, filepath.Join(out, "report.html"))
	assert.FileExists(t, filepath.Join(out, "rdp", "192.0.2.1-3389.png"))

	raw, err := os.ReadFile(filepath.Join(out, "results.json"))
	require.NoError(t, err)
	var doc struct {
		Targets   int `json:"targets"`
		Succeeded int `json:"succeeded"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, 2, doc.Targets)
	assert.Equal(t, 2, doc.Succeeded)
}

func TestCaptureRunner_NoTargets(t *testing.T) {
	opts := &options.CaptureOptions{Targets: []string{"ftp://192.0.2.1", "192.0.2.1:99999"}}
	r, cfg := newRunner(t, opts)

	code, err := r.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, ExitNoTargets, code)
	assert.NoDirExists(t, cfg.Capture.OutputDir)
}

func TestCaptureRunner_TestImport(t *testing.T) {
	rdp := &imageDriver{protocol: model.ProtocolRDP}
	opts := &options.CaptureOptions{Targets: []string{"192.0.2.1"}, TestImport: true}
	r, cfg := newRunner(t, opts, rdp)

	code, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitOK, code)
	assert.Zero(t, atomic.LoadInt32(&rdp.calls))
	assert.NoDirExists(t, cfg.Capture.OutputDir)
}

func TestCaptureRunner_TestImportReportsSkippedInput(t *testing.T) {
	rdp := &imageDriver{protocol: model.ProtocolRDP}
	missing := filepath.Join(t.TempDir(), "missing.txt")
	opts := &options.CaptureOptions{
		Targets:    []string{"192.0.2.1", "not a host"},
		Files:      []string{missing},
		TestImport: true,
	}
	r, _ := newRunner(t, opts, rdp)
	var out bytes.Buffer
	r.WithStdout(&out)

	code, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out.String(), "1 targets parsed")
	assert.Contains(t, out.String(), "skipped 1 unreadable input sources and 1 unparseable targets")
}

func TestCaptureRunner_NoReportAndCSV(t *testing.T) {
	rdp := &imageDriver{protocol: model.ProtocolRDP}
	opts := &options.CaptureOptions{Targets: []string{"192.0.2.1"}, CSV: true}
	cfg := config.DefaultConfig()
	cfg.Capture.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.Capture.NoReport = true
	r := NewCaptureRunner(cfg, opts).WithProbe(quietProbe()).WithStdout(io.Discard).
		WithDrivers(func([]model.Protocol) (*DriverManager, error) {
			m := NewDriverManager()
			m.Register(rdp)
			return m, nil
		})

	code, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitOK, code)
	assert.NoFileExists(t, filepath.Join(cfg.Capture.OutputDir, "report.html"))
	assert.FileExists(t, filepath.Join(cfg.Capture.OutputDir, "results.csv"))
	assert.FileExists(t, filepath.Join(cfg.Capture.OutputDir, "results.json"))
}

func TestCaptureRunner_UnwritableOutput(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	opts := &options.CaptureOptions{Targets: []string{"192.0.2.1"}}
	r, cfg := newRunner(t, opts, &imageDriver{protocol: model.ProtocolRDP})
	cfg.Capture.OutputDir = blocker
	r.output.Dir = blocker

	code, err := r.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, ExitStartup, code)
}

func TestCaptureRunner_FirstInterruptDrains(t *testing.T) {
	rdp := &imageDriver{protocol: model.ProtocolRDP, gate: make(chan struct{}), started: make(chan struct{}, 8)}
	opts := &options.CaptureOptions{Targets: []string{"192.0.2.1", "192.0.2.2", "192.0.2.3", "192.0.2.4", "192.0.2.5"}}
	r, cfg := newRunner(t, opts, rdp)
	signals := make(chan os.Signal, 2)
	r.WithSignals(signals)

	go func() {
		// 两个 worker 都开始后中断一次，再放行
		<-rdp.started
		<-rdp.started
		signals <- os.Interrupt
		time.Sleep(50 * time.Millisecond)
		close(rdp.gate)
	}()

	code, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&rdp.calls))

	raw, err := os.ReadFile(filepath.Join(cfg.Capture.OutputDir, "results.json"))
	require.NoError(t, err)
	var doc struct {
		Succeeded int `json:"succeeded"`
		Skipped   int `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, 2, doc.Succeeded)
	assert.Equal(t, 3, doc.Skipped)
	assert.FileExists(t, filepath.Join(cfg.Capture.OutputDir, "report.html"))
}

func TestCaptureRunner_SecondInterruptAborts(t *testing.T) {
	rdp := &imageDriver{protocol: model.ProtocolRDP, gate: make(chan struct{}), started: make(chan struct{}, 8)}
	opts := &options.CaptureOptions{Targets: []string{"192.0.2.1", "192.0.2.2", "192.0.2.3"}}
	r, cfg := newRunner(t, opts, rdp)
	signals := make(chan os.Signal, 2)
	var aborted int32
	r.WithSignals(signals).WithAbortHook(func() { atomic.AddInt32(&aborted, 1) })

	go func() {
		<-rdp.started
		signals <- os.Interrupt
		signals <- os.Interrupt
	}()

	code, err := r.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, ExitAborted, code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&aborted))
	assert.NoFileExists(t, filepath.Join(cfg.Capture.OutputDir, "report.html"))
	assert.NoFileExists(t, filepath.Join(cfg.Capture.OutputDir, "results.json"))
}
