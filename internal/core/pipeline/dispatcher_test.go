package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nccgroup/scrying/internal/core/model"
)

type collectSink struct {
	mu       sync.Mutex
	outcomes []model.CaptureOutcome
}

func (s *collectSink) Add(o model.CaptureOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
}

func (s *collectSink) list() []model.CaptureOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.CaptureOutcome(nil), s.outcomes...)
}

// fakeDriver 记录并发数的驱动
type fakeDriver struct {
	protocol model.Protocol
	delay    time.Duration
	fail     map[string]model.ErrorKind
	panicOn  string
	started  chan string // 每次开始执行时写入目标

	inFlight int32
	peak     int32
	calls    int32
}

func (f *fakeDriver) Name() string             { return string(f.protocol) }
func (f *fakeDriver) Protocol() model.Protocol { return f.protocol }

func (f *fakeDriver) Capture(ctx context.Context, job *model.Job) model.CaptureOutcome {
	atomic.AddInt32(&f.calls, 1)
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	if f.started != nil {
		f.started <- job.Target.String()
	}
	if job.Target.Host == f.panicOn {
		panic("boom")
	}

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return model.NewFailure(job.Target, model.KindCancelled, "cancelled")
	}
	if kind, ok := f.fail[job.Target.Host]; ok {
		return model.NewFailure(job.Target, kind, "scripted failure")
	}
	return model.NewSuccess(job.Target, job.ArtifactPath, 10, 10)
}

func makeJobs(protocol model.Protocol, n int) []*model.Job {
	jobs := make([]*model.Job, 0, n)
	for i := 0; i < n; i++ {
		t := model.Target{Protocol: protocol, Host: fmt.Sprintf("10.0.0.%d", i+1), Port: protocol.DefaultPort()}
		if protocol == model.ProtocolWeb {
			t.Scheme = "http"
		}
		jobs = append(jobs, model.NewJob(t, "/tmp/"+t.Host+".png"))
	}
	return jobs
}

func TestDispatcher_BoundsConcurrencyPerPool(t *testing.T) {
	sink := &collectSink{}
	rdp := &fakeDriver{protocol: model.ProtocolRDP, delay: 30 * time.Millisecond}
	vnc := &fakeDriver{protocol: model.ProtocolVNC, delay: 30 * time.Millisecond}

	d := NewDispatcher(sink, nil)
	d.Register(rdp, 3)
	d.Register(vnc, 1)

	jobs := append(makeJobs(model.ProtocolRDP, 12), makeJobs(model.ProtocolVNC, 4)...)
	require.NoError(t, d.Run(context.Background(), jobs))

	assert.Len(t, sink.list(), 16)
	assert.LessOrEqual(t, atomic.LoadInt32(&rdp.peak), int32(3))
	assert.Equal(t, int32(1), atomic.LoadInt32(&vnc.peak))
	assert.Equal(t, int32(12), atomic.LoadInt32(&rdp.calls))

	stats := d.Stats().Get(model.ProtocolRDP)
	assert.Equal(t, 12, stats.Queued)
	assert.Equal(t, 12, stats.Succeeded)
	assert.LessOrEqual(t, stats.Peak, 3)
	for _, job := range jobs {
		assert.Equal(t, model.JobStatusCompleted, job.Status)
		assert.Equal(t, 1, job.Attempts)
	}
}

func TestDispatcher_FailuresAreIsolated(t *testing.T) {
	sink := &collectSink{}
	driver := &fakeDriver{
		protocol: model.ProtocolVNC,
		fail:     map[string]model.ErrorKind{"10.0.0.2": model.KindAuthRequired},
		panicOn:  "10.0.0.3",
	}
	d := NewDispatcher(sink, nil)
	d.Register(driver, 2)

	jobs := makeJobs(model.ProtocolVNC, 4)
	require.NoError(t, d.Run(context.Background(), jobs))

	byHost := map[string]model.CaptureOutcome{}
	for _, o := range sink.list() {
		byHost[o.Target.Host] = o
	}
	require.Len(t, byHost, 4)
	assert.True(t, byHost["10.0.0.1"].Success)
	assert.Equal(t, model.KindAuthRequired, byHost["10.0.0.2"].Kind)
	assert.Equal(t, model.KindProtocol, byHost["10.0.0.3"].Kind)
	assert.Contains(t, byHost["10.0.0.3"].Message, "panic")
	assert.True(t, byHost["10.0.0.4"].Success)
	assert.Equal(t, model.JobStatusFailed, jobs[2].Status)
}

func TestDispatcher_MissingDriver(t *testing.T) {
	sink := &collectSink{}
	d := NewDispatcher(sink, nil)

	require.NoError(t, d.Run(context.Background(), makeJobs(model.ProtocolWeb, 2)))
	outcomes := sink.list()
	require.Len(t, outcomes, 2)
	assert.Equal(t, model.KindBackend, outcomes[0].Kind)
}

func TestDispatcher_PoolsDoNotBlockEachOther(t *testing.T) {
	sink := &collectSink{}
	slow := &fakeDriver{protocol: model.ProtocolRDP, delay: 500 * time.Millisecond}
	fast := &fakeDriver{protocol: model.ProtocolWeb, delay: time.Millisecond}

	d := NewDispatcher(sink, nil)
	d.Register(slow, 1)
	d.Register(fast, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(context.Background(), append(makeJobs(model.ProtocolRDP, 1), makeJobs(model.ProtocolWeb, 5)...))
	}()

	assert.Eventually(t, func() bool {
		return d.Stats().Get(model.ProtocolWeb).Succeeded == 5
	}, 400*time.Millisecond, 5*time.Millisecond)
	<-done
	assert.Len(t, sink.list(), 6)
}

func TestDispatcher_DrainFinishesInFlight(t *testing.T) {
	sink := &collectSink{}
	drain := make(chan struct{})
	driver := &fakeDriver{protocol: model.ProtocolRDP, delay: 200 * time.Millisecond, started: make(chan string, 16)}

	d := NewDispatcher(sink, drain)
	d.Register(driver, 2)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background(), makeJobs(model.ProtocolRDP, 10)) }()

	// 两个作业开始后进入排空
	<-driver.started
	<-driver.started
	close(drain)

	require.NoError(t, <-done)
	outcomes := sink.list()
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.True(t, o.Success, "in-flight jobs run to completion")
	}
	stats := d.Stats().Get(model.ProtocolRDP)
	assert.Equal(t, 2, stats.Started)
	assert.Equal(t, 8, stats.Skipped)
}

func TestDispatcher_CancelAbortsInFlight(t *testing.T) {
	sink := &collectSink{}
	driver := &fakeDriver{protocol: model.ProtocolVNC, delay: 5 * time.Second}

	d := NewDispatcher(sink, nil)
	d.Register(driver, 2)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	require.NoError(t, d.Run(ctx, makeJobs(model.ProtocolVNC, 6)))
	assert.Less(t, time.Since(start), 2*time.Second)
	for _, o := range sink.list() {
		assert.Equal(t, model.KindCancelled, o.Kind)
	}
}

func TestDispatcher_Rate(t *testing.T) {
	sink := &collectSink{}
	driver := &fakeDriver{protocol: model.ProtocolWeb}

	d := NewDispatcher(sink, nil)
	d.Register(driver, 4)
	d.SetRate(20)

	start := time.Now()
	require.NoError(t, d.Run(context.Background(), makeJobs(model.ProtocolWeb, 5)))
	// 令牌桶容量 1，后 4 个作业各等待约 50ms
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Len(t, sink.list(), 5)
}
