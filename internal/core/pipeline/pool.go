package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nccgroup/scrying/internal/core/capture"
	"github.com/nccgroup/scrying/internal/core/lib/network/qos"
	"github.com/nccgroup/scrying/internal/core/model"
	"github.com/nccgroup/scrying/internal/pkg/logger"
)

// pool 单个协议的工作池
type pool struct {
	protocol model.Protocol
	driver   capture.Driver
	workers  int
	jobs     []*model.Job

	gate    *qos.AdaptiveLimiter
	limiter *rate.Limiter // 为 nil 表示不限速
	sink    Sink
	drain   <-chan struct{}
	stats   *Stats
}

func newPool(protocol model.Protocol, driver capture.Driver, workers int, jobs []*model.Job, perSecond float64, sink Sink, drain <-chan struct{}, stats *Stats) *pool {
	if workers < 1 {
		workers = 1
	}
	p := &pool{
		protocol: protocol,
		driver:   driver,
		workers:  workers,
		jobs:     jobs,
		gate:     qos.NewPoolLimiter(workers),
		sink:     sink,
		drain:    drain,
		stats:    stats,
	}
	if perSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return p
}

// run 启动 worker 并阻塞到队列耗尽、排空完成或 ctx 结束
func (p *pool) run(ctx context.Context) {
	label := p.protocol.Label()
	p.stats.setQueued(p.protocol, p.workers, len(p.jobs))
	logger.Debugf("[Pool] %s starting %d workers for %d jobs", label, p.workers, len(p.jobs))

	feed, remaining := feedJobs(ctx, p.jobs, p.drain)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id, feed)
		}(i)
	}
	wg.Wait()

	skipped := <-remaining
	p.stats.addSkipped(p.protocol, skipped)
	p.stats.setPeak(p.protocol, p.gate.Peak())
	if skipped > 0 {
		logger.Infof("[Pool] %s stopped with %d jobs not started", label, skipped)
	}
	logger.Debugf("[Pool] %s finished (peak concurrency %d)", label, p.gate.Peak())
}

// worker 从队列取作业执行，直到队列关闭
func (p *pool) worker(ctx context.Context, id int, feed <-chan *model.Job) {
	for job := range feed {
		// 取出后再检查一次，排空信号与取出同时发生时不再开始新作业
		if isDraining(p.drain) || ctx.Err() != nil {
			p.stats.addSkipped(p.protocol, 1)
			continue
		}
		if !p.admit(ctx) {
			p.stats.addSkipped(p.protocol, 1)
			continue
		}

		p.execute(ctx, job)
		p.gate.Release()
	}
}

// admit 等待速率限制与并发闸门
func (p *pool) admit(ctx context.Context) bool {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return false
		}
		if isDraining(p.drain) {
			return false
		}
	}
	return p.gate.Acquire(ctx) == nil
}

// execute 执行单个作业，保证恰好产生一个结果
func (p *pool) execute(ctx context.Context, job *model.Job) {
	job.Start()
	p.stats.addStarted(p.protocol)

	outcome := p.capture(ctx, job)
	job.Finish(outcome)

	switch {
	case outcome.Success:
		p.gate.OnSuccess()
	case outcome.Kind == model.KindConnect || outcome.Kind == model.KindTimeout:
		p.gate.OnFailure()
	}

	p.stats.addOutcome(p.protocol, outcome.Success)
	logOutcome(outcome)
	p.sink.Add(outcome)
}

// capture 调用驱动，panic 转换为 protocol_error
func (p *pool) capture(ctx context.Context, job *model.Job) (outcome model.CaptureOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[Pool] %s driver panic on %s: %v\n%s", p.protocol.Label(), job.Target, r, debug.Stack())
			outcome = model.NewFailure(job.Target, model.KindProtocol, fmt.Sprintf("driver panic: %v", r)).
				WithDuration(time.Since(start))
		}
	}()

	outcome = p.driver.Capture(ctx, job)
	// 驱动返回的目标必须是作业本身的目标
	outcome.Target = job.Target
	if !outcome.Success && outcome.Kind == model.KindNone {
		outcome.Kind = model.KindProtocol
	}
	return outcome
}

func logOutcome(o model.CaptureOutcome) {
	entry := logger.CaptureLogEntry{
		Protocol: o.Target.Protocol.Label(),
		Target:   o.Target.String(),
		Duration: o.Duration,
	}
	if o.Success {
		entry.Status = "completed"
		entry.Detail = o.ImagePath
	} else {
		entry.Status = "failed"
		entry.Kind = string(o.Kind)
		entry.Detail = o.Message
	}
	logger.LogCaptureOutcome(entry, nil)
}
