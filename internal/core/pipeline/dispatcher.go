/**
 * 作业分发
 * @date: 2026.10.16
 * @description: 按协议把作业分到独立的工作池，每个池有自己的并发上限，池之间互不阻塞
 */
package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nccgroup/scrying/internal/core/capture"
	"github.com/nccgroup/scrying/internal/core/model"
	"github.com/nccgroup/scrying/internal/pkg/logger"
)

// Sink 结果接收方，必须并发安全
type Sink interface {
	Add(outcome model.CaptureOutcome)
}

// Dispatcher 作业分发器
type Dispatcher struct {
	drivers map[model.Protocol]capture.Driver
	workers map[model.Protocol]int
	rate    float64 // 每个池每秒最多开始的作业数，0 不限
	sink    Sink
	drain   <-chan struct{}
	stats   *Stats
}

// NewDispatcher 创建分发器，drain 关闭后各池不再开始新作业
func NewDispatcher(sink Sink, drain <-chan struct{}) *Dispatcher {
	return &Dispatcher{
		drivers: make(map[model.Protocol]capture.Driver),
		workers: make(map[model.Protocol]int),
		sink:    sink,
		drain:   drain,
		stats:   NewStats(),
	}
}

// Register 注册协议驱动及其 worker 数
func (d *Dispatcher) Register(driver capture.Driver, workers int) {
	d.drivers[driver.Protocol()] = driver
	d.workers[driver.Protocol()] = workers
}

// SetRate 设置每个池的作业启动速率
func (d *Dispatcher) SetRate(perSecond float64) {
	d.rate = perSecond
}

// Stats 运行统计
func (d *Dispatcher) Stats() *Stats {
	return d.stats
}

// Run 执行全部作业，阻塞到所有池结束
// 单个作业的失败不会影响其他作业，返回的 error 只表示调度本身无法进行
func (d *Dispatcher) Run(ctx context.Context, jobs []*model.Job) error {
	queues := make(map[model.Protocol][]*model.Job)
	for _, job := range jobs {
		queues[job.Target.Protocol] = append(queues[job.Target.Protocol], job)
	}

	// 没有对应驱动的作业直接记为失败，保证每个作业都有结果
	for protocol, queue := range queues {
		if _, ok := d.drivers[protocol]; ok {
			continue
		}
		for _, job := range queue {
			outcome := model.NewFailure(job.Target, model.KindBackend, fmt.Sprintf("no capture driver for protocol %q", protocol))
			job.Finish(outcome)
			d.stats.addOutcome(protocol, false)
			logOutcome(outcome)
			d.sink.Add(outcome)
		}
		delete(queues, protocol)
	}

	var g errgroup.Group
	for _, protocol := range model.Protocols {
		queue := queues[protocol]
		if len(queue) == 0 {
			continue
		}
		p := newPool(protocol, d.drivers[protocol], d.workers[protocol], queue, d.rate, d.sink, d.drain, d.stats)
		g.Go(func() error {
			p.run(ctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, s := range d.stats.All() {
		logger.Debugf("[Dispatcher] %s: queued=%d started=%d ok=%d failed=%d skipped=%d peak=%d/%d",
			s.Protocol.Label(), s.Queued, s.Started, s.Succeeded, s.Failed, s.Skipped, s.Peak, s.Workers)
	}
	return nil
}
