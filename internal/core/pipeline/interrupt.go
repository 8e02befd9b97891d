package pipeline

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nccgroup/scrying/internal/pkg/logger"
)

// InterruptController 两段式中断处理
// 第一次信号: 进入排空状态，不再开始新作业，已开始的作业正常完成并出报告
// 第二次信号: 取消运行 ctx 并调用 abort 回调，不出报告
type InterruptController struct {
	signals <-chan os.Signal
	cancel  context.CancelFunc
	onAbort func()

	drain     chan struct{}
	drainOnce sync.Once
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}

	mu      sync.Mutex
	count   int
	aborted bool
}

// NewInterruptController signals 为信号来源，cancel 取消运行 ctx，onAbort 可为 nil
func NewInterruptController(signals <-chan os.Signal, cancel context.CancelFunc, onAbort func()) *InterruptController {
	return &InterruptController{
		signals: signals,
		cancel:  cancel,
		onAbort: onAbort,
		drain:   make(chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// NotifySignals 订阅 SIGINT/SIGTERM，返回的函数取消订阅
func NotifySignals() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch, func() { signal.Stop(ch) }
}

// Start 开始监听信号
func (c *InterruptController) Start() {
	go c.loop()
}

// Stop 停止监听，运行正常结束后调用
func (c *InterruptController) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

func (c *InterruptController) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case sig, ok := <-c.signals:
			if !ok {
				return
			}
			if c.handle(sig) {
				return
			}
		}
	}
}

// handle 处理一次信号，返回 true 表示已中止
func (c *InterruptController) handle(sig os.Signal) bool {
	c.mu.Lock()
	c.count++
	count := c.count
	if count >= 2 {
		c.aborted = true
	}
	c.mu.Unlock()

	if count == 1 {
		c.drainOnce.Do(func() { close(c.drain) })
		logger.LogSystemEvent("Interrupt", "drain",
			"Received "+sig.String()+", waiting for in-flight captures to finish (interrupt again to abort)",
			logger.WarnLevel, nil)
		return false
	}

	logger.LogSystemEvent("Interrupt", "abort",
		"Received second "+sig.String()+", aborting without report",
		logger.ErrorLevel, nil)
	c.drainOnce.Do(func() { close(c.drain) })
	if c.cancel != nil {
		c.cancel()
	}
	if c.onAbort != nil {
		c.onAbort()
	}
	return true
}

// Drain 进入排空状态时关闭
func (c *InterruptController) Drain() <-chan struct{} {
	return c.drain
}

// Draining 是否已收到第一次信号
func (c *InterruptController) Draining() bool {
	return isDraining(c.drain)
}

// Aborted 是否已收到第二次信号
func (c *InterruptController) Aborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}
