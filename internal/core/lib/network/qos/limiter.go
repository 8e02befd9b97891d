package qos

import (
	"context"
	"sync"
	"sync/atomic"
)

// AdaptiveLimiter 截图工作池的并发闸门 (AIMD)
// - 目标不可达或超时：乘性减少并发数，避免在网络拥塞时继续堆积连接
// - 成功：线性恢复，最多恢复到配置的 worker 数
// 任何时刻借出的令牌数都不超过 maxLimit
type AdaptiveLimiter struct {
	sem             chan struct{} // 信号量通道，用于控制并发令牌
	reductionNeeded int32         // 待销毁的令牌数量 (已借出，归还时销毁)

	currentLimit int // 当前并发限制
	minLimit     int // 最小并发限制 (保底值)
	maxLimit     int // 最大并发限制 (配置的 worker 数)

	successCount int        // 连续成功计数
	mu           sync.Mutex // 保护 limit 和 successCount 的更新

	inFlight int32 // 当前借出的令牌数
	peak     int32 // 借出数量峰值
}

// NewAdaptiveLimiter 创建一个新的自适应限流器
// initial: 初始并发数
// min: 最小并发数
// max: 最大并发数
func NewAdaptiveLimiter(initial, min, max int) *AdaptiveLimiter {
	if max < 1 {
		max = 1
	}
	if min < 1 {
		min = 1
	}
	if min > max {
		min = max
	}
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}

	l := &AdaptiveLimiter{
		sem:          make(chan struct{}, max),
		currentLimit: initial,
		minLimit:     min,
		maxLimit:     max,
	}

	for i := 0; i < initial; i++ {
		l.sem <- struct{}{}
	}

	return l
}

// NewPoolLimiter 工作池使用的闸门：从满额开始，最低保留 1 个并发
func NewPoolLimiter(workers int) *AdaptiveLimiter {
	return NewAdaptiveLimiter(workers, 1, workers)
}

// Acquire 获取一个并发令牌
// 没有令牌时阻塞，直到有令牌释放或 context 取消
func (l *AdaptiveLimiter) Acquire(ctx context.Context) error {
	select {
	case <-l.sem:
	case <-ctx.Done():
		return ctx.Err()
	}

	n := atomic.AddInt32(&l.inFlight, 1)
	for {
		p := atomic.LoadInt32(&l.peak)
		if n <= p || atomic.CompareAndSwapInt32(&l.peak, p, n) {
			break
		}
	}
	return nil
}

// Release 释放一个并发令牌
// 有待销毁的令牌时直接销毁而不是归还
func (l *AdaptiveLimiter) Release() {
	atomic.AddInt32(&l.inFlight, -1)

	if takeOne(&l.reductionNeeded) {
		return
	}

	select {
	case l.sem <- struct{}{}:
	default:
		// 归还次数多于获取次数
	}
}

// OnSuccess 通知一次成功的操作
// 每完成 currentLimit 次成功，Limit + 1
func (l *AdaptiveLimiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.successCount++
	if l.successCount >= l.currentLimit {
		l.successCount = 0
		l.increaseLimit(1)
	}
}

// OnFailure 通知一次网络层失败 (连接失败或超时)
// 当前 Limit * 0.7，至少减少 1
func (l *AdaptiveLimiter) OnFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()

	newLimit := int(float64(l.currentLimit) * 0.7)
	decrease := l.currentLimit - newLimit
	if decrease < 1 {
		decrease = 1
	}

	l.decreaseLimit(decrease)
	l.successCount = 0
}

// increaseLimit 增加并发限制
// 先抵消尚未销毁的令牌，剩余部分才注入新令牌，保证借出数不超过上限
func (l *AdaptiveLimiter) increaseLimit(n int) {
	target := l.currentLimit + n
	if target > l.maxLimit {
		target = l.maxLimit
	}

	diff := target - l.currentLimit
	if diff <= 0 {
		return
	}
	l.currentLimit = target

	for diff > 0 && takeOne(&l.reductionNeeded) {
		diff--
	}
	for i := 0; i < diff; i++ {
		select {
		case l.sem <- struct{}{}:
		default:
		}
	}
}

// decreaseLimit 减少并发限制
// 先取走空闲令牌，取不到的部分记为待销毁，在 Release 时偿还
func (l *AdaptiveLimiter) decreaseLimit(n int) {
	target := l.currentLimit - n
	if target < l.minLimit {
		target = l.minLimit
	}

	diff := l.currentLimit - target
	if diff <= 0 {
		return
	}
	l.currentLimit = target

	removed := 0
	for i := 0; i < diff; i++ {
		select {
		case <-l.sem:
			removed++
		default:
		}
	}

	if remaining := diff - removed; remaining > 0 {
		atomic.AddInt32(&l.reductionNeeded, int32(remaining))
	}
}

// takeOne 计数大于 0 时原子减 1
func takeOne(counter *int32) bool {
	for {
		val := atomic.LoadInt32(counter)
		if val <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(counter, val, val-1) {
			return true
		}
	}
}

// CurrentLimit 获取当前并发限制数
func (l *AdaptiveLimiter) CurrentLimit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLimit
}

// InFlight 当前借出的令牌数
func (l *AdaptiveLimiter) InFlight() int {
	return int(atomic.LoadInt32(&l.inFlight))
}

// Peak 借出数量峰值
func (l *AdaptiveLimiter) Peak() int {
	return int(atomic.LoadInt32(&l.peak))
}
