package pipeline

import (
	"sort"
	"sync"

	"github.com/nccgroup/scrying/internal/core/model"
)

// PoolStats 单个协议池的运行统计
type PoolStats struct {
	Protocol  model.Protocol `json:"protocol"`
	Workers   int            `json:"workers"`
	Queued    int            `json:"queued"`    // 入队作业数
	Started   int            `json:"started"`   // 被 worker 接收并开始执行的作业数
	Succeeded int            `json:"succeeded"` // 成功
	Failed    int            `json:"failed"`    // 失败
	Skipped   int            `json:"skipped"`   // 进入排空状态后未执行的作业数
	Peak      int            `json:"peak"`      // 同时在执行的最大作业数
}

// Stats 所有协议池的统计
// 在各个 worker 之间共享，方法均为并发安全
type Stats struct {
	pools map[model.Protocol]*PoolStats

	mu sync.RWMutex
}

func NewStats() *Stats {
	return &Stats{
		pools: make(map[model.Protocol]*PoolStats),
	}
}

func (s *Stats) pool(protocol model.Protocol) *PoolStats {
	p, ok := s.pools[protocol]
	if !ok {
		p = &PoolStats{Protocol: protocol}
		s.pools[protocol] = p
	}
	return p
}

func (s *Stats) setQueued(protocol model.Protocol, workers, queued int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pool(protocol)
	p.Workers = workers
	p.Queued = queued
}

func (s *Stats) addStarted(protocol model.Protocol) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool(protocol).Started++
}

func (s *Stats) addOutcome(protocol model.Protocol, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pool(protocol)
	if success {
		p.Succeeded++
	} else {
		p.Failed++
	}
}

func (s *Stats) addSkipped(protocol model.Protocol, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool(protocol).Skipped += n
}

func (s *Stats) setPeak(protocol model.Protocol, peak int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pool(protocol)
	if peak > p.Peak {
		p.Peak = peak
	}
}

// Get 返回某个协议池的统计快照
func (s *Stats) Get(protocol model.Protocol) PoolStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pools[protocol]; ok {
		return *p
	}
	return PoolStats{Protocol: protocol}
}

// All 按协议名排序的统计快照
func (s *Stats) All() []PoolStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PoolStats, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Protocol < out[j].Protocol })
	return out
}

// Skipped 所有池中未执行的作业总数
func (s *Stats) Skipped() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.pools {
		n += p.Skipped
	}
	return n
}
