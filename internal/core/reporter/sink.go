package reporter

import (
	"sort"
	"sync"

	"github.com/nccgroup/scrying/internal/core/model"
)

// protocolRank 报告中的协议顺序
var protocolRank = map[model.Protocol]int{
	model.ProtocolRDP: 0,
	model.ProtocolWeb: 1,
	model.ProtocolVNC: 2,
}

// Sink 并发安全的结果汇总，只追加
type Sink struct {
	mu       sync.Mutex
	outcomes []model.CaptureOutcome
}

func NewSink() *Sink {
	return &Sink{}
}

// Add 追加一个结果，可被多个 worker 同时调用
func (s *Sink) Add(outcome model.CaptureOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
}

// Len 已收到的结果数
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outcomes)
}

// Snapshot 返回按协议、目标排序的副本
func (s *Sink) Snapshot() []model.CaptureOutcome {
	s.mu.Lock()
	out := make([]model.CaptureOutcome, len(s.outcomes))
	copy(out, s.outcomes)
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := protocolRank[out[i].Target.Protocol], protocolRank[out[j].Target.Protocol]
		if pi != pj {
			return pi < pj
		}
		return out[i].Target.String() < out[j].Target.String()
	})
	return out
}
