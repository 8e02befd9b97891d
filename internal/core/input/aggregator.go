/**
 * 输入聚合
 * @description: 合并 CLI / 目标文件 / Nmap / Nessus 四类来源，按首次出现顺序去重。
 * 单个来源解析失败只记录警告，不影响其他来源。
 */

package input

import (
	"context"
	"fmt"

	"github.com/nccgroup/scrying/internal/core/model"
	"github.com/nccgroup/scrying/internal/pkg/logger"
)

// Sources 全部输入来源
type Sources struct {
	Targets     []string // CLI 目标
	Files       []string // 目标文件
	NmapFiles   []string
	NessusFiles []string
}

// Empty 是否没有任何来源
func (s Sources) Empty() bool {
	return len(s.Targets) == 0 && len(s.Files) == 0 && len(s.NmapFiles) == 0 && len(s.NessusFiles) == 0
}

// SourceError 某个来源整体失败 (文件不存在、XML 损坏)
type SourceError struct {
	Source model.Source
	Name   string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s source %s: %v", e.Source, e.Name, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Aggregator 输入聚合器
type Aggregator struct {
	sources  Sources
	mode     model.Mode
	webPaths []string

	targets       []model.Target
	seen          map[model.TargetKey]bool
	sourceErrors  []error
	parseFailures int
}

// NewAggregator 创建聚合器，webPaths 为每个 Web 目标额外请求的路径
func NewAggregator(sources Sources, mode model.Mode, webPaths []string) *Aggregator {
	return &Aggregator{
		sources:  sources,
		mode:     mode,
		webPaths: webPaths,
		seen:     make(map[model.TargetKey]bool),
	}
}

// Aggregate 解析全部来源，返回去重后的有序目标列表
// 结果为空时返回 ErrNoTargets
func (a *Aggregator) Aggregate(ctx context.Context) ([]model.Target, error) {
	// 1. CLI 目标
	for _, raw := range a.sources.Targets {
		a.addRaw(raw, model.SourceCLI)
	}

	// 2. 目标文件
	for _, path := range a.sources.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines, err := ReadTargetFile(path)
		if err != nil {
			a.sourceFailed(model.SourceFile, path, err)
		}
		for _, line := range lines {
			a.addRaw(line, model.SourceFile)
		}
	}

	// 3. Nmap
	for _, path := range a.sources.NmapFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := ReadNmapFile(path)
		if err != nil {
			a.sourceFailed(model.SourceNmap, path, err)
			continue
		}
		a.addRecords(records, model.SourceNmap, path)
	}

	// 4. Nessus
	for _, path := range a.sources.NessusFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := ReadNessusFile(path)
		if err != nil {
			a.sourceFailed(model.SourceNessus, path, err)
			continue
		}
		a.addRecords(records, model.SourceNessus, path)
	}

	if len(a.targets) == 0 {
		return nil, ErrNoTargets
	}
	return a.targets, nil
}

// Summary 各协议目标数量
func (a *Aggregator) Summary() map[model.Protocol]int {
	counts := make(map[model.Protocol]int)
	for _, t := range a.targets {
		counts[t.Protocol]++
	}
	return counts
}

// SourceErrors 失败的来源
func (a *Aggregator) SourceErrors() []error {
	return a.sourceErrors
}

// ParseFailures 无法解析的目标字符串数量
func (a *Aggregator) ParseFailures() int {
	return a.parseFailures
}

func (a *Aggregator) sourceFailed(source model.Source, name string, err error) {
	serr := &SourceError{Source: source, Name: name, Err: err}
	a.sourceErrors = append(a.sourceErrors, serr)
	logger.Warnf("[Input] %v", serr)
}

func (a *Aggregator) addRaw(raw string, source model.Source) {
	t, err := Classify(raw, a.mode)
	if err != nil {
		a.parseFailures++
		logger.Warnf("[Input] %v", err)
		return
	}
	t.Source = source
	logger.Debugf("[Input] %s parsed as %s target", raw, t.Protocol.Label())
	a.add(t)
}

func (a *Aggregator) addRecords(records []ServiceRecord, source model.Source, name string) {
	added := 0
	for _, rec := range records {
		t, ok := recordToTarget(rec, a.mode, source)
		if !ok {
			continue
		}
		added += a.add(t)
	}
	logger.Infof("[Input] %s: %d targets imported from %d service records", name, added, len(records))
}

// add 加入目标 (及其额外 Web 路径)，返回新增数量
func (a *Aggregator) add(t model.Target) int {
	added := 0
	candidates := []model.Target{t}
	if t.Protocol == model.ProtocolWeb {
		for _, p := range a.webPaths {
			candidates = append(candidates, t.WithPath(p))
		}
	}
	for _, c := range candidates {
		key := c.Key()
		if a.seen[key] {
			logger.Debugf("[Input] duplicate target %s from %s ignored", c, c.Source)
			continue
		}
		a.seen[key] = true
		a.targets = append(a.targets, c)
		added++
	}
	return added
}
