/**
 * 截图运行器
 * @date: 2026.10.16
 * @description: 输入聚合 -> 启动检查 -> 分协议工作池 -> 报告，并处理两段式中断
 */
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pterm/pterm"

	"github.com/nccgroup/scrying/internal/config"
	"github.com/nccgroup/scrying/internal/core/input"
	"github.com/nccgroup/scrying/internal/core/model"
	"github.com/nccgroup/scrying/internal/core/options"
	"github.com/nccgroup/scrying/internal/core/pipeline"
	"github.com/nccgroup/scrying/internal/core/reporter"
	"github.com/nccgroup/scrying/internal/pkg/logger"
	"github.com/nccgroup/scrying/internal/pkg/monitor"
)

// DriverSource 按需要的协议提供驱动
type DriverSource func(protocols []model.Protocol) (*DriverManager, error)

// CaptureRunner 一次完整的截图运行
type CaptureRunner struct {
	cfg    *config.Config
	opts   *options.CaptureOptions
	output *options.OutputOptions

	drivers DriverSource
	signals <-chan os.Signal
	onAbort func()
	probe   *monitor.Probe
	stdout  io.Writer
}

// NewCaptureRunner 创建运行器，驱动默认按配置创建
func NewCaptureRunner(cfg *config.Config, opts *options.CaptureOptions) *CaptureRunner {
	return &CaptureRunner{
		cfg:  cfg,
		opts: opts,
		output: &options.OutputOptions{
			Dir:      cfg.Capture.OutputDir,
			NoReport: cfg.Capture.NoReport,
			CSV:      opts.CSV,
		},
		drivers: func(protocols []model.Protocol) (*DriverManager, error) {
			return NewDriverManagerFromConfig(cfg, protocols)
		},
		stdout: os.Stdout,
	}
}

// WithDrivers 替换驱动来源
func (r *CaptureRunner) WithDrivers(src DriverSource) *CaptureRunner {
	r.drivers = src
	return r
}

// WithSignals 设置中断信号来源，为 nil 时不处理中断
func (r *CaptureRunner) WithSignals(signals <-chan os.Signal) *CaptureRunner {
	r.signals = signals
	return r
}

// WithAbortHook 第二次中断时调用，生产环境直接退出进程
func (r *CaptureRunner) WithAbortHook(f func()) *CaptureRunner {
	r.onAbort = f
	return r
}

// WithProbe 替换启动检查使用的系统探针
func (r *CaptureRunner) WithProbe(p monitor.Probe) *CaptureRunner {
	r.probe = &p
	return r
}

// WithStdout 控制台结果输出位置
func (r *CaptureRunner) WithStdout(w io.Writer) *CaptureRunner {
	r.stdout = w
	return r
}

// Run 执行并返回退出码
func (r *CaptureRunner) Run(ctx context.Context) (int, error) {
	// 1. 输入聚合
	mode, err := model.ParseMode(r.cfg.Capture.Mode)
	if err != nil {
		return ExitStartup, err
	}
	agg := input.NewAggregator(r.opts.Sources(), mode, r.cfg.Capture.WebPaths)
	targets, err := agg.Aggregate(ctx)
	if err != nil {
		if errors.Is(err, input.ErrNoTargets) {
			return ExitNoTargets, err
		}
		return ExitStartup, err
	}
	counts := agg.Summary()
	logger.Infof("[Runner] %d targets (RDP %d, Web %d, VNC %d)",
		len(targets), counts[model.ProtocolRDP], counts[model.ProtocolWeb], counts[model.ProtocolVNC])
	skipped := importSkipped{sources: len(agg.SourceErrors()), targets: agg.ParseFailures()}
	if skipped.any() {
		logger.Warnf("[Runner] %s", skipped)
	}

	if r.opts.TestImport {
		return ExitOK, r.printImport(targets, counts, skipped)
	}

	// 2. 输出目录与启动检查
	if err := r.output.Validate(); err != nil {
		return ExitStartup, err
	}
	webWorkers := 0
	if counts[model.ProtocolWeb] > 0 {
		webWorkers = r.cfg.Workers.Web
	}
	probe := monitor.SystemProbe()
	if r.probe != nil {
		probe = *r.probe
	}
	monitor.Preflight(probe, r.output.Dir, webWorkers).Log()

	// 3. 驱动
	protocols := make([]model.Protocol, 0, len(counts))
	for _, p := range model.Protocols {
		if counts[p] > 0 {
			protocols = append(protocols, p)
		}
	}
	drivers, err := r.drivers(protocols)
	if err != nil {
		return ExitStartup, fmt.Errorf("failed to create capture drivers: %w", err)
	}
	defer func() {
		if err := drivers.Close(); err != nil {
			logger.Warnf("[Runner] Failed to release drivers: %v", err)
		}
	}()

	// 4. 作业，输出文件名预先分配
	namer := input.NewArtifactNamer(r.output.Dir)
	jobs := make([]*model.Job, 0, len(targets))
	for _, t := range targets {
		jobs = append(jobs, model.NewJob(t, namer.Assign(t)))
	}

	// 5. 中断处理与分发
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	signals := r.signals
	if signals == nil {
		signals = make(chan os.Signal)
	}
	interrupts := pipeline.NewInterruptController(signals, cancel, r.onAbort)
	interrupts.Start()
	defer interrupts.Stop()

	sink := reporter.NewSink()
	dispatcher := pipeline.NewDispatcher(sink, interrupts.Drain())
	dispatcher.SetRate(r.cfg.Workers.Rate)
	workers := map[model.Protocol]int{
		model.ProtocolRDP: r.cfg.Workers.RDP,
		model.ProtocolVNC: r.cfg.Workers.VNC,
		model.ProtocolWeb: r.cfg.Workers.Web,
	}
	for _, p := range protocols {
		driver, err := drivers.Get(p)
		if err != nil {
			// 没有驱动的作业由分发器记为失败
			logger.Warnf("[Runner] %v", err)
			continue
		}
		dispatcher.Register(driver, workers[p])
	}

	if err := dispatcher.Run(runCtx, jobs); err != nil {
		return ExitStartup, err
	}
	if interrupts.Aborted() {
		return ExitAborted, errors.New("aborted by second interrupt, no report written")
	}
	if ctx.Err() != nil {
		return ExitAborted, ctx.Err()
	}

	// 6. 报告
	summary := &reporter.Summary{
		OutputDir: r.output.Dir,
		Targets:   targets,
		Outcomes:  sink.Snapshot(),
		Skipped:   dispatcher.Stats().Skipped(),
	}
	if interrupts.Draining() {
		logger.Warnf("[Runner] Interrupted: reporting %d finished captures, %d targets not started",
			len(summary.Outcomes), summary.Skipped)
	}
	if err := r.reporters().Report(context.Background(), summary); err != nil {
		return ExitReportFailed, err
	}
	return ExitOK, nil
}

// reporters 按输出选项组合 Reporter
func (r *CaptureRunner) reporters() reporter.Reporter {
	list := []reporter.Reporter{
		reporter.NewConsoleReporter().WithWriter(r.stdout),
		reporter.NewJSONReporter(r.output.JSONPath()),
	}
	if r.output.CSV {
		list = append(list, reporter.NewCsvReporter(r.output.CSVPath()))
	}
	if !r.output.NoReport {
		list = append(list, reporter.NewHTMLReporter(r.output.ReportPath()))
	}
	return reporter.NewMultiReporter(list...)
}

// printImport --test-import 输出解析结果
// importSkipped 输入聚合时跳过的来源与目标
type importSkipped struct {
	sources int // 无法读取或解析的来源文件
	targets int // 无法识别的目标字符串
}

func (s importSkipped) any() bool { return s.sources > 0 || s.targets > 0 }

func (s importSkipped) String() string {
	return fmt.Sprintf("skipped %d unreadable input sources and %d unparseable targets", s.sources, s.targets)
}

func (r *CaptureRunner) printImport(targets []model.Target, counts map[model.Protocol]int, skipped importSkipped) error {
	rows := pterm.TableData{{"Protocol", "Target", "Source"}}
	for _, t := range targets {
		rows = append(rows, []string{t.Protocol.Label(), t.URL(), string(t.Source)})
	}
	if err := pterm.DefaultTable.WithHasHeader(true).WithWriter(r.stdout).WithData(rows).Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	keys := make([]string, 0, len(counts))
	for p, n := range counts {
		keys = append(keys, fmt.Sprintf("%s: %d", p.Label(), n))
	}
	sort.Strings(keys)
	pterm.Info.WithWriter(r.stdout).Printfln("%d targets parsed (%v)", len(targets), keys)
	if skipped.any() {
		pterm.Warning.WithWriter(r.stdout).Printfln("%s", skipped)
	}
	return nil
}
