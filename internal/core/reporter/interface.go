/**
 * 结果输出接口定义
 * @date: 2026.10.16
 * @description: 所有池结束后，把结果汇总输出到 HTML 报告 / JSON / CSV / 控制台
 */

package reporter

import (
	"context"
	"errors"

	"github.com/nccgroup/scrying/internal/core/model"
)

// TabularData 是一个可以被渲染为表格的数据接口
type TabularData interface {
	Headers() []string
	Rows() [][]string
}

// Summary 一次运行的全部结果
type Summary struct {
	OutputDir string                 // 输出根目录，报告中的图片链接相对于它
	Targets   []model.Target         // 去重后的全部目标
	Outcomes  []model.CaptureOutcome // 已排序的结果
	Skipped   int                    // 排空后未执行的作业数
}

// Counts 成功与失败数
func (s *Summary) Counts() (ok, failed int) {
	for _, o := range s.Outcomes {
		if o.Success {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// Reporter 定义结果输出的行为
type Reporter interface {
	Name() string
	Report(ctx context.Context, summary *Summary) error
}

// MultiReporter 依次调用多个 Reporter，单个失败不影响其他
type MultiReporter struct {
	reporters []Reporter
}

func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	return &MultiReporter{
		reporters: reporters,
	}
}

func (m *MultiReporter) Name() string { return "multi" }

func (m *MultiReporter) Report(ctx context.Context, summary *Summary) error {
	var errs []error
	for _, r := range m.reporters {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Report(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
