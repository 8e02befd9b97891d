package reporter

import (
	"context"
	"fmt"
	"io"

	"github.com/pterm/pterm"
)

// ConsoleReporter 控制台输出结果表格与统计
type ConsoleReporter struct {
	writer io.Writer // 为 nil 时使用 pterm 默认输出
}

func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{}
}

// WithWriter 输出到指定 writer
func (r *ConsoleReporter) WithWriter(w io.Writer) *ConsoleReporter {
	r.writer = w
	return r
}

func (r *ConsoleReporter) Name() string { return "console" }

func (r *ConsoleReporter) Report(ctx context.Context, summary *Summary) error {
	if len(summary.Outcomes) == 0 {
		r.warning("No captures were attempted.")
		return nil
	}

	var headers []string
	var rows [][]string
	for _, o := range summary.Outcomes {
		var tabular TabularData = o
		if headers == nil {
			headers = tabular.Headers()
		}
		rows = append(rows, tabular.Rows()...)
	}
	if err := r.printTableFromData(headers, rows); err != nil {
		return err
	}

	ok, failed := summary.Counts()
	line := fmt.Sprintf("%d targets: %d captured, %d failed", len(summary.Targets), ok, failed)
	if summary.Skipped > 0 {
		line += fmt.Sprintf(", %d not started", summary.Skipped)
	}
	if failed == 0 && summary.Skipped == 0 {
		r.success(line)
	} else {
		r.info(line)
	}
	return nil
}

func (r *ConsoleReporter) printTableFromData(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	tableData := pterm.TableData{headers}
	tableData = append(tableData, rows...)

	table := pterm.DefaultTable.
		WithHasHeader(true).
		WithBoxed(false).
		WithData(tableData)
	if r.writer != nil {
		table = table.WithWriter(r.writer)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

func (r *ConsoleReporter) success(msg string) {
	if r.writer != nil {
		pterm.Success.WithWriter(r.writer).Println(msg)
		return
	}
	pterm.Success.Println(msg)
}

func (r *ConsoleReporter) info(msg string) {
	if r.writer != nil {
		pterm.Info.WithWriter(r.writer).Println(msg)
		return
	}
	pterm.Info.Println(msg)
}

func (r *ConsoleReporter) warning(msg string) {
	if r.writer != nil {
		pterm.Warning.WithWriter(r.writer).Println(msg)
		return
	}
	pterm.Warning.Println(msg)
}
