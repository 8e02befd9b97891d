package reporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/nccgroup/scrying/internal/core/lib/imaging"
	"github.com/nccgroup/scrying/internal/pkg/logger"
)

// CsvReporter 将结果导出为 CSV 文件，每个目标一行
type CsvReporter struct {
	FilePath string
}

func NewCsvReporter(filePath string) *CsvReporter {
	return &CsvReporter{
		FilePath: filePath,
	}
}

func (r *CsvReporter) Name() string { return "csv" }

// Report 所有结果一次性写出
func (r *CsvReporter) Report(ctx context.Context, summary *Summary) error {
	if len(summary.Outcomes) == 0 {
		return nil
	}

	var buf bytes.Buffer
	// 写入 UTF-8 BOM，防止 Excel 打开乱码
	buf.WriteString("\xEF\xBB\xBF")

	w := csv.NewWriter(&buf)
	headers := summary.Outcomes[0].Headers()
	if err := w.Write(headers); err != nil {
		return fmt.Errorf("failed to write headers: %v", err)
	}
	for _, o := range summary.Outcomes {
		if err := w.WriteAll(o.Rows()); err != nil {
			return fmt.Errorf("failed to write rows: %v", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write csv: %v", err)
	}

	if err := imaging.WriteFile(r.FilePath, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to create csv file: %v", err)
	}
	logger.Infof("[Reporter] Results saved to %s", r.FilePath)
	return nil
}
