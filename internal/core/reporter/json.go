package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nccgroup/scrying/internal/core/lib/imaging"
	"github.com/nccgroup/scrying/internal/core/model"
	"github.com/nccgroup/scrying/internal/pkg/logger"
	"github.com/nccgroup/scrying/internal/pkg/version"
)

// JSONReporter 输出 results.json，供其他工具读取
type JSONReporter struct {
	FilePath string
}

func NewJSONReporter(filePath string) *JSONReporter {
	return &JSONReporter{FilePath: filePath}
}

type jsonOutcome struct {
	model.CaptureOutcome
	URL        string `json:"url"`
	Image      string `json:"image,omitempty"` // 相对于输出目录
	DurationMs int64  `json:"duration_ms"`
}

type jsonDocument struct {
	Version   string        `json:"version"`
	Generated time.Time     `json:"generated"`
	Targets   int           `json:"targets"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Results   []jsonOutcome `json:"results"`
}

func (r *JSONReporter) Name() string { return "json" }

func (r *JSONReporter) Report(ctx context.Context, summary *Summary) error {
	ok, failed := summary.Counts()
	doc := jsonDocument{
		Version:   version.GetVersion(),
		Generated: time.Now().UTC(),
		Targets:   len(summary.Targets),
		Succeeded: ok,
		Failed:    failed,
		Skipped:   summary.Skipped,
		Results:   make([]jsonOutcome, 0, len(summary.Outcomes)),
	}
	for _, o := range summary.Outcomes {
		doc.Results = append(doc.Results, jsonOutcome{
			CaptureOutcome: o,
			URL:            o.Target.URL(),
			Image:          o.RelativeImagePath(summary.OutputDir),
			DurationMs:     o.Duration.Milliseconds(),
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := imaging.WriteFile(r.FilePath, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(r.FilePath), err)
	}
	logger.Infof("[Reporter] Results saved to %s", r.FilePath)
	return nil
}
