package reporter

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/nccgroup/scrying/internal/core/lib/imaging"
	"github.com/nccgroup/scrying/internal/core/model"
	"github.com/nccgroup/scrying/internal/pkg/logger"
	"github.com/nccgroup/scrying/internal/pkg/version"
)

//go:embed templates/report.html
var templateFS embed.FS

var reportTemplate = template.Must(template.ParseFS(templateFS, "templates/report.html"))

// HTMLReporter 生成可浏览的 report.html
type HTMLReporter struct {
	FilePath string
}

func NewHTMLReporter(filePath string) *HTMLReporter {
	return &HTMLReporter{FilePath: filePath}
}

type reportCapture struct {
	Target string
	Link   string // 仅 Web 目标可点击
	Image  string
	Size   string
}

type reportFailure struct {
	Target      string
	Kind        model.ErrorKind
	Description string
	Message     string
}

type reportSection struct {
	ID       string
	Title    string
	Total    int
	Captures []reportCapture
	Failures []reportFailure
}

type reportData struct {
	Generated string
	Version   string
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Sections  []reportSection
	Targets   []string
}

func (r *HTMLReporter) Name() string { return "html" }

// Report 渲染并写出报告
func (r *HTMLReporter) Report(ctx context.Context, summary *Summary) error {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, buildReportData(summary)); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if err := imaging.WriteFile(r.FilePath, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.Infof("[Reporter] Report saved to %s", r.FilePath)
	return nil
}

// buildReportData 按协议分组，RDP / Web / VNC 依次排列
func buildReportData(summary *Summary) reportData {
	ok, failed := summary.Counts()
	data := reportData{
		Generated: time.Now().Format(time.RFC1123),
		Version:   version.GetVersion(),
		Total:     len(summary.Targets),
		Succeeded: ok,
		Failed:    failed,
		Skipped:   summary.Skipped,
	}

	totals := make(map[model.Protocol]int)
	for _, t := range summary.Targets {
		totals[t.Protocol]++
		data.Targets = append(data.Targets, t.URL())
	}

	sections := make(map[model.Protocol]*reportSection)
	for _, p := range model.Protocols {
		sections[p] = &reportSection{
			ID:    string(p),
			Title: p.Label(),
			Total: totals[p],
		}
	}

	for _, o := range summary.Outcomes {
		s, exists := sections[o.Target.Protocol]
		if !exists {
			continue
		}
		if o.Success {
			c := reportCapture{
				Target: o.Target.String(),
				Image:  o.RelativeImagePath(summary.OutputDir),
			}
			if o.Target.Protocol == model.ProtocolWeb {
				c.Link = o.Target.URL()
			}
			if o.Width > 0 {
				c.Size = fmt.Sprintf("%dx%d", o.Width, o.Height)
			}
			s.Captures = append(s.Captures, c)
			continue
		}
		s.Failures = append(s.Failures, reportFailure{
			Target:      o.Target.String(),
			Kind:        o.Kind,
			Description: o.Kind.Description(),
			Message:     o.Message,
		})
	}

	for _, p := range model.Protocols {
		s := sections[p]
		if s.Total == 0 && len(s.Captures) == 0 && len(s.Failures) == 0 {
			continue
		}
		data.Sections = append(data.Sections, *s)
	}
	return data
}
