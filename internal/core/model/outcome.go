package model

import (
	"fmt"
	"path/filepath"
	"time"
)

// ErrorKind 失败类型
// 报告按类型区分 "需要凭据" / "不可达" / "超时"，因此 kind 是对外契约的一部分
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindParse             ErrorKind = "parse_error"
	KindNoTargets         ErrorKind = "no_targets"
	KindConnect           ErrorKind = "connect_error"
	KindAuthRequired      ErrorKind = "auth_required"
	KindTimeout           ErrorKind = "timeout"
	KindNoData            ErrorKind = "no_data"
	KindProtocol          ErrorKind = "protocol_error"
	KindUnsupportedServer ErrorKind = "unsupported_server"
	KindBackend           ErrorKind = "backend_error"
	KindIO                ErrorKind = "io_error"
	KindCancelled         ErrorKind = "cancelled"
)

// Description 报告中展示的可读说明
func (k ErrorKind) Description() string {
	switch k {
	case KindConnect:
		return "unreachable"
	case KindAuthRequired:
		return "needs credentials"
	case KindTimeout:
		return "timed out"
	case KindNoData:
		return "no screen data"
	case KindProtocol:
		return "unexpected server response"
	case KindUnsupportedServer:
		return "unsupported server"
	case KindBackend:
		return "browser backend failure"
	case KindIO:
		return "could not write image"
	case KindCancelled:
		return "cancelled"
	case KindParse:
		return "bad target syntax"
	case KindNoTargets:
		return "no targets"
	default:
		return string(k)
	}
}

// CaptureOutcome 一个作业的最终结果，Success 与 Failure 二选一
// 构造后不可变，是 Reporter 唯一读取的实体
type CaptureOutcome struct {
	Target    Target        `json:"target"`
	Success   bool          `json:"success"`
	ImagePath string        `json:"image_path,omitempty"`
	Width     int           `json:"width,omitempty"`
	Height    int           `json:"height,omitempty"`
	Kind      ErrorKind     `json:"error_kind,omitempty"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// NewSuccess 成功结果
func NewSuccess(target Target, imagePath string, width, height int) CaptureOutcome {
	return CaptureOutcome{
		Target:    target,
		Success:   true,
		ImagePath: imagePath,
		Width:     width,
		Height:    height,
	}
}

// NewFailure 失败结果
func NewFailure(target Target, kind ErrorKind, message string) CaptureOutcome {
	return CaptureOutcome{
		Target:  target,
		Kind:    kind,
		Message: message,
	}
}

// WithDuration 附加耗时
func (o CaptureOutcome) WithDuration(d time.Duration) CaptureOutcome {
	o.Duration = d
	return o
}

// RelativeImagePath 相对于输出根目录的图片路径 (报告中的链接)
func (o CaptureOutcome) RelativeImagePath(root string) string {
	if o.ImagePath == "" {
		return ""
	}
	rel, err := filepath.Rel(root, o.ImagePath)
	if err != nil {
		return filepath.ToSlash(o.ImagePath)
	}
	return filepath.ToSlash(rel)
}

// Headers 实现 TabularData 接口
func (o CaptureOutcome) Headers() []string {
	return []string{"Protocol", "Target", "Status", "Detail", "Duration"}
}

// Rows 实现 TabularData 接口
func (o CaptureOutcome) Rows() [][]string {
	status := "ok"
	detail := o.ImagePath
	if !o.Success {
		status = string(o.Kind)
		detail = o.Message
	} else if o.Width > 0 {
		detail = fmt.Sprintf("%s (%dx%d)", o.ImagePath, o.Width, o.Height)
	}
	return [][]string{{
		o.Target.Protocol.Label(),
		o.Target.String(),
		status,
		detail,
		o.Duration.Round(time.Millisecond).String(),
	}}
}
