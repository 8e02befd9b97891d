// 结构化日志条目
package logger

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// FormatTimestamp 格式化时间戳为统一的毫秒精度格式
// 返回格式："2006-01-02 15:04:05.000"
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampFormat)
}

// LogType 日志类型枚举
type LogType string

const (
	// CaptureLog 截图日志 - 每个目标一条结果
	CaptureLog LogType = "capture"
	// InputLog 输入日志 - 目标导入情况
	InputLog LogType = "input"
	// SystemLog 系统日志 - 启动检查、中断处理等
	SystemLog LogType = "system"
)

// CaptureLogEntry 截图结果日志条目
type CaptureLogEntry struct {
	Protocol string        `json:"protocol"` // RDP / VNC / WEB
	Target   string        `json:"target"`   // 展示形式的目标
	Status   string        `json:"status"`   // completed / failed
	Kind     string        `json:"kind"`     // 失败类型
	Detail   string        `json:"detail"`   // 成功时为图片路径，失败时为错误信息
	Duration time.Duration `json:"duration"`
}

// LogCaptureOutcome 记录单个目标的截图结果，保证每个目标恰好一行
func LogCaptureOutcome(entry CaptureLogEntry, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := logrus.Fields{
		"type":     CaptureLog,
		"protocol": entry.Protocol,
		"target":   entry.Target,
		"status":   entry.Status,
		"duration": entry.Duration.Round(time.Millisecond).String(),
	}
	if entry.Kind != "" {
		fields["kind"] = entry.Kind
	}
	for k, v := range extraFields {
		fields[k] = v
	}

	log := LoggerInstance.logger.WithFields(fields)
	switch entry.Status {
	case "completed":
		log.Info(fmt.Sprintf("[%s] %s -> %s", entry.Protocol, entry.Target, entry.Detail))
	default:
		log.Warn(fmt.Sprintf("[%s] %s failed (%s): %s", entry.Protocol, entry.Target, entry.Kind, entry.Detail))
	}
}

// LogSystemEvent 记录系统事件
func LogSystemEvent(component, event, message string, level logrus.Level, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := logrus.Fields{
		"type":      SystemLog,
		"component": component,
		"event":     event,
	}
	for k, v := range extraFields {
		fields[k] = v
	}
	LoggerInstance.logger.WithFields(fields).Log(level, fmt.Sprintf("[%s] %s", component, message))
}

// 日志级别别名，调用方无需直接引入 logrus
const (
	DebugLevel = logrus.DebugLevel
	InfoLevel  = logrus.InfoLevel
	WarnLevel  = logrus.WarnLevel
	ErrorLevel = logrus.ErrorLevel
)
