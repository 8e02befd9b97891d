// 日志管理器
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nccgroup/scrying/internal/config"
)

// LoggerManager 日志管理器
type LoggerManager struct {
	logger *logrus.Logger
	config *config.LogConfig
	file   io.WriteCloser
}

// LoggerInstance 全局日志实例
var LoggerInstance *LoggerManager

// timestampFormat 毫秒精度，不显示时区
const timestampFormat = "2006-01-02 15:04:05.000"

// InitLogger 初始化日志管理器
// 终端与日志文件各自拥有独立级别 (--silent 只影响终端)，通过 hook 分发
func InitLogger(cfg *config.LogConfig) (*LoggerManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("log config cannot be nil")
	}

	logger := logrus.New()

	// 1. 终端级别
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		logger.Warnf("Invalid log level '%s', using 'info' as default", cfg.Level)
	}

	// 2. 终端输出
	terminal, err := terminalWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set log output: %w", err)
	}
	formatter, err := newFormatter(cfg.Format, true)
	if err != nil {
		return nil, fmt.Errorf("failed to set log formatter: %w", err)
	}

	// 真实写出全部交给 hook，logger 自身只负责级别过滤
	logger.SetOutput(io.Discard)
	logger.SetFormatter(formatter)
	logger.AddHook(newWriterHook(terminal, formatter, level))

	lm := &LoggerManager{
		logger: logger,
		config: cfg,
	}

	// 3. 日志文件 (lumberjack 轮转)
	maxLevel := level
	if cfg.FilePath != "" {
		fileLevel := level
		if cfg.FileLevel != "" {
			if l, err := logrus.ParseLevel(cfg.FileLevel); err == nil {
				fileLevel = l
			}
		}
		file, err := openLogFile(cfg)
		if err != nil {
			return nil, err
		}
		fileFormatter, _ := newFormatter("text", false)
		if strings.EqualFold(cfg.Format, "json") {
			fileFormatter, _ = newFormatter("json", false)
		}
		logger.AddHook(newWriterHook(file, fileFormatter, fileLevel))
		lm.file = file
		if fileLevel > maxLevel {
			maxLevel = fileLevel
		}
	}

	logger.SetLevel(maxLevel)
	logger.SetReportCaller(cfg.Caller)

	LoggerInstance = lm
	return lm, nil
}

// newFormatter 创建格式化器
func newFormatter(format string, colors bool) (logrus.Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return &logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
				logrus.FieldKeyFunc:  "function",
				logrus.FieldKeyFile:  "file",
			},
		}, nil
	case "", "text":
		return &logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
			ForceColors:     colors,
			DisableColors:   !colors,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

// terminalWriter 终端输出目标
func terminalWriter(cfg *config.LogConfig) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "none":
		return io.Discard, nil
	default:
		return nil, fmt.Errorf("unsupported log output: %s", cfg.Output)
	}
}

// openLogFile 打开轮转日志文件
func openLogFile(cfg *config.LogConfig) (io.WriteCloser, error) {
	logDir := filepath.Dir(cfg.FilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,    // MB
		MaxBackups: cfg.MaxBackups, // 保留的备份文件数
		MaxAge:     cfg.MaxAge,     // 保留天数
		Compress:   cfg.Compress,
	}, nil
}

// writerHook 按级别把日志写到指定 writer
type writerHook struct {
	writer    io.Writer
	formatter logrus.Formatter
	levels    []logrus.Level
}

func newWriterHook(w io.Writer, f logrus.Formatter, max logrus.Level) *writerHook {
	levels := make([]logrus.Level, 0, len(logrus.AllLevels))
	for _, l := range logrus.AllLevels {
		if l <= max {
			levels = append(levels, l)
		}
	}
	return &writerHook{writer: w, formatter: f, levels: levels}
}

func (h *writerHook) Levels() []logrus.Level { return h.levels }

func (h *writerHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}

// GetLogger 获取logrus实例
func (lm *LoggerManager) GetLogger() *logrus.Logger {
	return lm.logger
}

// GetConfig 获取日志配置
func (lm *LoggerManager) GetConfig() *config.LogConfig {
	return lm.config
}

// Close 关闭日志文件
func (lm *LoggerManager) Close() error {
	if lm.file != nil {
		return lm.file.Close()
	}
	return nil
}

// Writer 返回指定级别的 io.Writer，用于接管第三方库的 log.Logger
func Writer(level logrus.Level) io.Writer {
	if LoggerInstance == nil {
		return io.Discard
	}
	return LoggerInstance.logger.WriterLevel(level)
}

// IsLevelEnabled 全局实例是否启用该级别
func IsLevelEnabled(level logrus.Level) bool {
	return LoggerInstance != nil && LoggerInstance.logger.IsLevelEnabled(level)
}

// 便捷方法：获取全局日志实例

// Tracef 记录格式化跟踪日志
func Tracef(format string, args ...interface{}) {
	if LoggerInstance != nil {
		LoggerInstance.logger.Tracef(format, args...)
	}
}

// Debugf 记录格式化调试日志
func Debugf(format string, args ...interface{}) {
	if LoggerInstance != nil {
		LoggerInstance.logger.Debugf(format, args...)
	}
}

// Info 记录信息日志
func Info(args ...interface{}) {
	if LoggerInstance != nil {
		LoggerInstance.logger.Info(args...)
	}
}

// Infof 记录格式化信息日志
func Infof(format string, args ...interface{}) {
	if LoggerInstance != nil {
		LoggerInstance.logger.Infof(format, args...)
	}
}

// Warnf 记录格式化警告日志
func Warnf(format string, args ...interface{}) {
	if LoggerInstance != nil {
		LoggerInstance.logger.Warnf(format, args...)
	}
}

// Errorf 记录格式化错误日志
func Errorf(format string, args ...interface{}) {
	if LoggerInstance != nil {
		LoggerInstance.logger.Errorf(format, args...)
	}
}

// WithField 添加单个字段
func WithField(key string, value interface{}) *logrus.Entry {
	if LoggerInstance != nil {
		return LoggerInstance.logger.WithField(key, value)
	}
	return logrus.NewEntry(discardLogger)
}

// WithFields 添加多个字段
func WithFields(fields logrus.Fields) *logrus.Entry {
	if LoggerInstance != nil {
		return LoggerInstance.logger.WithFields(fields)
	}
	return logrus.NewEntry(discardLogger)
}

// discardLogger 未初始化时使用，避免测试中输出到标准 logger
var discardLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()
