package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Level 日志级别
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel 解析配置中的级别名称，大小写不敏感
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "", "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

// Logger 日志接口
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	// WithPrefix 返回共享输出与级别、在消息前附加前缀的日志
	WithPrefix(prefix string) Logger
}

type sink struct {
	mu     sync.Mutex
	level  Level
	output io.Writer
}

// DefaultLogger 输出 "[LEVEL] prefix message" 格式的文本日志
type DefaultLogger struct {
	sink   *sink
	prefix string
}

// New 创建写到标准错误的日志
func New(level Level) *DefaultLogger {
	return NewWithOutput(level, os.Stderr)
}

// NewWithOutput 创建写到指定输出的日志
func NewWithOutput(level Level, output io.Writer) *DefaultLogger {
	return &DefaultLogger{sink: &sink{level: level, output: output}}
}

// SetLevel 设置日志级别，对所有派生日志生效
func (l *DefaultLogger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// GetLevel 获取日志级别
func (l *DefaultLogger) GetLevel() Level {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.level
}

func (l *DefaultLogger) Debug(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }
func (l *DefaultLogger) Info(format string, args ...interface{})  { l.log(LevelInfo, format, args...) }
func (l *DefaultLogger) Warn(format string, args ...interface{})  { l.log(LevelWarn, format, args...) }
func (l *DefaultLogger) Error(format string, args ...interface{}) { l.log(LevelError, format, args...) }

func (l *DefaultLogger) WithPrefix(prefix string) Logger {
	p := prefix
	if l.prefix != "" {
		p = l.prefix + " " + prefix
	}
	return &DefaultLogger{sink: l.sink, prefix: p}
}

func (l *DefaultLogger) log(level Level, format string, args ...interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if level > l.sink.level {
		return
	}

	message := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		fmt.Fprintf(l.sink.output, "[%s] %s %s\n", level, l.prefix, message)
		return
	}
	fmt.Fprintf(l.sink.output, "[%s] %s\n", level, message)
}

// NoOpLogger 空日志实现（用于禁用日志）
type NoOpLogger struct{}

func (NoOpLogger) Debug(format string, args ...interface{}) {}
func (NoOpLogger) Info(format string, args ...interface{})  {}
func (NoOpLogger) Warn(format string, args ...interface{})  {}
func (NoOpLogger) Error(format string, args ...interface{}) {}
func (n NoOpLogger) WithPrefix(string) Logger               { return n }

// OrNoOp nil 时返回 NoOpLogger
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}
