package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/nccgroup/scrying/internal/core/model"
)

// ErrorKind 与 model.ErrorKind 相同，便于驱动直接引用
type ErrorKind = model.ErrorKind

// 哨兵错误，errors.Is 按 kind 匹配
var (
	ErrConnect           = &Error{Kind: model.KindConnect}
	ErrAuthRequired      = &Error{Kind: model.KindAuthRequired}
	ErrTimeout           = &Error{Kind: model.KindTimeout}
	ErrNoData            = &Error{Kind: model.KindNoData}
	ErrProtocol          = &Error{Kind: model.KindProtocol}
	ErrUnsupportedServer = &Error{Kind: model.KindUnsupportedServer}
	ErrBackend           = &Error{Kind: model.KindBackend}
	ErrIO                = &Error{Kind: model.KindIO}
	ErrCancelled         = &Error{Kind: model.KindCancelled}
)

// Error 截图失败
type Error struct {
	Kind   ErrorKind
	Target string
	Err    error
}

// NewError 包装底层错误
func NewError(kind ErrorKind, target string, err error) *Error {
	return &Error{Kind: kind, Target: target, Err: err}
}

// Errorf 构造带格式化信息的错误
func Errorf(kind ErrorKind, target, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Target: target, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil && e.Target == "":
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Target, e.Kind)
	case e.Target == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Target, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按 kind 匹配，ErrAuthRequired 等哨兵值可直接用于 errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Target == "" || t.Target == e.Target)
}

// Message 面向报告的错误信息，不重复目标与 kind
func (e *Error) Message() string {
	if e.Err == nil {
		return e.Kind.Description()
	}
	return e.Err.Error()
}

// KindOf 把任意错误归类到失败类型
// 已是 *Error 时直接取 kind，否则按网络与上下文错误推断，无法判断时归为 protocol_error
func KindOf(err error) ErrorKind {
	if err == nil {
		return model.KindNone
	}

	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}

	switch {
	case errors.Is(err, context.Canceled):
		return model.KindCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return model.KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return model.KindConnect
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return model.KindConnect
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return model.KindConnect
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return model.KindProtocol
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return model.KindIO
	}

	return model.KindProtocol
}

// Wrap 将错误转换为 *Error，kind 由 KindOf 推断
func Wrap(target string, err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		if ce.Target == "" {
			return &Error{Kind: ce.Kind, Target: target, Err: ce.Err}
		}
		return ce
	}
	return &Error{Kind: KindOf(err), Target: target, Err: err}
}

// Failure 由错误构造失败结果
func Failure(t model.Target, err error) model.CaptureOutcome {
	ce := Wrap(t.String(), err)
	return model.NewFailure(t, ce.Kind, ce.Message())
}
