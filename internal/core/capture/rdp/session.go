package rdp

import (
	"context"
	"errors"
	"image"
	"net"
	"time"
)

// Bitmap 一个已解码的屏幕矩形
type Bitmap struct {
	X, Y  int
	Image *image.RGBA
}

// Event 会话事件：一批位图，或终止错误
type Event struct {
	Bitmaps []Bitmap
	Err     error
}

// DialFunc 建立到目标的 TCP 连接，协商失败后重连时会再次调用
type DialFunc func(ctx context.Context) (net.Conn, error)

// SessionConfig 会话参数
type SessionConfig struct {
	Width    int
	Height   int
	User     string
	Password string
	Domain   string
	// NegotiationTimeout TCP 建立后等待安全协商完成的时间
	NegotiationTimeout time.Duration
}

// HasCredentials 是否配置了 NLA 凭据
func (c SessionConfig) HasCredentials() bool {
	return c.User != ""
}

// Session RDP 会话
// Connect 返回时安全协商已完成；之后屏幕更新通过 Events 送达，终止错误后不再有事件
type Session interface {
	Connect(ctx context.Context, dial DialFunc) error
	Events() <-chan Event
	Close() error
}

// SessionFactory 创建会话，测试中替换为 fake
type SessionFactory func(cfg SessionConfig) Session

// 会话层错误，由驱动映射为失败类型
var (
	// ErrNLARequired 服务端要求 NLA 而未配置凭据，或 NLA 认证失败
	ErrNLARequired = errors.New("server requires network level authentication")
	// ErrNegotiation 无法识别服务端的协商响应 (旧版本或非 RDP 服务)
	ErrNegotiation = errors.New("unrecognised security negotiation response")
	// ErrSessionClosed 服务端关闭了会话
	ErrSessionClosed = errors.New("session closed by server")
)
