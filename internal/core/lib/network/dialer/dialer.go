package dialer

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/nccgroup/scrying/internal/config"
	"github.com/nccgroup/scrying/internal/core/model"
)

// Dialer 定义了网络连接器接口
type Dialer interface {
	// DialContext 建立连接
	// network: 协议 (tcp)
	// address: 目标地址 (host:port，IPv6 带方括号)
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DefaultDialer 默认直连拨号器
type DefaultDialer struct {
	Timeout time.Duration
}

func NewDefaultDialer(timeout time.Duration) *DefaultDialer {
	return &DefaultDialer{
		Timeout: timeout,
	}
}

func (d *DefaultDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout: d.Timeout,
	}
	return dialer.DialContext(ctx, network, address)
}

// New 根据代理地址选择拨号器，地址为空时直连
func New(proxyAddr string, timeout time.Duration) (Dialer, error) {
	if proxyAddr == "" {
		return NewDefaultDialer(timeout), nil
	}
	return NewProxyDialer(proxyAddr, timeout)
}

// ForProtocol 按协议选择代理: 协议专属代理优先，其次默认代理
// Web 流量走浏览器自身的代理参数，不经过这里
func ForProtocol(cfg *config.ProxyConfig, protocol model.Protocol, timeout time.Duration) (Dialer, error) {
	if cfg == nil {
		return NewDefaultDialer(timeout), nil
	}
	var addr string
	switch protocol {
	case model.ProtocolRDP:
		addr = cfg.RDPProxy()
	case model.ProtocolVNC:
		addr = cfg.VNCProxy()
	default:
		addr = cfg.Default
	}
	d, err := New(addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("%s proxy: %w", protocol, err)
	}
	return d, nil
}
