package dialer

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// ProxyDialer 代理拨号器 (SOCKS5)
// RDP/VNC 都是原始 TCP，只支持 SOCKS5；Web 的 HTTP 代理交给浏览器处理
type ProxyDialer struct {
	ProxyURL *url.URL
	Timeout  time.Duration
	forward  proxy.Dialer
}

// ParseProxyURL 解析代理地址，缺省 scheme 视为 socks5
func ParseProxyURL(proxyAddr string) (*url.URL, error) {
	if !strings.Contains(proxyAddr, "://") {
		proxyAddr = "socks5://" + proxyAddr
	}
	u, err := url.Parse(proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy address: missing host in %q", proxyAddr)
	}
	return u, nil
}

func NewProxyDialer(proxyAddr string, timeout time.Duration) (*ProxyDialer, error) {
	u, err := ParseProxyURL(proxyAddr)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s (only socks5 is supported for raw tcp)", u.Scheme)
	}

	var auth *proxy.Auth
	if u.User != nil {
		auth = &proxy.Auth{
			User: u.User.Username(),
		}
		if p, ok := u.User.Password(); ok {
			auth.Password = p
		}
	}

	// 到代理服务器这一跳使用带超时的直连
	forward, err := proxy.SOCKS5("tcp", u.Host, auth, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create socks5 dialer: %w", err)
	}

	return &ProxyDialer{
		ProxyURL: u,
		Timeout:  timeout,
		forward:  forward,
	}, nil
}

func (d *ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	// x/net 的 SOCKS5 拨号器实现了 ContextDialer
	if cd, ok := d.forward.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		Conn net.Conn
		Err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := d.forward.Dial(network, address)
		ch <- dialResult{Conn: conn, Err: err}
	}()

	select {
	case <-ctx.Done():
		// 晚到的连接需要关闭
		go func() {
			if res := <-ch; res.Conn != nil {
				res.Conn.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-ch:
		return res.Conn, res.Err
	}
}

// Redacted 不含密码的代理地址，用于日志
func (d *ProxyDialer) Redacted() string {
	return d.ProxyURL.Redacted()
}
