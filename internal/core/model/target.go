/**
 * 截图目标模型 (Core Domain)
 * @description: Target 是一次截图任务的不可变描述，由输入聚合阶段构造，之后只读。
 */

package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Protocol 目标协议族
type Protocol string

const (
	ProtocolWeb     Protocol = "web"
	ProtocolRDP     Protocol = "rdp"
	ProtocolVNC     Protocol = "vnc"
	ProtocolUnknown Protocol = "unknown"
)

// Protocols 固定的协议遍历顺序 (报告分节、日志汇总都按此顺序)
var Protocols = []Protocol{ProtocolRDP, ProtocolWeb, ProtocolVNC}

// DefaultPort 协议默认端口，Web 需结合 scheme 判断，这里返回 http 的默认值
func (p Protocol) DefaultPort() int {
	switch p {
	case ProtocolRDP:
		return 3389
	case ProtocolVNC:
		return 5900
	case ProtocolWeb:
		return 80
	default:
		return 0
	}
}

// Label 用于日志前缀，例如 [RDP]
func (p Protocol) Label() string {
	return strings.ToUpper(string(p))
}

// Mode 分类模式 (--mode)
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeWeb  Mode = "web"
	ModeRDP  Mode = "rdp"
	ModeVNC  Mode = "vnc"
)

// ParseMode 解析 --mode 参数，大小写不敏感
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeWeb:
		return ModeWeb, nil
	case ModeRDP:
		return ModeRDP, nil
	case ModeVNC:
		return ModeVNC, nil
	}
	return ModeAuto, fmt.Errorf("invalid mode %q (allowed: auto, web, rdp, vnc)", s)
}

// Protocol 将非 auto 模式映射为协议
func (m Mode) Protocol() Protocol {
	switch m {
	case ModeWeb:
		return ProtocolWeb
	case ModeRDP:
		return ProtocolRDP
	case ModeVNC:
		return ProtocolVNC
	default:
		return ProtocolUnknown
	}
}

// Source 目标来源，仅用于诊断，不参与去重
type Source string

const (
	SourceCLI    Source = "cli"
	SourceFile   Source = "file"
	SourceNmap   Source = "nmap"
	SourceNessus Source = "nessus"
)

// Target 一个截图目标
// Host 始终以不带方括号的形式保存，构造 URL/拨号地址时再按需加方括号
type Target struct {
	Protocol Protocol `json:"protocol"`
	Scheme   string   `json:"scheme,omitempty"` // 仅 Web: http/https
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Path     string   `json:"path,omitempty"` // 仅 Web，包含 query
	Source   Source   `json:"source"`
}

// TargetKey 去重身份 (protocol, scheme, host, port, path)
type TargetKey struct {
	Protocol Protocol
	Scheme   string
	Host     string
	Port     int
	Path     string
}

// Key 返回去重键，主机名大小写不敏感，Web 空路径与 "/" 等价
func (t Target) Key() TargetKey {
	path := t.Path
	if t.Protocol == ProtocolWeb && path == "" {
		path = "/"
	}
	return TargetKey{
		Protocol: t.Protocol,
		Scheme:   strings.ToLower(t.Scheme),
		Host:     strings.ToLower(t.Host),
		Port:     t.Port,
		Path:     path,
	}
}

// IsIPv6 主机是否为 IPv6 字面量
func (t Target) IsIPv6() bool {
	ip := net.ParseIP(t.Host)
	return ip != nil && ip.To4() == nil
}

// Address 返回 host:port 拨号地址，IPv6 自动加方括号
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// DefaultPortForScheme Web 协议按 scheme 的默认端口
func DefaultPortForScheme(scheme string) int {
	if strings.EqualFold(scheme, "https") {
		return 443
	}
	return 80
}

// HasDefaultPort 端口是否为该目标协议 (及 scheme) 的默认端口
func (t Target) HasDefaultPort() bool {
	if t.Protocol == ProtocolWeb {
		return t.Port == DefaultPortForScheme(t.Scheme)
	}
	return t.Port == t.Protocol.DefaultPort()
}

// URL 返回 URL 形式
// Web: scheme://host[:port]/path；RDP/VNC: rdp://host:port
func (t Target) URL() string {
	host := t.Host
	if t.IsIPv6() {
		host = "[" + host + "]"
	}
	if t.Protocol != ProtocolWeb {
		return fmt.Sprintf("%s://%s:%d", t.Protocol, host, t.Port)
	}

	var b strings.Builder
	b.WriteString(t.Scheme)
	b.WriteString("://")
	b.WriteString(host)
	if !t.HasDefaultPort() {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(t.Port))
	}
	if t.Path == "" {
		b.WriteString("/")
	} else {
		if !strings.HasPrefix(t.Path, "/") {
			b.WriteString("/")
		}
		b.WriteString(t.Path)
	}
	return b.String()
}

// String 展示形式，Web 用 URL，其余用 host:port
func (t Target) String() string {
	if t.Protocol == ProtocolWeb {
		return t.URL()
	}
	return t.Address()
}

// WithPath 复制一个替换了请求路径的 Web 目标
func (t Target) WithPath(path string) Target {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	t.Path = path
	return t
}
