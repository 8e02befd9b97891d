/**
 * 目标分类
 * @description: 将原始字符串 (CLI / 文件行 / XML 字段) 解析为 Target。
 * 规则按顺序执行: 显式 scheme > --mode 覆盖 > auto 默认规则，整个过程是纯函数。
 */

package input

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/nccgroup/scrying/internal/core/model"
)

// ErrNoTargets 聚合后目标为空，调用方应在启动任何 worker 之前退出
var ErrNoTargets = errors.New("no valid targets were parsed from any input source")

// ParseError 目标语法错误
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unable to parse target %q: %s", e.Input, e.Reason)
}

func parseErr(input, format string, args ...interface{}) error {
	return &ParseError{Input: input, Reason: fmt.Sprintf(format, args...)}
}

// webPorts 在 auto 模式下视为 Web 的端口
var webPorts = map[int]bool{
	80: true, 443: true, 631: true, 3000: true,
	7443: true, 8000: true, 8080: true, 8443: true,
}

// tlsPorts 裸主机按 Web 处理时使用 https 的端口
var tlsPorts = map[int]bool{443: true, 7443: true, 8443: true}

// IsWebPort 端口是否属于常见 Web 端口
func IsWebPort(port int) bool { return webPorts[port] }

// IsVNCPort 端口是否属于常见 VNC 端口 (5900-5903)
func IsVNCPort(port int) bool { return port >= 5900 && port <= 5903 }

// IsTLSPort 端口是否默认走 https
func IsTLSPort(port int) bool { return tlsPorts[port] }

var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9_]([A-Za-z0-9_.-]*[A-Za-z0-9_])?\.?$`)

// Classify 将原始字符串解析为 Target
// 1. 显式 scheme (http/https/rdp/vnc) 直接决定协议，忽略 mode
// 2. mode 非 auto 时按 mode 解析
// 3. auto: 带路径或 Web 端口 -> Web；5900-5903 -> VNC；其余 -> RDP
func Classify(raw string, mode model.Mode) (model.Target, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return model.Target{}, parseErr(raw, "empty target")
	}

	if idx := strings.Index(input, "://"); idx >= 0 {
		return classifyURL(input, strings.ToLower(input[:idx]))
	}

	host, port, path, err := splitBare(input)
	if err != nil {
		return model.Target{}, err
	}

	protocol := mode.Protocol()
	if mode == model.ModeAuto || protocol == model.ProtocolUnknown {
		protocol = autoProtocol(port, path)
	}

	if protocol != model.ProtocolWeb && path != "" {
		return model.Target{}, parseErr(input, "request path is only valid for web targets")
	}

	t := model.Target{Protocol: protocol, Host: host, Port: port, Path: path}
	if protocol == model.ProtocolWeb {
		t.Scheme = "http"
		if IsTLSPort(port) {
			t.Scheme = "https"
		}
		if t.Port == 0 {
			t.Port = model.DefaultPortForScheme(t.Scheme)
		}
		return t, nil
	}
	if t.Port == 0 {
		t.Port = protocol.DefaultPort()
	}
	return t, nil
}

// autoProtocol auto 模式的默认规则
func autoProtocol(port int, path string) model.Protocol {
	switch {
	case path != "" || IsWebPort(port):
		return model.ProtocolWeb
	case IsVNCPort(port):
		return model.ProtocolVNC
	default:
		return model.ProtocolRDP
	}
}

// classifyURL 处理带 scheme 的输入
func classifyURL(input, scheme string) (model.Target, error) {
	var protocol model.Protocol
	switch scheme {
	case "http", "https":
		protocol = model.ProtocolWeb
	case "rdp":
		protocol = model.ProtocolRDP
	case "vnc":
		protocol = model.ProtocolVNC
	default:
		return model.Target{}, parseErr(input, "unsupported scheme %q", scheme)
	}

	// rdp://2001:db8::1 这种未加方括号的 IPv6 会被 url 包误解析为 host:port
	authority := input[len(scheme)+3:]
	if i := strings.IndexAny(authority, "/?#"); i >= 0 {
		authority = authority[:i]
	}
	if !strings.HasPrefix(authority, "[") && strings.Count(authority, ":") > 1 {
		return model.Target{}, parseErr(input, "IPv6 literals in URLs must be enclosed in brackets")
	}

	u, err := url.Parse(input)
	if err != nil {
		return model.Target{}, parseErr(input, "%v", err)
	}
	host := u.Hostname()
	if host == "" {
		return model.Target{}, parseErr(input, "missing host")
	}
	if err := validateHost(input, host); err != nil {
		return model.Target{}, err
	}

	t := model.Target{Protocol: protocol, Host: host}
	if p := u.Port(); p != "" {
		port, err := parsePort(input, p)
		if err != nil {
			return model.Target{}, err
		}
		t.Port = port
	}

	if protocol == model.ProtocolWeb {
		t.Scheme = scheme
		if t.Port == 0 {
			t.Port = model.DefaultPortForScheme(scheme)
		}
		path := u.EscapedPath()
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
		return t.WithPath(path), nil
	}

	if p := u.EscapedPath(); p != "" && p != "/" {
		return model.Target{}, parseErr(input, "%s targets cannot carry a path", protocol)
	}
	if t.Port == 0 {
		t.Port = protocol.DefaultPort()
	}
	return t, nil
}

// splitBare 拆分无 scheme 输入为 host / port / path
// 支持: host, host:port, IPv4, IPv6, [IPv6], [IPv6]:port, host[:port]/path
func splitBare(input string) (string, int, string, error) {
	hostport, path := input, ""
	if i := strings.IndexAny(input, "/?"); i >= 0 {
		hostport, path = input[:i], input[i:]
		if strings.HasPrefix(path, "?") {
			path = "/" + path
		}
	}

	var host, portStr string
	switch {
	case strings.HasPrefix(hostport, "["):
		end := strings.Index(hostport, "]")
		if end < 0 {
			return "", 0, "", parseErr(input, "unterminated IPv6 literal")
		}
		host = hostport[1:end]
		rest := hostport[end+1:]
		if rest != "" {
			if !strings.HasPrefix(rest, ":") {
				return "", 0, "", parseErr(input, "unexpected %q after IPv6 literal", rest)
			}
			portStr = rest[1:]
		}
		if ip := net.ParseIP(host); ip == nil || ip.To4() != nil {
			return "", 0, "", parseErr(input, "invalid IPv6 literal %q", host)
		}
	case net.ParseIP(hostport) != nil:
		host = hostport
	case strings.Count(hostport, ":") == 1:
		h, p, err := net.SplitHostPort(hostport)
		if err != nil {
			return "", 0, "", parseErr(input, "%v", err)
		}
		host, portStr = h, p
	case strings.Count(hostport, ":") > 1:
		return "", 0, "", parseErr(input, "invalid IPv6 literal %q", hostport)
	default:
		host = hostport
	}

	if err := validateHost(input, host); err != nil {
		return "", 0, "", err
	}

	port := 0
	if portStr != "" {
		p, err := parsePort(input, portStr)
		if err != nil {
			return "", 0, "", err
		}
		port = p
	}
	return host, port, path, nil
}

func validateHost(input, host string) error {
	if host == "" {
		return parseErr(input, "missing host")
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if !hostnamePattern.MatchString(host) || strings.Contains(host, "..") {
		return parseErr(input, "invalid hostname %q", host)
	}
	return nil
}

func parsePort(input, s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, parseErr(input, "invalid port %q", s)
	}
	return port, nil
}
