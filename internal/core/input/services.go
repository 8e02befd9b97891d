package input

import (
	"strings"

	"github.com/nccgroup/scrying/internal/core/model"
)

// 扫描报告中的服务名 -> 协议映射 (nmap 与 nessus 命名不同，这里合并)
var (
	rdpServices = map[string]bool{"ms-wbt-server": true, "msrdp": true}
	webServices = map[string]bool{
		"http": true, "http-mgt": true, "https": true, "http-alt": true,
		"https-alt": true, "http-proxy": true, "www": true, "https?": true,
	}
	vncServices = map[string]bool{"vnc": true, "vnc-1": true, "vnc-2": true, "vnc-3": true}
)

// ServiceRecord 扫描报告中的一条 host/port/service 记录
type ServiceRecord struct {
	Host    string
	Port    int
	Service string
	TLS     bool // nmap tunnel="ssl" 或服务名为 https
}

// mapService 判断记录对应的协议，服务名优先于端口号
func mapService(rec ServiceRecord) model.Protocol {
	svc := strings.ToLower(strings.TrimSpace(rec.Service))
	switch {
	case rdpServices[svc]:
		return model.ProtocolRDP
	case vncServices[svc]:
		return model.ProtocolVNC
	case webServices[svc]:
		return model.ProtocolWeb
	}

	switch {
	case rec.Port == 3389:
		return model.ProtocolRDP
	case IsVNCPort(rec.Port):
		return model.ProtocolVNC
	case IsWebPort(rec.Port):
		return model.ProtocolWeb
	}
	return model.ProtocolUnknown
}

// recordToTarget 将扫描记录转为 Target；mode 非 auto 时只保留对应协议
func recordToTarget(rec ServiceRecord, mode model.Mode, source model.Source) (model.Target, bool) {
	protocol := mapService(rec)
	if protocol == model.ProtocolUnknown {
		return model.Target{}, false
	}
	if mode != model.ModeAuto && mode.Protocol() != protocol {
		return model.Target{}, false
	}
	if rec.Port < 1 || rec.Port > 65535 || rec.Host == "" {
		return model.Target{}, false
	}

	t := model.Target{Protocol: protocol, Host: strings.Trim(rec.Host, "[]"), Port: rec.Port, Source: source}
	if protocol == model.ProtocolWeb {
		svc := strings.ToLower(rec.Service)
		t.Scheme = "http"
		if rec.TLS || svc == "https" || svc == "https-alt" || svc == "https?" || IsTLSPort(rec.Port) {
			t.Scheme = "https"
		}
	}
	return t, true
}
