package factory

import (
	"fmt"

	"github.com/nccgroup/scrying/internal/config"
	"github.com/nccgroup/scrying/internal/core/capture"
	"github.com/nccgroup/scrying/internal/core/capture/rdp"
	"github.com/nccgroup/scrying/internal/core/capture/vnc"
	"github.com/nccgroup/scrying/internal/core/capture/web"
	"github.com/nccgroup/scrying/internal/core/lib/network/dialer"
	"github.com/nccgroup/scrying/internal/core/model"
)

// captureOptions 三种驱动共享的参数
func captureOptions(cfg *config.CaptureConfig) capture.Options {
	return capture.Options{
		Width:   cfg.Width,
		Height:  cfg.Height,
		Timeout: cfg.Timeout,
	}
}

// NewRDPDriver 按配置创建 RDP 驱动
func NewRDPDriver(cfg *config.Config) (*rdp.Driver, error) {
	d, err := dialer.ForProtocol(cfg.Proxy, model.ProtocolRDP, cfg.Capture.Timeout)
	if err != nil {
		return nil, err
	}
	return rdp.NewDriver(d, rdp.Config{
		Options:     captureOptions(cfg.Capture),
		Quiet:       cfg.Capture.RDPQuiet,
		Negotiation: cfg.Capture.RDPNegotiation,
		User:        cfg.Capture.RDPUser,
		Password:    cfg.Capture.RDPPassword,
		Domain:      cfg.Capture.RDPDomain,
	}), nil
}

// NewVNCDriver 按配置创建 VNC 驱动，帧缓冲尺寸由服务端决定
func NewVNCDriver(cfg *config.Config) (*vnc.Driver, error) {
	d, err := dialer.ForProtocol(cfg.Proxy, model.ProtocolVNC, cfg.Capture.Timeout)
	if err != nil {
		return nil, err
	}
	opts := captureOptions(cfg.Capture)
	opts.Width, opts.Height = 0, 0
	return vnc.NewDriver(d, opts, cfg.Capture.VNCPassword), nil
}

// NewWebDriver 按配置创建 Web 驱动，浏览器在第一个作业时才启动
func NewWebDriver(cfg *config.Config) *web.Driver {
	backend := web.NewRodBackend(cfg.Capture.BrowserBin, cfg.Proxy.WebProxy())
	return web.NewDriver(backend, captureOptions(cfg.Capture))
}

// NewDriver 按协议创建驱动
func NewDriver(cfg *config.Config, protocol model.Protocol) (capture.Driver, error) {
	switch protocol {
	case model.ProtocolRDP:
		return NewRDPDriver(cfg)
	case model.ProtocolVNC:
		return NewVNCDriver(cfg)
	case model.ProtocolWeb:
		return NewWebDriver(cfg), nil
	}
	return nil, fmt.Errorf("no capture driver for protocol %q", protocol)
}
