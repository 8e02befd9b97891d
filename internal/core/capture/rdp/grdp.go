package rdp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tomatome/grdp/core"
	"github.com/tomatome/grdp/glog"
	"github.com/tomatome/grdp/protocol/nla"
	"github.com/tomatome/grdp/protocol/pdu"
	"github.com/tomatome/grdp/protocol/sec"
	"github.com/tomatome/grdp/protocol/t125"
	"github.com/tomatome/grdp/protocol/tpkt"
	"github.com/tomatome/grdp/protocol/x224"

	"github.com/nccgroup/scrying/internal/pkg/logger"
)

var glogOnce sync.Once

// initGlog grdp 的全局日志接入 logrus，只在 trace 级别输出
func initGlog() {
	glogOnce.Do(func() {
		glog.SetLogger(log.New(logger.Writer(logrus.TraceLevel), "[grdp] ", 0))
		if logger.IsLevelEnabled(logrus.TraceLevel) {
			glog.SetLevel(glog.DEBUG)
		} else {
			glog.SetLevel(glog.NONE)
		}
	})
}

// grdpSession 基于 tomatome/grdp 的会话实现
type grdpSession struct {
	cfg    SessionConfig
	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	conn   net.Conn
	closed bool
	ended  bool
}

// NewGrdpSession 创建 grdp 会话
func NewGrdpSession(cfg SessionConfig) Session {
	initGlog()
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = DefaultNegotiation
	}
	return &grdpSession{
		cfg:    cfg,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

func (s *grdpSession) Events() <-chan Event { return s.events }

func (s *grdpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Connect 依次尝试 TLS(+NLA) 与标准 RDP 安全层
// 没有凭据时不请求 NLA，服务端强制 NLA 时由 Connection Confirm 中的失败码识别
func (s *grdpSession) Connect(ctx context.Context, dial DialFunc) error {
	requested := protocolSSL
	if s.cfg.HasCredentials() {
		requested |= protocolHybrid
	}

	err := s.attempt(ctx, dial, requested)
	if errors.Is(err, errStandardRDP) {
		logger.Debugf("[RDP] server only supports standard RDP security, reconnecting")
		err = s.attempt(ctx, dial, protocolRDP)
	}
	return err
}

// attempt 单次连接与协商
func (s *grdpSession) attempt(ctx context.Context, dial DialFunc, requested uint32) error {
	conn, err := dial(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return net.ErrClosed
	}
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()

	// 1. 协商结果，先到先得
	negotiated := make(chan error, 1)
	settle := func(err error) {
		select {
		case negotiated <- err:
		default:
		}
	}
	var (
		connMu    sync.Mutex
		connected bool
		confirmed bool
		selected  uint32
	)
	isConnected := func() bool {
		connMu.Lock()
		defer connMu.Unlock()
		return connected
	}

	sniffed := newConfirmConn(conn, func(pkt []byte) {
		cc, err := parseConnectionConfirm(pkt)
		if err == nil {
			err = cc.check(requested)
		}
		if err != nil {
			settle(err)
			return
		}
		connMu.Lock()
		confirmed, selected = true, cc.value
		connMu.Unlock()
	})

	// 2. 协议栈
	tp := tpkt.New(core.NewSocketLayer(sniffed), nla.NewNTLMv2(s.cfg.Domain, s.cfg.User, s.cfg.Password))
	xc := x224.New(tp)
	mcs := t125.NewMCSClient(xc)
	sc := sec.NewClient(mcs)
	pc := pdu.NewClient(sc)

	mcs.SetClientCoreData(uint16(s.cfg.Width), uint16(s.cfg.Height))
	sc.SetUser(s.cfg.User)
	sc.SetPwd(s.cfg.Password)
	sc.SetDomain(s.cfg.Domain)

	tp.SetFastPathListener(sc)
	sc.SetFastPathListener(pc)
	pc.SetFastPathSender(tp)

	xc.SetRequestedProtocol(requested)

	// 3. 事件
	xc.On("connect", func(proto uint32) {
		connMu.Lock()
		connected = true
		connMu.Unlock()
		logger.Debugf("[RDP] negotiated security protocol %d", proto)
		settle(nil)
	})
	xc.On("error", func(e error) {
		settle(negotiationError(e))
	})
	pc.On("error", func(e error) {
		if !isConnected() {
			settle(negotiationError(e))
			return
		}
		s.end(fmt.Errorf("rdp: %w", e))
	})
	pc.On("close", func() {
		if !isConnected() {
			settle(fmt.Errorf("%w: connection closed during negotiation", ErrNegotiation))
			return
		}
		s.end(ErrSessionClosed)
	})
	pc.On("ready", func() {
		logger.Debugf("[RDP] session ready")
	})
	pc.On("update", func(rectangles []pdu.BitmapData) {
		s.update(rectangles)
	})

	// 4. 发起协商 (异步完成)
	if err := xc.Connect(); err != nil {
		return fmt.Errorf("x224 connect: %w", err)
	}

	deadline := time.NewTimer(s.cfg.NegotiationTimeout)
	defer deadline.Stop()

	select {
	case err := <-negotiated:
		return err
	case <-deadline.C:
		// grdp 的 TLS/NLA 失败只写日志，不产生事件
		connMu.Lock()
		nla := confirmed && selected == protocolHybrid
		connMu.Unlock()
		if nla {
			return fmt.Errorf("%w: NLA handshake did not complete within %s", ErrNLARequired, s.cfg.NegotiationTimeout)
		}
		return fmt.Errorf("%w: no negotiation result within %s", ErrNegotiation, s.cfg.NegotiationTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return net.ErrClosed
	}
}

// negotiationError 协商阶段的 grdp 错误归类
func negotiationError(e error) error {
	msg := strings.ToLower(e.Error())
	if strings.Contains(msg, "ntlm") || strings.Contains(msg, "credssp") {
		return fmt.Errorf("%w: %v", ErrNLARequired, e)
	}
	return fmt.Errorf("%w: %v", ErrNegotiation, e)
}

// update 解码位图并投递
func (s *grdpSession) update(rectangles []pdu.BitmapData) {
	batch := make([]Bitmap, 0, len(rectangles))
	for _, r := range rectangles {
		raw := rawBitmap{
			Left:         int(r.DestLeft),
			Top:          int(r.DestTop),
			Right:        int(r.DestRight),
			Bottom:       int(r.DestBottom),
			Width:        int(r.Width),
			Height:       int(r.Height),
			BitsPerPixel: int(r.BitsPerPixel),
			Data:         r.BitmapDataStream,
		}
		if r.IsCompress() {
			bpp, err := bytesPerPixel(raw.BitsPerPixel)
			if err != nil {
				logger.Debugf("[RDP] skipping bitmap: %v", err)
				continue
			}
			raw.Data = core.Decompress(r.BitmapDataStream, raw.Width, raw.Height, bpp)
			raw.TopDown = true
		}
		bm, err := raw.decode()
		if err != nil {
			logger.Debugf("[RDP] skipping bitmap: %v", err)
			continue
		}
		batch = append(batch, bm)
	}
	if len(batch) == 0 {
		return
	}

	select {
	case s.events <- Event{Bitmaps: batch}:
	case <-s.done:
	}
}

// end 投递终止错误，只投递一次
func (s *grdpSession) end(err error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.mu.Unlock()

	if errors.Is(err, net.ErrClosed) {
		err = ErrSessionClosed
	}
	select {
	case s.events <- Event{Err: err}:
	case <-s.done:
	}
}
