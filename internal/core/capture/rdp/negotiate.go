package rdp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
)

// X.224 协商常量 (MS-RDPBCGR 2.2.1.2)
const (
	tpktVersion           = 0x03
	tpduConnectionConfirm = 0xD0

	negTypeResponse = 0x02
	negTypeFailure  = 0x03

	protocolRDP      uint32 = 0x00000000
	protocolSSL      uint32 = 0x00000001
	protocolHybrid   uint32 = 0x00000002
	protocolHybridEx uint32 = 0x00000008
)

// RDP_NEG_FAILURE 失败码
const (
	negFailureSSLRequired             = 1
	negFailureSSLNotAllowed           = 2
	negFailureSSLCertNotOnServer      = 3
	negFailureInconsistentFlags       = 4
	negFailureHybridRequired          = 5
	negFailureSSLWithUserAuthRequired = 6
)

// errStandardRDP 服务端只接受标准 RDP 安全层，需要重连
var errStandardRDP = errors.New("PROTOCOL_RDP")

// connectionConfirm 服务端 X.224 Connection Confirm 中的协商结果
type connectionConfirm struct {
	negotiated bool   // 是否带 RDP_NEG_RSP / RDP_NEG_FAILURE
	failure    bool   // RDP_NEG_FAILURE
	value      uint32 // 选择的协议或失败码
}

// parseConnectionConfirm 解析服务端第一个 TPKT 包
func parseConnectionConfirm(pkt []byte) (connectionConfirm, error) {
	if len(pkt) < 4 || pkt[0] != tpktVersion {
		return connectionConfirm{}, fmt.Errorf("%w: first packet is not TPKT", ErrNegotiation)
	}
	x224 := pkt[4:]
	if len(x224) < 2 {
		return connectionConfirm{}, fmt.Errorf("%w: truncated X.224 header", ErrNegotiation)
	}
	if x224[1]&0xF0 != tpduConnectionConfirm {
		return connectionConfirm{}, fmt.Errorf("%w: unexpected X.224 TPDU 0x%02x", ErrNegotiation, x224[1])
	}

	// LI(1) CC(1) DST-REF(2) SRC-REF(2) CLASS(1)，之后是 8 字节协商块
	if int(x224[0]) < 14 || len(x224) < 15 {
		return connectionConfirm{}, nil
	}
	neg := x224[7:15]
	switch neg[0] {
	case negTypeResponse:
		return connectionConfirm{negotiated: true, value: binary.LittleEndian.Uint32(neg[4:])}, nil
	case negTypeFailure:
		return connectionConfirm{negotiated: true, failure: true, value: binary.LittleEndian.Uint32(neg[4:])}, nil
	}
	return connectionConfirm{}, nil
}

// check 结合请求的协议判断能否继续
// 返回 nil 表示交给 grdp 继续握手
func (c connectionConfirm) check(requested uint32) error {
	if !c.negotiated {
		return fmt.Errorf("%w: connection confirm carries no negotiation response (legacy server)", ErrNegotiation)
	}
	if c.failure {
		switch c.value {
		case negFailureHybridRequired, negFailureSSLWithUserAuthRequired:
			return fmt.Errorf("%w (negotiation failure code %d)", ErrNLARequired, c.value)
		case negFailureSSLNotAllowed:
			if requested != protocolRDP {
				return errStandardRDP
			}
		}
		return fmt.Errorf("%w: negotiation failure code %d", ErrNegotiation, c.value)
	}

	switch {
	case c.value == protocolHybridEx:
		return fmt.Errorf("%w: server selected HYBRID_EX", ErrNegotiation)
	case c.value != protocolRDP && c.value&requested == 0:
		return fmt.Errorf("%w: server selected unrequested protocol 0x%x", ErrNegotiation, c.value)
	}
	return nil
}

// confirmConn 在 grdp 读取之前截获服务端第一个 TPKT 包
// grdp 遇到 NEG_FAILURE 只关闭连接，遇到不带协商块的 CC 会停住，两者都需要在这里识别
type confirmConn struct {
	net.Conn
	onConfirm func(pkt []byte)

	mu   sync.Mutex
	buf  []byte
	seen bool
}

func newConfirmConn(conn net.Conn, onConfirm func(pkt []byte)) *confirmConn {
	return &confirmConn{Conn: conn, onConfirm: onConfirm}
}

func (c *confirmConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.observe(p[:n])
	}
	return n, err
}

func (c *confirmConn) observe(b []byte) {
	c.mu.Lock()
	if c.seen {
		c.mu.Unlock()
		return
	}
	c.buf = append(c.buf, b...)

	var pkt []byte
	switch {
	case len(c.buf) > 0 && c.buf[0] != tpktVersion:
		pkt = c.buf
	case len(c.buf) < 4:
	default:
		size := int(binary.BigEndian.Uint16(c.buf[2:4]))
		if len(c.buf) >= size {
			pkt = c.buf[:size]
			if size < 4 {
				pkt = c.buf
			}
		}
	}
	if pkt == nil {
		c.mu.Unlock()
		return
	}
	c.seen = true
	c.buf = nil
	c.mu.Unlock()

	c.onConfirm(pkt)
}
