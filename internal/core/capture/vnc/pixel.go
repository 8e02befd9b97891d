package vnc

import (
	"image/color"

	vnclib "github.com/mitchellh/go-vnc"
)

// supportedBPP go-vnc 的 Raw 解码只处理 1/2/4 字节像素
func supportedBPP(pf vnclib.PixelFormat) bool {
	switch pf.BPP {
	case 8, 16, 32:
		return true
	}
	return false
}

// truecolor32 服务端像素格式无法解码时请求的格式
func truecolor32() vnclib.PixelFormat {
	return vnclib.PixelFormat{
		BPP:        32,
		Depth:      24,
		BigEndian:  false,
		TrueColor:  true,
		RedMax:     255,
		GreenMax:   255,
		BlueMax:    255,
		RedShift:   16,
		GreenShift: 8,
		BlueShift:  0,
	}
}

// normalize 把 go-vnc 解出的颜色转换为 8 位 RGBA
// 真彩色时通道值范围是 [0, max]，需要按 max 缩放；调色板模式下是 16 位值
func normalize(pf vnclib.PixelFormat, c vnclib.Color) color.RGBA {
	if !pf.TrueColor {
		return color.RGBA{R: uint8(c.R >> 8), G: uint8(c.G >> 8), B: uint8(c.B >> 8), A: 255}
	}
	return color.RGBA{
		R: scale(c.R, pf.RedMax),
		G: scale(c.G, pf.GreenMax),
		B: scale(c.B, pf.BlueMax),
		A: 255,
	}
}

func scale(v, max uint16) uint8 {
	if max == 0 {
		return 0
	}
	if v >= max {
		return 255
	}
	if max == 255 {
		return uint8(v)
	}
	// 四舍五入
	return uint8((uint32(v)*255 + uint32(max)/2) / uint32(max))
}
