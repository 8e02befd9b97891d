package rdp

import (
	"fmt"
	"image"
	"image/color"
)

// rawBitmap 服务端发送的位图数据 (与具体 RDP 库无关)
// 未压缩数据按 RDP 约定自底向上存储；解压后的数据已是自顶向下
type rawBitmap struct {
	Left, Top     int
	Right, Bottom int // 含边界
	Width, Height int // 数据宽高，可能大于目标矩形 (宽度按 4 像素对齐)
	BitsPerPixel  int
	TopDown       bool
	Data          []byte
}

// bytesPerPixel 位深对应的字节数
func bytesPerPixel(bpp int) (int, error) {
	switch bpp {
	case 8:
		return 1, nil
	case 15, 16:
		return 2, nil
	case 24:
		return 3, nil
	case 32:
		return 4, nil
	}
	return 0, fmt.Errorf("unsupported bits per pixel: %d", bpp)
}

// decode 转换为目标矩形大小的 RGBA 图像
func (b rawBitmap) decode() (Bitmap, error) {
	bpp, err := bytesPerPixel(b.BitsPerPixel)
	if err != nil {
		return Bitmap{}, err
	}
	if b.Width <= 0 || b.Height <= 0 {
		return Bitmap{}, fmt.Errorf("empty bitmap %dx%d", b.Width, b.Height)
	}
	stride := b.Width * bpp
	if len(b.Data) < stride*b.Height {
		return Bitmap{}, fmt.Errorf("short bitmap data: %d bytes for %dx%d@%d", len(b.Data), b.Width, b.Height, b.BitsPerPixel)
	}

	// 目标矩形，数据可能带有对齐填充
	w := b.Right - b.Left + 1
	h := b.Bottom - b.Top + 1
	if w <= 0 || w > b.Width {
		w = b.Width
	}
	if h <= 0 || h > b.Height {
		h = b.Height
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := y
		if !b.TopDown {
			row = b.Height - 1 - y
		}
		line := b.Data[row*stride:]
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, pixelAt(line[x*bpp:], b.BitsPerPixel))
		}
	}
	return Bitmap{X: b.Left, Y: b.Top, Image: img}, nil
}

// pixelAt 小端像素转 RGBA
func pixelAt(p []byte, bpp int) color.RGBA {
	switch bpp {
	case 8:
		// 8 位索引色：grdp 不解析 Palette Update，拿不到调色板，索引按灰度近似
		// 客户端声明 24 位高色，服务端一般不会降到 8 位
		return color.RGBA{R: p[0], G: p[0], B: p[0], A: 255}
	case 15:
		v := uint16(p[0]) | uint16(p[1])<<8
		return color.RGBA{
			R: expand5(uint8(v>>10) & 0x1f),
			G: expand5(uint8(v>>5) & 0x1f),
			B: expand5(uint8(v) & 0x1f),
			A: 255,
		}
	case 16:
		v := uint16(p[0]) | uint16(p[1])<<8
		return color.RGBA{
			R: expand5(uint8(v>>11) & 0x1f),
			G: expand6(uint8(v>>5) & 0x3f),
			B: expand5(uint8(v) & 0x1f),
			A: 255,
		}
	default:
		// 24/32 位为 BGR(X)
		return color.RGBA{R: p[2], G: p[1], B: p[0], A: 255}
	}
}

func expand5(v uint8) uint8 { return v<<3 | v>>2 }

func expand6(v uint8) uint8 { return v<<2 | v>>4 }
