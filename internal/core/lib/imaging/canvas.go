// Package imaging 截图画布：按矩形更新拼接帧缓冲，缩放并写出 PNG
package imaging

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/nfnt/resize"
)

// Canvas 线程安全的 RGBA 画布
type Canvas struct {
	mu      sync.Mutex
	img     *image.RGBA
	touched bool // 是否收到过任何像素
}

// NewCanvas 创建黑色背景画布
func NewCanvas(width, height int) *Canvas {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	return &Canvas{img: img}
}

// Bounds 画布范围
func (c *Canvas) Bounds() image.Rectangle {
	return c.img.Bounds()
}

// Touched 是否已绘制过内容
func (c *Canvas) Touched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.touched
}

// Blit 将 src 绘制到 (x, y)，超出画布的部分被裁剪
func (c *Canvas) Blit(x, y int, src image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := src.Bounds()
	dst := image.Rect(x, y, x+b.Dx(), y+b.Dy()).Intersect(c.img.Bounds())
	if dst.Empty() {
		return
	}
	draw.Draw(c.img, dst, src, b.Min.Add(dst.Min.Sub(image.Pt(x, y))), draw.Src)
	c.touched = true
}

// SetPixel 写入单个像素，越界忽略
func (c *Canvas) SetPixel(x, y int, col color.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !(image.Point{X: x, Y: y}).In(c.img.Bounds()) {
		return
	}
	c.img.SetRGBA(x, y, col)
	c.touched = true
}

// Snapshot 复制当前内容
func (c *Canvas) Snapshot() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := image.NewRGBA(c.img.Bounds())
	copy(out.Pix, c.img.Pix)
	return out
}

// Scale 缩放到指定尺寸，尺寸一致时原样返回
func Scale(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if width <= 0 || height <= 0 || (b.Dx() == width && b.Dy() == height) {
		return img
	}
	return resize.Resize(uint(width), uint(height), img, resize.Bilinear)
}

// SavePNG 写出 PNG，先写临时文件再改名，中途失败不会留下半截图片
func SavePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".scrying-*.png")
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	if err := png.Encode(w, img); err != nil {
		tmp.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close png: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename png: %w", err)
	}
	return nil
}

// WriteFile 写出已编码的图片数据 (Web 截图由浏览器直接生成 PNG)
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write image: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename image: %w", err)
	}
	return nil
}

// DecodeSize 读取 PNG 数据的尺寸
func DecodeSize(data []byte) (int, int, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
