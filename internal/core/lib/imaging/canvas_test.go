package imaging

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestCanvas_BlitClips(t *testing.T) {
	c := NewCanvas(4, 4)
	assert.False(t, c.Touched())

	red := color.RGBA{R: 255, A: 255}
	c.Blit(2, 2, solid(4, 4, red))
	c.Blit(10, 10, solid(2, 2, red))

	snap := c.Snapshot()
	assert.Equal(t, red, snap.RGBAAt(3, 3))
	assert.Equal(t, red, snap.RGBAAt(2, 2))
	assert.Equal(t, color.RGBA{A: 255}, snap.RGBAAt(1, 1))
	assert.True(t, c.Touched())
}

func TestCanvas_SetPixelOutOfBounds(t *testing.T) {
	c := NewCanvas(2, 2)
	c.SetPixel(5, 5, color.RGBA{G: 255, A: 255})
	assert.False(t, c.Touched())
	c.SetPixel(1, 0, color.RGBA{G: 255, A: 255})
	assert.Equal(t, uint8(255), c.Snapshot().RGBAAt(1, 0).G)
}

func TestScale(t *testing.T) {
	img := solid(8, 6, color.RGBA{B: 200, A: 255})
	assert.Same(t, img, Scale(img, 8, 6).(*image.RGBA))

	scaled := Scale(img, 4, 3)
	assert.Equal(t, 4, scaled.Bounds().Dx())
	assert.Equal(t, 3, scaled.Bounds().Dy())
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rdp", "192.0.2.1-3389.png")
	require.NoError(t, SavePNG(path, solid(3, 2, color.RGBA{R: 1, G: 2, B: 3, A: 255})))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteFileAndDecodeSize(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	require.NoError(t, SavePNG(src, solid(7, 5, color.RGBA{A: 255})))
	data, err := os.ReadFile(src)
	require.NoError(t, err)

	w, h, err := DecodeSize(data)
	require.NoError(t, err)
	assert.Equal(t, 7, w)
	assert.Equal(t, 5, h)

	dst := filepath.Join(dir, "web", "out.png")
	require.NoError(t, WriteFile(dst, data))
	_, err = os.Stat(dst + ".part")
	assert.True(t, os.IsNotExist(err))

	_, _, err = DecodeSize([]byte("not a png"))
	assert.Error(t, err)
}
