package vnc

import (
	"image/color"
	"testing"

	vnclib "github.com/mitchellh/go-vnc"
	"github.com/stretchr/testify/assert"
)

func TestNormalize_TrueColor(t *testing.T) {
	cases := []struct {
		name string
		pf   vnclib.PixelFormat
		in   vnclib.Color
		want color.RGBA
	}{
		{
			name: "32bpp",
			pf:   truecolor32(),
			in:   vnclib.Color{R: 10, G: 20, B: 30},
			want: color.RGBA{R: 10, G: 20, B: 30, A: 255},
		},
		{
			name: "16bpp rgb565",
			pf:   vnclib.PixelFormat{BPP: 16, Depth: 16, TrueColor: true, RedMax: 31, GreenMax: 63, BlueMax: 31},
			in:   vnclib.Color{R: 31, G: 0, B: 16},
			want: color.RGBA{R: 255, G: 0, B: 132, A: 255},
		},
		{
			name: "15bpp rgb555",
			pf:   vnclib.PixelFormat{BPP: 16, Depth: 15, TrueColor: true, RedMax: 31, GreenMax: 31, BlueMax: 31},
			in:   vnclib.Color{R: 0, G: 31, B: 1},
			want: color.RGBA{R: 0, G: 255, B: 8, A: 255},
		},
		{
			name: "8bpp bgr233",
			pf:   vnclib.PixelFormat{BPP: 8, Depth: 8, TrueColor: true, RedMax: 7, GreenMax: 7, BlueMax: 3},
			in:   vnclib.Color{R: 7, G: 3, B: 3},
			want: color.RGBA{R: 255, G: 109, B: 255, A: 255},
		},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, normalize(c.pf, c.in), c.name)
	}
}

func TestNormalize_ColorMap(t *testing.T) {
	pf := vnclib.PixelFormat{BPP: 8, Depth: 8, TrueColor: false}
	got := normalize(pf, vnclib.Color{R: 0xffff, G: 0x8000, B: 0x00ff})
	assert.Equal(t, color.RGBA{R: 255, G: 128, B: 0, A: 255}, got)
}

func TestSupportedBPP(t *testing.T) {
	assert.True(t, supportedBPP(vnclib.PixelFormat{BPP: 8}))
	assert.True(t, supportedBPP(vnclib.PixelFormat{BPP: 32}))
	assert.False(t, supportedBPP(vnclib.PixelFormat{BPP: 24}))
}
