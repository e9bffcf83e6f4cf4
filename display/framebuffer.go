//go:build screen

package display

import (
	"encoding/binary"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/d21d3q/framebuffer"
	"github.com/fogleman/gg"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
)

// Supported returns whether framebuffer support is compiled in.
func Supported() bool {
	return true
}

// Framebuffer renders the home image directly to the Linux framebuffer.
type Framebuffer struct {
	log zerolog.Logger

	dc              *gg.Context
	rgbaImage       *image.RGBA
	home            image.Image // pre-scaled to screen size; nil if load failed
	pixBuffer       []byte
	backBuffer      []byte
	width           int
	height          int
	lineLengthBytes int
	initialized     bool
}

func newFramebuffer(cfg Config, homeImage string, log zerolog.Logger) (Surface, error) {
	device := cfg.Device
	if device == "" {
		device = "/dev/fb0"
	}

	fbLowLevel, err := framebuffer.OpenFrameBuffer(device, os.O_RDWR)
	if err != nil {
		return nil, fmt.Errorf("open framebuffer: %w", err)
	}

	varInfo, err := fbLowLevel.VarScreenInfo()
	if err != nil {
		return nil, fmt.Errorf("get variable screen info: %w", err)
	}
	fixedInfo, err := fbLowLevel.FixScreenInfo()
	if err != nil {
		return nil, fmt.Errorf("get fixed screen info: %w", err)
	}

	f := &Framebuffer{log: log}
	f.pixBuffer, err = fbLowLevel.Pixels()
	if err != nil {
		return nil, fmt.Errorf("get pixel data: %w", err)
	}

	f.width = int(varInfo.XRes)
	f.height = int(varInfo.YRes)
	f.lineLengthBytes = int(fixedInfo.LineLength)
	f.backBuffer = make([]byte, f.height*f.lineLengthBytes)

	log.Info().Int("width", f.width).Int("height", f.height).
		Uint32("bpp", varInfo.BitsPerPixel).Int("stride", f.lineLengthBytes).
		Msg("framebuffer opened")

	f.rgbaImage = image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	f.dc = gg.NewContextForRGBA(f.rgbaImage)
	f.initialized = true

	f.loadHome(homeImage)
	f.clear()
	return f, nil
}

// loadHome decodes and pre-scales the home image. A failed load is not
// fatal; the home screen falls back to black.
func (f *Framebuffer) loadHome(path string) {
	file, err := os.Open(path)
	if err != nil {
		f.log.Error().Err(err).Str("path", path).Msg("open home image")
		return
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		f.log.Error().Err(err).Str("path", path).Msg("decode home image")
		return
	}

	scaled := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Src, nil)
	f.home = scaled
}

func (f *Framebuffer) clear() {
	for i := range f.pixBuffer {
		f.pixBuffer[i] = 0
	}
}

// update converts the RGBA draw buffer to RGB565 and blits it.
func (f *Framebuffer) update() {
	if !f.initialized {
		return
	}
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			r, g, b, _ := f.rgbaImage.At(x, y).RGBA()
			r5 := uint16(r >> (16 - 5))
			g6 := uint16(g >> (16 - 6))
			b5 := uint16(b >> (16 - 5))
			pixel16 := (r5 << 11) | (g6 << 5) | b5
			fbIdx := (y * f.lineLengthBytes) + (x * 2)
			if fbIdx+1 < len(f.backBuffer) {
				binary.LittleEndian.PutUint16(f.backBuffer[fbIdx:], pixel16)
			}
		}
	}
	copy(f.pixBuffer, f.backBuffer)
}

// ShowHome implements Surface.
func (f *Framebuffer) ShowHome() {
	if !f.initialized {
		return
	}
	f.dc.SetRGB(0, 0, 0)
	f.dc.DrawRectangle(0, 0, float64(f.width), float64(f.height))
	f.dc.Fill()
	if f.home != nil {
		f.dc.DrawImage(f.home, 0, 0)
	}
	f.update()
}

// ShowVideo implements Surface: blank the framebuffer so the player's
// DRM output is the only thing on screen.
func (f *Framebuffer) ShowVideo() {
	if !f.initialized {
		return
	}
	f.clear()
}

// Release implements Surface.
func (f *Framebuffer) Release() error {
	if !f.initialized {
		return nil
	}
	f.clear()
	f.initialized = false
	return nil
}
