// Package render draws debug frames of a match: hurtboxes, live hitboxes
// and the hp/gauge bars, on the arena's coordinate grid.
package render

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"duel-arena/internal/combat"
	"duel-arena/internal/match"
)

const (
	MinScale = 0.1
	MaxScale = 1.0

	gridStep  = 80.0
	barWidth  = 60.0
	barHeight = 6.0
	fullBar   = 100
)

var ErrBadScale = fmt.Errorf("scale must be within [%.1f, %.1f]", MinScale, MaxScale)

var (
	background = color.RGBA{12, 12, 28, 255}
	gridColor  = color.RGBA{30, 30, 45, 255}
	sideColors = [2]color.RGBA{{64, 156, 255, 255}, {255, 82, 82, 255}}
	hitboxFill = color.NRGBA{255, 214, 0, 170} // translucent, so not premultiplied
	guardRing  = color.NRGBA{255, 255, 255, 200}
	barBack    = color.RGBA{51, 51, 51, 255}
	gaugeColor = color.RGBA{0, 200, 255, 255}
)

// Frame draws v at arena resolution.
func Frame(v match.View) image.Image {
	w, h := int(v.Arena.Width), int(v.Arena.Height)
	if w <= 0 || h <= 0 {
		a := match.DefaultArena()
		w, h = int(a.Width), int(a.Height)
	}
	dc := gg.NewContext(w, h)

	dc.SetColor(background)
	dc.DrawRectangle(0, 0, float64(w), float64(h))
	dc.Fill()

	drawGrid(dc, float64(w), float64(h))
	for i, side := range v.Sides {
		drawSide(dc, side.State, sideColors[i])
	}
	return dc.Image()
}

func drawGrid(dc *gg.Context, w, h float64) {
	dc.SetColor(gridColor)
	dc.SetLineWidth(1)
	for x := gridStep; x < w; x += gridStep {
		dc.DrawLine(x, 0, x, h)
		dc.Stroke()
	}
	for y := gridStep; y < h; y += gridStep {
		dc.DrawLine(0, y, w, y)
		dc.Stroke()
	}
}

func drawSide(dc *gg.Context, s combat.StateView, c color.RGBA) {
	hb := s.Hurtbox

	dc.SetColor(c)
	dc.DrawRectangle(hb.X, hb.Y, hb.W, hb.H)
	dc.Fill()

	if s.LastAction == string(combat.ActionGuard) && s.Gauge > 0 {
		dc.SetColor(guardRing)
		dc.SetLineWidth(3)
		dc.DrawRectangle(hb.X-3, hb.Y-3, hb.W+6, hb.H+6)
		dc.Stroke()
	}

	if s.Hitbox != nil {
		box := *s.Hitbox
		dc.SetColor(hitboxFill)
		dc.DrawRectangle(box.X, box.Y, box.W, box.H)
		dc.Fill()
	}

	// bars sit above the hurtbox, clipped by the canvas when at the top edge
	cx, _ := hb.Center()
	x := cx - barWidth/2
	drawBar(dc, x, hb.Y-2*barHeight-4, s.HP, fullBar, c)
	drawBar(dc, x, hb.Y-barHeight-2, s.Gauge, fullBar, gaugeColor)
}

func drawBar(dc *gg.Context, x, y float64, value, full int, c color.RGBA) {
	dc.SetColor(barBack)
	dc.DrawRectangle(x, y, barWidth, barHeight)
	dc.Fill()

	if full <= 0 || value <= 0 {
		return
	}
	pct := float64(value) / float64(full)
	if pct > 1 {
		pct = 1
	}
	dc.SetColor(c)
	dc.DrawRectangle(x, y, barWidth*pct, barHeight)
	dc.Fill()
}

// Scaled downsizes img by scale. A scale of 1 returns img unchanged.
func Scaled(img image.Image, scale float64) (image.Image, error) {
	if scale < MinScale || scale > MaxScale {
		return nil, ErrBadScale
	}
	if scale == MaxScale {
		return img, nil
	}
	b := img.Bounds()
	w := int(float64(b.Dx()) * scale)
	if w < 1 {
		w = 1
	}
	return imaging.Resize(img, w, 0, imaging.NearestNeighbor), nil
}

// PNG writes the frame of v, downscaled by scale, as a PNG.
func PNG(w io.Writer, v match.View, scale float64) error {
	img, err := Scaled(Frame(v), scale)
	if err != nil {
		return err
	}
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return nil
}
