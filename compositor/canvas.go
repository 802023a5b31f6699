package compositor

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// drawPrimary scales the source frame to fill the whole canvas.
func (c *Compositor) drawPrimary(canvas *image.RGBA, src *image.RGBA) {
	c.scaler.Scale(canvas, canvas.Bounds(), src, src.Bounds(), xdraw.Src, nil)
}

// drawPiP scales the secondary frame into the scratch buffer, mirrors it
// horizontally, then blits it through the rounded-rect mask into the
// bottom-right corner with a border ring on top.
func (c *Compositor) drawPiP(canvas, scratch *image.RGBA, src *image.RGBA) {
	c.scaler.Scale(scratch, scratch.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	mirrorHorizontal(scratch)

	cfg := c.cfg
	x := cfg.Width - cfg.PiPWidth - cfg.PiPMargin
	y := cfg.Height - cfg.PiPHeight - cfg.PiPMargin
	r := image.Rect(x, y, x+cfg.PiPWidth, y+cfg.PiPHeight)

	draw.DrawMask(canvas, r, scratch, image.Point{}, c.pipMask, image.Point{}, draw.Over)
	draw.DrawMask(canvas, r, image.NewUniform(cfg.BorderColor), image.Point{}, c.ringMsk, image.Point{}, draw.Over)
}

// mirrorHorizontal flips the image in place around its vertical axis.
func mirrorHorizontal(img *image.RGBA) {
	b := img.Bounds()
	w := b.Dx()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y) : img.PixOffset(b.Min.X, y)+w*4]
		for l, r := 0, w-1; l < r; l, r = l+1, r-1 {
			lo, ro := l*4, r*4
			row[lo], row[ro] = row[ro], row[lo]
			row[lo+1], row[ro+1] = row[ro+1], row[lo+1]
			row[lo+2], row[ro+2] = row[ro+2], row[lo+2]
			row[lo+3], row[ro+3] = row[ro+3], row[lo+3]
		}
	}
}

// roundedRectMask builds the alpha mask of a w x h rounded rectangle with
// corner radius r.
func roundedRectMask(w, h, r int) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	if r > w/2 {
		r = w / 2
	}
	if r > h/2 {
		r = h / 2
	}
	rr := r * r
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if insideRounded(x, y, w, h, r, rr) {
				mask.SetAlpha(x, y, color.Alpha{A: 255})
			}
		}
	}
	return mask
}

// ringMask is the border stroke: the rounded rect minus the same rect
// inset by the stroke width.
func ringMask(w, h, r, stroke int) *image.Alpha {
	outer := roundedRectMask(w, h, r)
	if stroke <= 0 {
		return image.NewAlpha(image.Rect(0, 0, w, h))
	}
	innerR := r - stroke
	if innerR < 0 {
		innerR = 0
	}
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	irr := innerR * innerR
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if outer.AlphaAt(x, y).A == 0 {
				continue
			}
			ix := x - stroke
			iy := y - stroke
			iw := w - 2*stroke
			ih := h - 2*stroke
			inInner := ix >= 0 && iy >= 0 && ix < iw && iy < ih &&
				insideRounded(ix, iy, iw, ih, innerR, irr)
			if !inInner {
				mask.SetAlpha(x, y, color.Alpha{A: 255})
			}
		}
	}
	return mask
}

func insideRounded(x, y, w, h, r, rr int) bool {
	// Corner circle test only applies inside the corner squares.
	cx, cy := -1, -1
	switch {
	case x < r && y < r:
		cx, cy = r-1, r-1
	case x >= w-r && y < r:
		cx, cy = w-r, r-1
	case x < r && y >= h-r:
		cx, cy = r-1, h-r
	case x >= w-r && y >= h-r:
		cx, cy = w-r, h-r
	default:
		return true
	}
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= rr
}
