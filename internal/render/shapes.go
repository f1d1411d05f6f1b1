package render

import (
	"image"
	"image/color"
	imagedraw "image/draw"
	"math"
)

type pointF struct {
	X float64
	Y float64
}

// drawArrow draws a shaft plus triangular head from the center of one square to another.
func drawArrow(img *image.RGBA, start, end pointF, squareSize int, clr color.Color) {
	dx, dy := end.X-start.X, end.Y-start.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	dirX, dirY := dx/length, dy/length
	perpX, perpY := -dirY, dirX

	baseLength := length - float64(squareSize)*0.45
	if baseLength < float64(squareSize)*0.35 {
		baseLength = length * 0.6
	}
	halfWidth := float64(squareSize) * 0.12
	headHalf := float64(squareSize) * 0.22
	base := pointF{X: start.X + dirX*baseLength, Y: start.Y + dirY*baseLength}

	offset := func(p pointF, w float64) pointF { return pointF{X: p.X + perpX*w, Y: p.Y + perpY*w} }
	fillTriangle(img, offset(start, -halfWidth), offset(start, halfWidth), offset(base, halfWidth), clr)
	fillTriangle(img, offset(start, -halfWidth), offset(base, halfWidth), offset(base, -halfWidth), clr)
	fillTriangle(img, end, offset(base, -headHalf), offset(base, headHalf), clr)
}

func fillTriangle(img *image.RGBA, a, b, c pointF, clr color.Color) {
	minX := int(math.Floor(math.Min(a.X, math.Min(b.X, c.X))))
	maxX := int(math.Ceil(math.Max(a.X, math.Max(b.X, c.X))))
	minY := int(math.Floor(math.Min(a.Y, math.Min(b.Y, c.Y))))
	maxY := int(math.Ceil(math.Max(a.Y, math.Max(b.Y, c.Y))))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if insideTriangle(float64(x)+0.5, float64(y)+0.5, a, b, c) {
				blendPixel(img, x, y, clr)
			}
		}
	}
}

func insideTriangle(x, y float64, a, b, c pointF) bool {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return false
	}
	alpha := ((b.Y-c.Y)*(x-c.X) + (c.X-b.X)*(y-c.Y)) / denom
	beta := ((c.Y-a.Y)*(x-c.X) + (a.X-c.X)*(y-c.Y)) / denom
	return alpha >= 0 && beta >= 0 && 1-alpha-beta >= 0
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if rect.Empty() {
		return
	}
	if lim := min(rect.Dx(), rect.Dy()) / 2; radius > lim {
		radius = lim
	}
	fill := image.NewUniform(clr)
	if radius <= 0 {
		imagedraw.Draw(img, rect, fill, image.Point{}, imagedraw.Over)
		return
	}
	// 가운데 세로 띠 + 좌우 띠, 모서리는 원으로 채운다.
	imagedraw.Draw(img, image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)
	for _, c := range []image.Point{
		{rect.Min.X + radius, rect.Min.Y + radius},
		{rect.Max.X - radius - 1, rect.Min.Y + radius},
		{rect.Min.X + radius, rect.Max.Y - radius - 1},
		{rect.Max.X - radius - 1, rect.Max.Y - radius - 1},
	} {
		drawQuarterDisc(img, c, radius, rect, clr)
	}
}

// drawQuarterDisc fills the disc around center but only outside the already painted bands.
func drawQuarterDisc(img *image.RGBA, center image.Point, radius int, rect image.Rectangle, clr color.Color) {
	painted := image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y).
		Union(image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius))
	r2 := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			p := image.Pt(center.X+x, center.Y+y)
			if x*x+y*y > r2 || p.In(painted) || !p.In(rect) {
				continue
			}
			blendPixel(img, p.X, p.Y, clr)
		}
	}
}

func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := img.RGBAAt(x, y)
	inv := 65535 - sa
	// premultiplied source-over
	img.SetRGBA(x, y, color.RGBA{
		R: uint8((sr + uint32(dst.R)*257*inv/65535) >> 8),
		G: uint8((sg + uint32(dst.G)*257*inv/65535) >> 8),
		B: uint8((sb + uint32(dst.B)*257*inv/65535) >> 8),
		A: uint8((sa + uint32(dst.A)*257*inv/65535) >> 8),
	})
}
