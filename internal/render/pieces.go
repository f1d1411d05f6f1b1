package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Glyph bodies on a 45x45 canvas; fill and stroke are substituted per color.
var glyphBodies = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="14" r="5.5"/>
<path d="M 16 35 L 18.5 22 L 26.5 22 L 29 35 Z"/>
<rect x="12" y="35" width="21" height="4.5"/>`,
	nchess.Knight: `<path d="M 13 39 L 14 31 C 14 24 18 20 17 15 L 14 17 L 12 14 L 19 7 L 22 7 C 30 8 33 16 32 27 L 33 39 Z"/>
<circle cx="20" cy="12" r="1.2"/>`,
	nchess.Bishop: `<circle cx="22.5" cy="8.5" r="3"/>
<path d="M 22.5 11 C 15 16 14 24 18 30 L 27 30 C 31 24 30 16 22.5 11 Z"/>
<rect x="14" y="31" width="17" height="3.5"/>
<rect x="11" y="36" width="23" height="3.5"/>`,
	nchess.Rook: `<path d="M 11 8 L 15 8 L 15 11 L 20 11 L 20 8 L 25 8 L 25 11 L 30 11 L 30 8 L 34 8 L 34 15 L 30 18 L 30 32 L 15 32 L 15 18 L 11 15 Z"/>
<rect x="10" y="33" width="25" height="6.5"/>`,
	nchess.Queen: `<path d="M 9 14 L 14 30 L 31 30 L 36 14 L 29 24 L 26 10 L 22.5 24 L 19 10 L 16 24 Z"/>
<circle cx="9" cy="12" r="2.5"/><circle cx="19" cy="9" r="2.5"/><circle cx="26" cy="9" r="2.5"/><circle cx="36" cy="12" r="2.5"/>
<rect x="12" y="31" width="21" height="3.5"/>
<rect x="10" y="36" width="25" height="3.5"/>`,
	nchess.King: `<rect x="21" y="3" width="3" height="11"/>
<rect x="17" y="6" width="11" height="3"/>
<path d="M 10 22 C 10 13 22.5 13 22.5 20 C 22.5 13 35 13 35 22 C 35 27 31 30 30 32 L 15 32 C 14 30 10 27 10 22 Z"/>
<rect x="11" y="34" width="23" height="5.5"/>`,
}

func glyphSVG(piece nchess.Piece) ([]byte, error) {
	body, ok := glyphBodies[piece.Type()]
	if !ok {
		return nil, fmt.Errorf("no glyph for %v", piece)
	}
	fill, stroke := "#f8f8f8", "#1c1c1c"
	if piece.Color() == nchess.Black {
		fill, stroke = "#2b2b2b", "#0a0a0a"
	}
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">`)
	b.WriteString(fmt.Sprintf(`<g style="fill: %s; stroke: %s; stroke-width:1.5; stroke-linejoin:round">`, fill, stroke))
	b.WriteString(body)
	b.WriteString(`</g></svg>`)
	return sanitizeSVG([]byte(b.String())), nil
}

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func renderPieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}
	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	data, err := glyphSVG(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()
	return img, nil
}

// sanitizeSVG removes the spaces after ':' that oksvg's style parser rejects.
func sanitizeSVG(svg []byte) []byte {
	for _, attr := range []string{"fill", "stroke", "stop-color"} {
		svg = bytes.ReplaceAll(svg, []byte(attr+": #"), []byte(attr+":#"))
	}
	return svg
}
