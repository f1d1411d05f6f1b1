package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/llm-chess-bot/internal/domain"
)

// Options controls one board image.
type Options struct {
	// Orientation is the side drawn at the bottom; empty means white.
	Orientation domain.Side
	// LastFrom and LastTo are square names ("e2", "e4") of the move to highlight.
	LastFrom string
	LastTo   string
	Header   string
	Footer   string
}

// BoardRenderer turns a FEN position into PNG bytes.
type BoardRenderer interface {
	RenderPNG(ctx context.Context, fen string, opts Options) ([]byte, error)
}

type pngRenderer struct {
	squareSize int
}

func NewPNGRenderer() BoardRenderer {
	return &pngRenderer{squareSize: 56}
}

var (
	lightSquare        = color.RGBA{233, 207, 163, 255}
	darkSquare         = color.RGBA{187, 136, 96, 255}
	lastMoveFill       = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	lastMoveArrow      = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	backgroundColor    = color.RGBA{22, 24, 34, 255}
	hudPanelColor      = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudShadowColor     = color.NRGBA{0, 0, 0, 50}
	hudTextPrimary     = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	coordinateTextClr  = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
	footerTextColor    = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	boardShadowColor   = color.NRGBA{0, 0, 0, 60}
	hudFace            = basicfont.Face7x13
	orderedFilesWhite  = []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}
	orderedRanksWhite  = []nchess.Rank{nchess.Rank8, nchess.Rank7, nchess.Rank6, nchess.Rank5, nchess.Rank4, nchess.Rank3, nchess.Rank2, nchess.Rank1}
)

// geometry maps squares to pixels for one orientation.
type geometry struct {
	origin  image.Point
	size    int
	flipped bool
}

func (g geometry) rect(sq nchess.Square) image.Rectangle {
	col := int(sq.File())
	row := 7 - int(sq.Rank())
	if g.flipped {
		col, row = 7-col, 7-row
	}
	x := g.origin.X + col*g.size
	y := g.origin.Y + row*g.size
	return image.Rect(x, y, x+g.size, y+g.size)
}

func (g geometry) center(sq nchess.Square) pointF {
	r := g.rect(sq)
	return pointF{X: float64(r.Min.X + g.size/2), Y: float64(r.Min.Y + g.size/2)}
}

func (g geometry) bounds() image.Rectangle {
	return image.Rect(g.origin.X, g.origin.Y, g.origin.X+8*g.size, g.origin.Y+8*g.size)
}

func (r *pngRenderer) RenderPNG(ctx context.Context, fen string, opts Options) ([]byte, error) {
	board, err := boardFromFEN(fen)
	if err != nil {
		return nil, err
	}
	const (
		sideMargin   = 28
		topMargin    = 64
		bottomMargin = 48
	)
	boardSize := r.squareSize * 8
	geo := geometry{
		origin:  image.Pt(sideMargin, topMargin),
		size:    r.squareSize,
		flipped: opts.Orientation == domain.Black,
	}
	img := image.NewRGBA(image.Rect(0, 0, boardSize+sideMargin*2, boardSize+topMargin+bottomMargin))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	drawBoardShadow(img, geo.bounds())
	drawSquares(img, geo)
	drawLastMove(img, geo, opts.LastFrom, opts.LastTo)
	if err := drawPieces(img, board, geo); err != nil {
		return nil, err
	}
	drawCoordinates(img, geo, sideMargin)
	drawHeader(img, geo.bounds(), opts.Header)
	drawFooter(img, geo.bounds(), opts.Footer)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func boardFromFEN(fen string) (*nchess.Board, error) {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("parse position: %w", err)
	}
	return nchess.NewGame(opt).Position().Board(), nil
}

func drawBoardShadow(img *image.RGBA, boardRect image.Rectangle) {
	shadow := image.Rect(boardRect.Min.X+4, boardRect.Min.Y+8, boardRect.Max.X+10, boardRect.Max.Y+12)
	imagedraw.Draw(img, shadow, image.NewUniform(boardShadowColor), image.Point{}, imagedraw.Over)
}

func drawSquares(dst imagedraw.Image, geo geometry) {
	for _, rank := range orderedRanksWhite {
		for _, file := range orderedFilesWhite {
			sq := nchess.NewSquare(file, rank)
			imagedraw.Draw(dst, geo.rect(sq), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
		}
	}
}

func drawPieces(dst imagedraw.Image, board *nchess.Board, geo geometry) error {
	for sq, piece := range board.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		glyph, err := renderPieceImage(piece, geo.size)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, geo.rect(sq), glyph, image.Point{}, imagedraw.Over)
	}
	return nil
}

// drawLastMove tints both squares and lays an arrow between them.
func drawLastMove(img *image.RGBA, geo geometry, from, to string) {
	fromSq, ok1 := parseSquare(from)
	toSq, ok2 := parseSquare(to)
	if !ok1 || !ok2 {
		return
	}
	imagedraw.Draw(img, geo.rect(fromSq), image.NewUniform(lastMoveFill), image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, geo.rect(toSq), image.NewUniform(lastMoveFill), image.Point{}, imagedraw.Over)
	drawArrow(img, geo.center(fromSq), geo.center(toSq), geo.size, lastMoveArrow)
}

func parseSquare(name string) (nchess.Square, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) != 2 || name[0] < 'a' || name[0] > 'h' || name[1] < '1' || name[1] > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(name[0]-'a'), nchess.Rank(name[1]-'1')), true
}

func drawCoordinates(dst imagedraw.Image, geo geometry, margin int) {
	drawer := &font.Drawer{Dst: dst, Face: hudFace, Src: image.NewUniform(coordinateTextClr)}
	ascent := hudFace.Metrics().Ascent.Ceil()
	bounds := geo.bounds()
	for _, rank := range orderedRanksWhite {
		r := geo.rect(nchess.NewSquare(nchess.FileA, rank))
		drawCenteredText(drawer, rank.String(), bounds.Min.X-margin/2, r.Min.Y+geo.size/2+ascent/2)
	}
	for _, file := range orderedFilesWhite {
		r := geo.rect(nchess.NewSquare(file, nchess.Rank1))
		drawCenteredText(drawer, file.String(), r.Min.X+geo.size/2, bounds.Max.Y+ascent+4)
	}
}

func drawHeader(img *image.RGBA, boardRect image.Rectangle, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	const (
		height   = 32
		gap      = 14
		radius   = 10
		paddingX = 20
	)
	drawer := &font.Drawer{Dst: img, Face: hudFace}
	width := drawer.MeasureString(text).Round() + paddingX*2
	if width > boardRect.Dx() {
		width = boardRect.Dx()
	}
	left := boardRect.Min.X + (boardRect.Dx()-width)/2
	panel := image.Rect(left, boardRect.Min.Y-gap-height, left+width, boardRect.Min.Y-gap)
	drawRoundedPanel(img, panel.Add(image.Pt(0, 4)), radius, hudShadowColor)
	drawRoundedPanel(img, panel, radius, hudPanelColor)
	drawCenteredString(drawer, panel, truncateWithEllipsis(hudFace, text, width-paddingX*2), hudTextPrimary)
}

func drawFooter(img *image.RGBA, boardRect image.Rectangle, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	drawer := &font.Drawer{Dst: img, Face: hudFace, Src: image.NewUniform(footerTextColor)}
	text = truncateWithEllipsis(hudFace, text, boardRect.Dx())
	drawCenteredText(drawer, text, boardRect.Min.X+boardRect.Dx()/2, boardRect.Max.Y+36)
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	if text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	x := rect.Min.X + (rect.Dx()-drawer.MeasureString(text).Round())/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	drawer.Dot = fixed.P(centerX-drawer.MeasureString(text).Round()/2, baseline)
	drawer.DrawString(text)
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	if text == "" || maxWidth <= 0 {
		return text
	}
	drawer := font.Drawer{Face: face}
	if drawer.MeasureString(text).Round() <= maxWidth {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		if candidate := string(runes) + "..."; drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return ""
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}
