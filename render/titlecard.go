package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/go-text/typesetting/di"
	gofont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// CardStyle controls title card appearance. Sizes are given for a 1080-line
// frame and scale with the target height.
type CardStyle struct {
	Background  color.RGBA
	Foreground  color.RGBA
	FontSize    float64
	LineSpacing float64
}

var (
	// IntroStyle is used for the opening title card.
	IntroStyle = CardStyle{
		Background:  color.RGBA{R: 26, G: 26, B: 46, A: 255},
		Foreground:  color.RGBA{R: 255, G: 107, B: 107, A: 255},
		FontSize:    60,
		LineSpacing: 70,
	}
	// OutroStyle is used for the closing card.
	OutroStyle = CardStyle{
		Background:  color.RGBA{R: 30, G: 30, B: 50, A: 255},
		Foreground:  color.RGBA{R: 255, G: 107, B: 107, A: 255},
		FontSize:    60,
		LineSpacing: 70,
	}
)

// OutroText is the closing card's caption.
const OutroText = "Thanks for watching!\nSubscribe for more"

var (
	fontOnce  sync.Once
	sfntFont  *opentype.Font
	shapeFace *gofont.Face
	fontErr   error
)

func loadFonts() error {
	fontOnce.Do(func() {
		sfntFont, fontErr = opentype.Parse(goregular.TTF)
		if fontErr != nil {
			return
		}
		shapeFace, fontErr = gofont.ParseTTF(bytes.NewReader(goregular.TTF))
	})
	return fontErr
}

// TitleCard renders centred multi-line text on a solid background.
func TitleCard(text string, size image.Point, style CardStyle) (*image.RGBA, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, ErrInvalidSize
	}
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("load card font: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(style.Background), image.Point{}, draw.Src)

	k := float64(size.Y) / 1080
	fontSize := style.FontSize * k
	if fontSize < 8 {
		fontSize = 8
	}
	face, err := opentype.NewFace(sfntFont, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("card face: %w", err)
	}
	defer face.Close()

	lines := strings.Split(text, "\n")
	spacing := style.LineSpacing * k
	blockTop := float64(size.Y)/2 - spacing*float64(len(lines)-1)/2
	ascent := face.Metrics().Ascent.Round()
	descent := face.Metrics().Descent.Round()

	d := &font.Drawer{Dst: dst, Src: image.NewUniform(style.Foreground), Face: face}
	for i, line := range lines {
		w := MeasureLine(line, fontSize)
		x := (float64(size.X) - w) / 2
		// baseline places the glyph box centre on the line's centre
		y := blockTop + spacing*float64(i) + float64(ascent-descent)/2
		d.Dot = fixed.P(int(x), int(y))
		d.DrawString(line)
	}
	return dst, nil
}

// MeasureLine returns the shaped advance width of a single line in pixels.
func MeasureLine(line string, size float64) float64 {
	if line == "" || loadFonts() != nil {
		return 0
	}
	runes := []rune(line)
	out := (&shaping.HarfbuzzShaper{}).Shape(shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      shapeFace,
		Size:      fixed.Int26_6(size * 64),
		Script:    language.Latin,
		Language:  language.DefaultLanguage(),
	})
	return float64(out.Advance) / 64
}
