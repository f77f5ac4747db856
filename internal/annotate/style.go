package annotate

import (
	"fmt"
	"image/color"
	"strings"
	"unicode"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/text/unicode/norm"
)

// Style controls how detections are drawn.
type Style struct {
	BoxColor    color.Color
	TextColor   color.Color
	Thickness   int
	LabelOffset int // pixels between the label baseline and the box top
	Face        font.Face
}

// DefaultStyle draws green boxes with red labels in the 7x13 bitmap font.
func DefaultStyle() Style {
	return Style{
		BoxColor:    color.RGBA{G: 255, A: 255},
		TextColor:   color.RGBA{R: 255, A: 255},
		Thickness:   2,
		LabelOffset: 10,
		Face:        basicfont.Face7x13,
	}
}

// withDefaults fills unset fields from DefaultStyle.
func (s Style) withDefaults() Style {
	d := DefaultStyle()
	if s.BoxColor == nil {
		s.BoxColor = d.BoxColor
	}
	if s.TextColor == nil {
		s.TextColor = d.TextColor
	}
	if s.Thickness < 1 {
		s.Thickness = d.Thickness
	}
	if s.LabelOffset == 0 {
		s.LabelOffset = d.LabelOffset
	}
	if s.Face == nil {
		s.Face = d.Face
	}
	return s
}

// ParseHexColor parses "#RRGGBB" or "RRGGBB".
func ParseHexColor(s string) (color.Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return nil, fmt.Errorf("invalid hex color %q", s)
	}
	var rv, gv, bv int
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &rv, &gv, &bv); err != nil {
		return nil, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.RGBA{uint8(rv), uint8(gv), uint8(bv), 255}, nil //nolint:gosec // G115: values are 0-255
}

// Label formats the text drawn next to a plate, e.g. "AB 123 (87.25%)".
func Label(text string, confidence float64) string {
	return fmt.Sprintf("%s (%.2f%%)", text, confidence*100)
}

// foldASCII maps text onto the ASCII range the bitmap font can render.
// Accented letters lose their marks; anything else becomes '?'.
func foldASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFKD.String(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsPrint(r) || r == ' '):
			b.WriteRune(r)
		case unicode.Is(unicode.Mn, r):
		default:
			b.WriteByte('?')
		}
	}
	return b.String()
}
