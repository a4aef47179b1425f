// Package color validates and classifies the CSS color strings accepted as diagram backgrounds.
package color

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/mazznoer/csscolorparser"
)

var (
	cssVarRegex   = regexp.MustCompile(`var\(--[A-Za-z0-9_-]+\)`)
	gradientRegex = regexp.MustCompile(`^(linear|radial)-gradient\(.+\)$`)
)

// IsCSSVar reports whether s references a CSS custom property, e.g. rgb(var(--canvasBackground)).
func IsCSSVar(s string) bool {
	return cssVarRegex.MatchString(s)
}

func IsGradient(s string) bool {
	return gradientRegex.MatchString(strings.TrimSpace(s))
}

// Validate accepts literal CSS colors, gradients and expressions over CSS custom properties.
func Validate(s string) error {
	if IsCSSVar(s) || IsGradient(s) {
		return nil
	}
	_, err := csscolorparser.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid color %q: %w", s, err)
	}
	return nil
}

// Hex normalizes a literal CSS color to #rrggbb.
func Hex(s string) (string, error) {
	c, err := parse(s)
	if err != nil {
		return "", err
	}
	return c.Hex(), nil
}

func LuminanceCategory(colorString string) (string, error) {
	l, err := Luminance(colorString)
	if err != nil {
		return "", err
	}

	switch {
	case l >= .88:
		return "bright", nil
	case l >= .55:
		return "normal", nil
	case l >= .30:
		return "dark", nil
	default:
		return "darker", nil
	}
}

// Luminance is the perceptual lightness of the color in [0, 1].
func Luminance(colorString string) (float64, error) {
	c, err := parse(colorString)
	if err != nil {
		return 0, err
	}
	l, _, _ := c.Clamped().Lab()
	return l, nil
}

// IsDark reports whether text drawn over colorString should be light.
func IsDark(colorString string) (bool, error) {
	l, err := Luminance(colorString)
	if err != nil {
		return false, err
	}
	return l < .5, nil
}

func parse(s string) (colorful.Color, error) {
	c, err := csscolorparser.Parse(s)
	if err != nil {
		return colorful.Color{}, err
	}
	return colorful.Color{R: c.R, G: c.G, B: c.B}, nil
}
