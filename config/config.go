// Package config defines the render configuration shared by the engines.
//
// Every field is a pointer: nil means "not set" so a Config doubles as a deep partial
// override. Merge layers overrides onto a base field by field.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
	"oss.terrastruct.com/util-go/go2"
)

type Config struct {
	Core        *Core        `json:"core,omitempty" yaml:"core,omitempty"`
	ThemeConfig *ThemeConfig `json:"themeConfig,omitempty" yaml:"themeConfig,omitempty"`
}

type Core struct {
	// UseMaxWidth makes the svg fill its container up to its natural width.
	UseMaxWidth *bool   `json:"useMaxWidth,omitempty" yaml:"useMaxWidth,omitempty"`
	Layout      *string `json:"layout,omitempty" yaml:"layout,omitempty"`
	Pad         *int64  `json:"pad,omitempty" yaml:"pad,omitempty"`
	Center      *bool   `json:"center,omitempty" yaml:"center,omitempty"`
	Sketch      *bool   `json:"sketch,omitempty" yaml:"sketch,omitempty"`
}

type ThemeConfig struct {
	Theme          *int64          `json:"theme,omitempty" yaml:"theme,omitempty"`
	DarkTheme      *int64          `json:"darkTheme,omitempty" yaml:"darkTheme,omitempty"`
	ThemeVariables *ThemeVariables `json:"themeVariables,omitempty" yaml:"themeVariables,omitempty"`
}

type ThemeVariables struct {
	IsDark *bool `json:"isDark,omitempty" yaml:"isDark,omitempty"`

	PrimaryColor   *string `json:"primaryColor,omitempty" yaml:"primaryColor,omitempty"`
	SecondaryColor *string `json:"secondaryColor,omitempty" yaml:"secondaryColor,omitempty"`
	TertiaryColor  *string `json:"tertiaryColor,omitempty" yaml:"tertiaryColor,omitempty"`

	LineColor          *string `json:"lineColor,omitempty" yaml:"lineColor,omitempty"`
	PrimaryLineColor   *string `json:"primaryLineColor,omitempty" yaml:"primaryLineColor,omitempty"`
	SecondaryLineColor *string `json:"secondaryLineColor,omitempty" yaml:"secondaryLineColor,omitempty"`

	TextColor          *string `json:"textColor,omitempty" yaml:"textColor,omitempty"`
	PrimaryTextColor   *string `json:"primaryTextColor,omitempty" yaml:"primaryTextColor,omitempty"`
	SecondaryTextColor *string `json:"secondaryTextColor,omitempty" yaml:"secondaryTextColor,omitempty"`
	// The misspelling is part of the wire format.
	TeritaryTextColor *string `json:"teritaryTextColor,omitempty" yaml:"teritaryTextColor,omitempty"`

	PrimaryBorderColor   *string `json:"primaryBorderColor,omitempty" yaml:"primaryBorderColor,omitempty"`
	SecondaryBorderColor *string `json:"secondaryBorderColor,omitempty" yaml:"secondaryBorderColor,omitempty"`
	TertiaryBorderColor  *string `json:"tertiaryBorderColor,omitempty" yaml:"tertiaryBorderColor,omitempty"`

	CanvasBackground   *string `json:"canvasBackground,omitempty" yaml:"canvasBackground,omitempty"`
	Background1        *string `json:"background1,omitempty" yaml:"background1,omitempty"`
	LightestBackground *string `json:"lightestBackground,omitempty" yaml:"lightestBackground,omitempty"`
	GroupBackground    *string `json:"groupBackground,omitempty" yaml:"groupBackground,omitempty"`
	NoteBackground     *string `json:"noteBackground,omitempty" yaml:"noteBackground,omitempty"`
	NoteTextColor      *string `json:"noteTextColor,omitempty" yaml:"noteTextColor,omitempty"`
}

// Roles lists the color roles in declaration order.
var Roles = []string{
	"primaryColor",
	"secondaryColor",
	"tertiaryColor",
	"lineColor",
	"primaryLineColor",
	"secondaryLineColor",
	"textColor",
	"primaryTextColor",
	"secondaryTextColor",
	"teritaryTextColor",
	"primaryBorderColor",
	"secondaryBorderColor",
	"tertiaryBorderColor",
	"canvasBackground",
	"background1",
	"lightestBackground",
	"groupBackground",
	"noteBackground",
	"noteTextColor",
}

// Colors returns a pointer to every color role field keyed by role name.
func (tv *ThemeVariables) Colors() map[string]**string {
	return map[string]**string{
		"primaryColor":         &tv.PrimaryColor,
		"secondaryColor":       &tv.SecondaryColor,
		"tertiaryColor":        &tv.TertiaryColor,
		"lineColor":            &tv.LineColor,
		"primaryLineColor":     &tv.PrimaryLineColor,
		"secondaryLineColor":   &tv.SecondaryLineColor,
		"textColor":            &tv.TextColor,
		"primaryTextColor":     &tv.PrimaryTextColor,
		"secondaryTextColor":   &tv.SecondaryTextColor,
		"teritaryTextColor":    &tv.TeritaryTextColor,
		"primaryBorderColor":   &tv.PrimaryBorderColor,
		"secondaryBorderColor": &tv.SecondaryBorderColor,
		"tertiaryBorderColor":  &tv.TertiaryBorderColor,
		"canvasBackground":     &tv.CanvasBackground,
		"background1":          &tv.Background1,
		"lightestBackground":   &tv.LightestBackground,
		"groupBackground":      &tv.GroupBackground,
		"noteBackground":       &tv.NoteBackground,
		"noteTextColor":        &tv.NoteTextColor,
	}
}

// CSSThemeVariables maps every color role to the CSS custom property of the same name
// so the page embedding the svg decides the palette.
var CSSThemeVariables = func() ThemeVariables {
	var tv ThemeVariables
	for role, field := range tv.Colors() {
		*field = go2.Pointer(fmt.Sprintf("rgb(var(--%s))", role))
	}
	return tv
}()

// Merge returns a deep copy of base with every non nil field of the overrides applied
// in order. base and the overrides are not modified.
func Merge(base *Config, overrides ...*Config) *Config {
	out := base.Copy()
	for _, o := range overrides {
		if o == nil {
			continue
		}
		if o.Core != nil {
			if out.Core == nil {
				out.Core = &Core{}
			}
			mergeCore(out.Core, o.Core)
		}
		if o.ThemeConfig != nil {
			if out.ThemeConfig == nil {
				out.ThemeConfig = &ThemeConfig{}
			}
			mergeThemeConfig(out.ThemeConfig, o.ThemeConfig)
		}
	}
	return out
}

func mergeCore(dst, src *Core) {
	set(&dst.UseMaxWidth, src.UseMaxWidth)
	set(&dst.Layout, src.Layout)
	set(&dst.Pad, src.Pad)
	set(&dst.Center, src.Center)
	set(&dst.Sketch, src.Sketch)
}

func mergeThemeConfig(dst, src *ThemeConfig) {
	set(&dst.Theme, src.Theme)
	set(&dst.DarkTheme, src.DarkTheme)
	if src.ThemeVariables != nil {
		if dst.ThemeVariables == nil {
			dst.ThemeVariables = &ThemeVariables{}
		}
		MergeThemeVariables(dst.ThemeVariables, src.ThemeVariables)
	}
}

// MergeThemeVariables overwrites the fields of dst that are set in src.
func MergeThemeVariables(dst, src *ThemeVariables) {
	set(&dst.IsDark, src.IsDark)
	srcColors := src.Colors()
	for role, field := range dst.Colors() {
		set(field, *srcColors[role])
	}
}

func set[T any](dst **T, src *T) {
	if src != nil {
		*dst = go2.Pointer(*src)
	}
}

// Copy returns a deep copy. A nil Config copies to an empty one.
func (c *Config) Copy() *Config {
	out := &Config{}
	if c == nil {
		return out
	}
	if c.Core != nil {
		out.Core = &Core{}
		mergeCore(out.Core, c.Core)
	}
	if c.ThemeConfig != nil {
		out.ThemeConfig = &ThemeConfig{}
		mergeThemeConfig(out.ThemeConfig, c.ThemeConfig)
	}
	return out
}

// Variables returns the theme variables or an empty set.
func (c *Config) Variables() *ThemeVariables {
	if c == nil || c.ThemeConfig == nil || c.ThemeConfig.ThemeVariables == nil {
		return &ThemeVariables{}
	}
	return c.ThemeConfig.ThemeVariables
}

func (c *Config) UseMaxWidth() bool {
	return c != nil && c.Core != nil && c.Core.UseMaxWidth != nil && *c.Core.UseMaxWidth
}

// Parse decodes YAML or JSON into a Config. Unknown keys are rejected.
func Parse(b []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	c := &Config{}
	err := dec.Decode(c)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return c, nil
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
