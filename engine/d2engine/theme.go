package d2engine

import (
	"fmt"

	"oss.terrastruct.com/d2/d2target"
	"oss.terrastruct.com/d2/d2themes"
	"oss.terrastruct.com/d2/d2themes/d2themescatalog"

	"oss.terrastruct.com/d2render/config"
	"oss.terrastruct.com/d2render/lib/color"
)

// DefaultDarkTheme is used when the variables ask for a dark diagram and no theme was chosen.
var DefaultDarkTheme = d2themescatalog.DarkMauve.ID

func findTheme(id int64) (d2themes.Theme, error) {
	theme := d2themescatalog.Find(id)
	if theme.Name == "" {
		return theme, fmt.Errorf("theme %d not found, run `d2render themes` to list them", id)
	}
	return theme, nil
}

func resolveThemes(cfg *config.Config) (themeID int64, darkThemeID *int64, err error) {
	themeID = d2themescatalog.NeutralDefault.ID
	tc := cfg.ThemeConfig
	if tc != nil && tc.Theme != nil {
		themeID = *tc.Theme
	} else if isDark(cfg) {
		themeID = DefaultDarkTheme
	}
	if _, err := findTheme(themeID); err != nil {
		return 0, nil, err
	}

	if tc != nil && tc.DarkTheme != nil {
		if _, err := findTheme(*tc.DarkTheme); err != nil {
			return 0, nil, err
		}
		darkThemeID = tc.DarkTheme
	}
	return themeID, darkThemeID, nil
}

// d2 numbers its dark themes in the 200s.
func themeIsDark(t d2themes.Theme) bool {
	return t.ID >= 200 && t.ID < 300
}

func isDark(cfg *config.Config) bool {
	if tv := cfg.Variables(); tv.IsDark != nil {
		return *tv.IsDark
	}
	return inferDark(cfg)
}

// inferDark looks at a literal canvas background first and falls back to the chosen theme.
func inferDark(cfg *config.Config) bool {
	if bg := cfg.Variables().CanvasBackground; bg != nil {
		if dark, err := color.IsDark(*bg); err == nil {
			return dark
		}
	}
	if cfg.ThemeConfig != nil && cfg.ThemeConfig.Theme != nil {
		theme, err := findTheme(*cfg.ThemeConfig.Theme)
		if err == nil {
			return themeIsDark(theme)
		}
	}
	return false
}

func first(vs ...*string) *string {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

// themeOverrides maps the color roles onto the d2 palette. N1 is the strongest
// neutral and N7 the canvas. B1 strokes borders and connections, B2 to B6 are
// progressively lighter fills. AA and AB are the alternate palettes used by special
// shapes like text notes.
func themeOverrides(tv *config.ThemeVariables) *d2target.ThemeOverrides {
	o := &d2target.ThemeOverrides{
		N1:  first(tv.PrimaryTextColor, tv.TextColor),
		N2:  tv.SecondaryTextColor,
		N3:  tv.TeritaryTextColor,
		N4:  tv.TertiaryBorderColor,
		N5:  tv.SecondaryBorderColor,
		N6:  tv.LightestBackground,
		N7:  tv.CanvasBackground,
		B1:  first(tv.PrimaryBorderColor, tv.LineColor),
		B2:  first(tv.PrimaryLineColor, tv.LineColor),
		B3:  tv.SecondaryLineColor,
		B4:  tv.PrimaryColor,
		B5:  tv.SecondaryColor,
		B6:  tv.TertiaryColor,
		AA2: tv.NoteTextColor,
		AA4: tv.NoteBackground,
		AA5: tv.GroupBackground,
		AB4: tv.Background1,
		AB5: tv.Background1,
	}
	if *o == (d2target.ThemeOverrides{}) {
		return nil
	}
	return o
}
