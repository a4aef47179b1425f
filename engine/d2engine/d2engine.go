// Package d2engine renders D2 source through the d2 compiler, layout engines and svg renderer.
package d2engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"oss.terrastruct.com/d2/d2graph"
	"oss.terrastruct.com/d2/d2layouts/d2dagrelayout"
	"oss.terrastruct.com/d2/d2layouts/d2elklayout"
	"oss.terrastruct.com/d2/d2lib"
	"oss.terrastruct.com/d2/d2renderers/d2svg"
	"oss.terrastruct.com/d2/d2target"
	d2log "oss.terrastruct.com/d2/lib/log"
	"oss.terrastruct.com/d2/lib/textmeasure"
	"oss.terrastruct.com/util-go/go2"

	"oss.terrastruct.com/d2render/config"
	"oss.terrastruct.com/d2render/engine"
	"oss.terrastruct.com/d2render/lib/dom"
	"oss.terrastruct.com/d2render/lib/log"
)

const Name = "d2"

const DefaultLayout = "dagre"

// Layouts lists the bundled layout engines.
var Layouts = []string{"dagre", "elk"}

func init() {
	engine.Register(New())
}

type Engine struct{}

var _ engine.Engine = &Engine{}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) Name() string {
	return Name
}

func (e *Engine) DefaultConfig() *config.Config {
	return &config.Config{
		Core: &config.Core{
			UseMaxWidth: go2.Pointer(false),
			Layout:      go2.Pointer(DefaultLayout),
			Pad:         go2.Pointer(int64(d2svg.DEFAULT_PADDING)),
			Center:      go2.Pointer(false),
			Sketch:      go2.Pointer(false),
		},
		ThemeConfig: &config.ThemeConfig{
			ThemeVariables: &config.ThemeVariables{},
		},
	}
}

// GenerateNewConfig merges partial onto the defaults and settles isDark when the
// caller left it unset.
func (e *Engine) GenerateNewConfig(partial *config.Config) *config.Config {
	cfg := config.Merge(e.DefaultConfig(), partial)
	tv := cfg.Variables()
	if tv.IsDark == nil {
		isDark := inferDark(cfg)
		if cfg.ThemeConfig == nil {
			cfg.ThemeConfig = &config.ThemeConfig{}
		}
		if cfg.ThemeConfig.ThemeVariables == nil {
			cfg.ThemeConfig.ThemeVariables = tv
		}
		cfg.ThemeConfig.ThemeVariables.IsDark = &isDark
	}
	return cfg
}

func (e *Engine) RenderTo(ctx context.Context, code string, opts *engine.RenderToOptions) {
	root, err := e.renderTo(ctx, code, opts)
	if err != nil {
		opts.OnError(err)
		return
	}
	opts.OnRender(renderer{root: root})
}

func (e *Engine) renderTo(ctx context.Context, code string, opts *engine.RenderToOptions) (*dom.Element, error) {
	if opts.Renderer != "" && opts.Renderer != engine.SVG {
		return nil, fmt.Errorf("d2 cannot render to %q", opts.Renderer)
	}
	if opts.Container == nil {
		return nil, errors.New("missing container")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = e.DefaultConfig()
	}

	svg, err := e.render(ctx, code, cfg, opts)
	if err != nil {
		return nil, err
	}

	err = opts.Container.SetInnerHTML(string(svg))
	if err != nil {
		return nil, err
	}
	root := opts.Container.QuerySelector("svg")
	if root == nil {
		return nil, errors.New("d2 produced no svg element")
	}
	if cfg.UseMaxWidth() {
		var width float64
		if opts.ContainerSize != nil {
			width = opts.ContainerSize.Width
		}
		applyMaxWidth(root, width)
	}
	return root, nil
}

func (e *Engine) render(ctx context.Context, code string, cfg *config.Config, opts *engine.RenderToOptions) ([]byte, error) {
	themeID, darkThemeID, err := resolveThemes(cfg)
	if err != nil {
		return nil, err
	}

	ruler, err := textmeasure.NewRuler()
	if err != nil {
		return nil, err
	}

	layout := DefaultLayout
	pad := int64(d2svg.DEFAULT_PADDING)
	renderOpts := &d2svg.RenderOpts{
		ThemeID:        &themeID,
		DarkThemeID:    darkThemeID,
		ThemeOverrides: themeOverrides(cfg.Variables()),
		NoXMLTag:       go2.Pointer(true),
		OmitVersion:    go2.Pointer(true),
	}
	if core := cfg.Core; core != nil {
		if core.Layout != nil {
			layout = *core.Layout
		}
		if core.Pad != nil {
			pad = *core.Pad
		}
		renderOpts.Sketch = core.Sketch
		renderOpts.Center = core.Center
	}
	renderOpts.Pad = &pad

	compileOpts := &d2lib.CompileOptions{
		Ruler:          ruler,
		LayoutResolver: resolveLayout,
		Layout:         &layout,
	}

	log.Debug(ctx, "compiling d2")
	diagram, _, err := d2lib.Compile(d2log.WithDefault(ctx), code, compileOpts, renderOpts)
	if err != nil {
		return nil, err
	}

	var ir engine.GraphicIR = graphicIR{diagram}
	if opts.EnhanceGraphicIR != nil {
		enhanced := opts.EnhanceGraphicIR(ir)
		if enhanced != nil && enhanced != ir {
			ir.SetBackgroundColor(enhanced.BackgroundColor())
		}
	}

	if opts.ContainerSize != nil && opts.ContainerSize.Width > 0 {
		renderOpts.Scale = go2.Pointer(scaleTo(diagram, *renderOpts.Pad, opts.ContainerSize.Width))
	}

	return d2svg.Render(diagram, renderOpts)
}

func resolveLayout(name string) (d2graph.LayoutGraph, error) {
	switch name {
	case "dagre":
		return d2dagrelayout.DefaultLayout, nil
	case "elk":
		return d2elklayout.DefaultLayout, nil
	default:
		return nil, fmt.Errorf("layout engine %q not found, available: %s", name, strings.Join(Layouts, ", "))
	}
}

// scaleTo returns the factor that makes the padded diagram width match width.
func scaleTo(diagram *d2target.Diagram, pad int64, width float64) float64 {
	tl, br := diagram.BoundingBox()
	natural := float64(br.X-tl.X) + 2*float64(pad)
	if natural <= 0 {
		return 1
	}
	return width / natural
}

// applyMaxWidth lets root shrink with its container while never growing past width.
// Without a width the natural width from the viewBox is used.
func applyMaxWidth(root *dom.Element, width float64) {
	if width <= 0 {
		width = viewBoxWidth(root)
	}
	root.SetAttribute("width", "100%")
	root.RemoveAttribute("height")
	if width > 0 {
		root.SetAttribute("style", fmt.Sprintf("max-width: %spx;", strconv.FormatFloat(width, 'f', -1, 64)))
	}
}

func viewBoxWidth(root *dom.Element) float64 {
	vb, ok := root.Attribute("viewBox")
	if !ok {
		return 0
	}
	fields := strings.Fields(vb)
	if len(fields) != 4 {
		return 0
	}
	w, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0
	}
	return w
}

// graphicIR exposes the root fill of the compiled diagram.
// d2 fills the root with the themable N7 unless the source sets style.fill.
type graphicIR struct {
	diagram *d2target.Diagram
}

func (ir graphicIR) BackgroundColor() string {
	fill := ir.diagram.Root.Fill
	if fill == d2target.BG_COLOR {
		return ""
	}
	return fill
}

func (ir graphicIR) SetBackgroundColor(c string) {
	ir.diagram.Root.Fill = c
}

type renderer struct {
	root *dom.Element
}

func (r renderer) RootElement() *dom.Element {
	return r.root
}
