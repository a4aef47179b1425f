// Package enginetest provides a scriptable engine for tests.
package enginetest

import (
	"context"
	"sync"
	"sync/atomic"

	"oss.terrastruct.com/util-go/go2"

	"oss.terrastruct.com/d2render/config"
	"oss.terrastruct.com/d2render/engine"
	"oss.terrastruct.com/d2render/lib/dom"
)

const DefaultSVG = `<svg viewBox="0 0 10 10"><rect width="10" height="10"></rect></svg>`

type Engine struct {
	// SVG is the markup attached to the container. Defaults to DefaultSVG.
	SVG string
	// Err is reported through OnError instead of rendering.
	Err error
	// IRBackground is the background the fake diagram source declares.
	IRBackground string
	// Block holds every render until closed or ctx is done.
	Block chan struct{}
	// Twice fires the completion hook a second time to check single settlement.
	Twice bool
	// Panic makes RenderTo panic with this value instead of settling.
	Panic any

	calls atomic.Int64

	mu   sync.Mutex
	last *Call
}

// Call records what the adapter handed to the engine.
type Call struct {
	Code          string
	Config        *config.Config
	ContainerSize *engine.ContainerSize
	Renderer      engine.RendererKind
	Background    string
}

var _ engine.Engine = &Engine{}

func (e *Engine) Name() string {
	return "fake"
}

func (e *Engine) DefaultConfig() *config.Config {
	return &config.Config{
		Core: &config.Core{
			UseMaxWidth: go2.Pointer(false),
			Layout:      go2.Pointer("fake"),
		},
		ThemeConfig: &config.ThemeConfig{
			ThemeVariables: &config.ThemeVariables{},
		},
	}
}

func (e *Engine) GenerateNewConfig(partial *config.Config) *config.Config {
	return config.Merge(e.DefaultConfig(), partial)
}

func (e *Engine) Calls() int {
	return int(e.calls.Load())
}

func (e *Engine) LastCall() *Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Engine) RenderTo(ctx context.Context, code string, opts *engine.RenderToOptions) {
	e.calls.Add(1)
	call := &Call{
		Code:          code,
		Config:        opts.Config,
		ContainerSize: opts.ContainerSize,
		Renderer:      opts.Renderer,
	}
	defer func() {
		e.mu.Lock()
		e.last = call
		e.mu.Unlock()
	}()

	if e.Block != nil {
		select {
		case <-e.Block:
		case <-ctx.Done():
			opts.OnError(ctx.Err())
			return
		}
	}

	if e.Panic != nil {
		panic(e.Panic)
	}

	if e.Err != nil {
		opts.OnError(e.Err)
		if e.Twice {
			opts.OnError(e.Err)
		}
		return
	}

	var ir engine.GraphicIR = &graphicIR{bg: e.IRBackground}
	if opts.EnhanceGraphicIR != nil {
		ir = opts.EnhanceGraphicIR(ir)
	}
	call.Background = ir.BackgroundColor()

	svg := e.SVG
	if svg == "" {
		svg = DefaultSVG
	}
	err := opts.Container.SetInnerHTML(svg)
	if err != nil {
		opts.OnError(err)
		return
	}
	r := renderer{opts}
	opts.OnRender(r)
	if e.Twice {
		opts.OnError(context.Canceled)
	}
}

type graphicIR struct {
	bg string
}

func (ir *graphicIR) BackgroundColor() string {
	return ir.bg
}

func (ir *graphicIR) SetBackgroundColor(bg string) {
	ir.bg = bg
}

type renderer struct {
	opts *engine.RenderToOptions
}

func (r renderer) RootElement() *dom.Element {
	return r.opts.Container.QuerySelector("svg")
}
