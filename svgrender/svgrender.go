// Package svgrender drives a diagram engine inside a throwaway headless document and
// returns the markup of the root svg element.
package svgrender

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"cdr.dev/slog"
	"oss.terrastruct.com/util-go/go2"

	"oss.terrastruct.com/d2render/config"
	"oss.terrastruct.com/d2render/engine"
	"oss.terrastruct.com/d2render/lib/dom"
	"oss.terrastruct.com/d2render/lib/log"
)

const XMLNS = "http://www.w3.org/2000/svg"

// Fallback canvas colors when neither the request nor the theme variables pick one.
const (
	DefaultLightBackground = "#FFFFFF"
	DefaultDarkBackground  = "#282A36"
)

// ErrTimeout is returned when the engine does not settle before the deadline.
var ErrTimeout = errors.New("render timed out")

type Options struct {
	Code string
	// BackgroundColor wins over any theme derived background.
	BackgroundColor string
	Config          *config.Config
	// Width in pixels of the container the svg is sized for. Zero leaves the natural size.
	Width float64
	// Timeout bounds the render on top of any ctx deadline. Zero means no extra bound.
	Timeout time.Duration
}

// Render returns the serialized root svg element with the svg namespace set.
// Errors reported by the engine are returned unchanged.
func Render(ctx context.Context, e engine.Engine, opts *Options) (string, error) {
	doc, err := dom.NewDocument()
	if err != nil {
		return "", err
	}
	container := doc.CreateElement("div")

	cfg := ResolveConfig(e, opts.Config, opts.Width)
	var containerSize *engine.ContainerSize
	if opts.Width > 0 {
		containerSize = &engine.ContainerSize{Width: opts.Width}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	s := newSettler()
	start := time.Now()
	rto := &engine.RenderToOptions{
		Container:     container,
		Renderer:      engine.SVG,
		ContainerSize: containerSize,
		Config:        cfg,
		EnhanceGraphicIR: func(ir engine.GraphicIR) engine.GraphicIR {
			if ir.BackgroundColor() == "" {
				ir.SetBackgroundColor(ResolveBackground(opts.BackgroundColor, cfg.Variables()))
			}
			return ir
		},
		OnRender: func(r engine.Renderer) {
			s.settle(serialize(r))
		},
		OnError: func(err error) {
			s.settle("", err)
		},
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error(ctx, "engine panicked", slog.F("engine", e.Name()), slog.F("panic", r), slog.F("stack", string(debug.Stack())))
				s.settle("", fmt.Errorf("engine %s panicked: %v", e.Name(), r))
			}
		}()
		e.RenderTo(ctx, opts.Code, rto)
	}()

	select {
	case res := <-s.done:
		if res.err != nil && ctx.Err() != nil {
			// Engines that watch ctx fail with its error once it is done.
			return "", interrupted(ctx, start)
		}
		if res.err == nil {
			log.Debug(ctx, "rendered", slog.F("engine", e.Name()), slog.F("duration", time.Since(start)))
		}
		return res.svg, res.err
	case <-ctx.Done():
		// The engine may still settle later. The buffered channel absorbs it and the
		// document is dropped with this frame.
		return "", interrupted(ctx, start)
	}
}

func interrupted(ctx context.Context, start time.Time) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v: %w", ErrTimeout, time.Since(start).Round(time.Millisecond), ctx.Err())
	}
	return ctx.Err()
}

// ResolveConfig builds the configuration handed to the engine.
//
// overrides are deep merged onto the engine defaults. A positive width then forces
// core.useMaxWidth on top of that result, so the caller's other overrides survive and
// useMaxWidth is true whatever the overrides said.
func ResolveConfig(e engine.Engine, overrides *config.Config, width float64) *config.Config {
	var cfg *config.Config
	if overrides != nil {
		cfg = e.GenerateNewConfig(overrides)
	} else {
		cfg = e.DefaultConfig()
	}
	if width > 0 {
		cfg = config.Merge(cfg, &config.Config{
			Core: &config.Core{
				UseMaxWidth: go2.Pointer(true),
			},
		})
	}
	return cfg
}

// ResolveBackground picks the canvas color for a diagram that did not declare one:
// the explicit color, then the canvasBackground variable, then the default for the
// theme's darkness.
func ResolveBackground(explicit string, tv *config.ThemeVariables) string {
	if explicit != "" {
		return explicit
	}
	if tv == nil {
		return DefaultLightBackground
	}
	if tv.CanvasBackground != nil && *tv.CanvasBackground != "" {
		return *tv.CanvasBackground
	}
	if tv.IsDark != nil && *tv.IsDark {
		return DefaultDarkBackground
	}
	return DefaultLightBackground
}

func serialize(r engine.Renderer) (string, error) {
	root := r.RootElement()
	if root == nil {
		return "", errors.New("render produced no root element")
	}
	root.SetAttribute("xmlns", XMLNS)
	return root.OuterHTML()
}

type result struct {
	svg string
	err error
}

// settler keeps the first outcome reported by the engine and ignores the rest.
type settler struct {
	once sync.Once
	done chan result
}

func newSettler() *settler {
	return &settler{
		done: make(chan result, 1),
	}
}

func (s *settler) settle(svg string, err error) {
	s.once.Do(func() {
		s.done <- result{svg: svg, err: err}
	})
}
