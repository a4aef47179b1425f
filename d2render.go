// Package d2render turns diagram source into svg markup and memoizes the result by a
// fingerprint of the request.
//
// A Renderer is safe for concurrent use. The package level Render and RenderMemoized
// share a default Renderer backed by the d2 engine and an unbounded in memory store.
package d2render

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"cdr.dev/slog"

	"oss.terrastruct.com/d2render/config"
	"oss.terrastruct.com/d2render/engine"
	"oss.terrastruct.com/d2render/engine/d2engine"
	"oss.terrastruct.com/d2render/lib/env"
	"oss.terrastruct.com/d2render/lib/log"
	"oss.terrastruct.com/d2render/lib/svgmin"
	"oss.terrastruct.com/d2render/lib/version"
	"oss.terrastruct.com/d2render/memo"
	"oss.terrastruct.com/d2render/svgrender"
)

// Request is treated as immutable once handed to a Renderer. Its JSON encoding is the
// memoization key, so field order and names are part of the cache format.
type Request struct {
	Code            string         `json:"code"`
	BackgroundColor string         `json:"backgroundColor,omitempty"`
	ConfigOverrides *config.Config `json:"configOverrides,omitempty"`
	Width           float64        `json:"width,omitempty"`
}

const ResultTypeSVG = "svg"

type Result struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ErrTimeout is returned when a render does not finish within Options.Timeout.
var ErrTimeout = svgrender.ErrTimeout

// DefaultTimeout bounds renders when neither Options.Timeout nor D2RENDER_TIMEOUT is set.
const DefaultTimeout = 2 * time.Minute

type Options struct {
	// Engine defaults to the d2 engine.
	Engine engine.Engine
	// Store defaults to an unbounded memory store.
	Store memo.Store
	// Timeout bounds every render, including shared renders no caller can cancel.
	// Zero falls back to D2RENDER_TIMEOUT and then DefaultTimeout. Negative leaves only
	// the caller's ctx.
	Timeout time.Duration
	// Minify shrinks the markup before it is returned and stored.
	Minify bool
	// ThemeVariables sit under the request's own overrides. Nil means
	// config.CSSThemeVariables so the embedding page controls the palette.
	ThemeVariables *config.ThemeVariables
}

// Namespace fingerprints the settings that shape output without being part of a
// Request. Stores shared between processes are partitioned by it.
func (opts *Options) Namespace() (string, error) {
	if opts == nil {
		opts = &Options{}
	}
	ns := struct {
		Engine         string                `json:"engine"`
		Version        string                `json:"version"`
		Minify         bool                  `json:"minify"`
		ThemeVariables config.ThemeVariables `json:"themeVariables"`
	}{
		Engine:         d2engine.Name,
		Version:        version.Version,
		Minify:         opts.Minify,
		ThemeVariables: config.CSSThemeVariables,
	}
	if opts.Engine != nil {
		ns.Engine = opts.Engine.Name()
	}
	if opts.ThemeVariables != nil {
		ns.ThemeVariables = *opts.ThemeVariables
	}
	key, err := memo.Key(ns)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(key, 36), nil
}

type Renderer struct {
	engine  engine.Engine
	memo    *memo.Memo
	timeout time.Duration
	minify  bool
	vars    config.ThemeVariables
}

func New(opts *Options) *Renderer {
	if opts == nil {
		opts = &Options{}
	}
	r := &Renderer{
		engine:  opts.Engine,
		memo:    memo.New(opts.Store),
		timeout: opts.Timeout,
		minify:  opts.Minify,
		vars:    config.CSSThemeVariables,
	}
	if r.engine == nil {
		r.engine = d2engine.New()
	}
	if opts.ThemeVariables != nil {
		r.vars = *opts.ThemeVariables
	}
	if r.timeout == 0 {
		r.timeout = DefaultTimeout
		if d, ok := env.Timeout(); ok {
			r.timeout = d
		}
	}
	if r.timeout < 0 {
		r.timeout = 0
	}
	return r
}

// Timeout is the bound applied to each render. Zero means unbounded.
func (r *Renderer) Timeout() time.Duration {
	return r.timeout
}

func (r *Renderer) Engine() engine.Engine {
	return r.engine
}

func (r *Renderer) Stats() memo.Stats {
	return r.memo.Stats()
}

// Render renders req without consulting or filling the cache.
// Engine failures are returned as reported by the engine.
func (r *Renderer) Render(ctx context.Context, req *Request) (*Result, error) {
	ctx = log.WithDefault(ctx)
	svg, err := r.render(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Result{Type: ResultTypeSVG, Value: svg}, nil
}

// RenderMemoized returns the stored result for a structurally equal earlier request or
// renders and stores it. Failures are not stored.
func (r *Renderer) RenderMemoized(ctx context.Context, req *Request) (*Result, error) {
	ctx = log.WithDefault(ctx)
	key, err := memo.Key(req)
	if err != nil {
		return nil, err
	}
	svg, err := r.memo.Do(ctx, key, func(ctx context.Context) (string, error) {
		return r.render(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return &Result{Type: ResultTypeSVG, Value: svg}, nil
}

func (r *Renderer) render(ctx context.Context, req *Request) (string, error) {
	if req == nil {
		return "", errors.New("nil request")
	}
	svg, err := svgrender.Render(ctx, r.engine, &svgrender.Options{
		Code:            req.Code,
		BackgroundColor: req.BackgroundColor,
		Config:          r.withThemeVariables(req.ConfigOverrides),
		Width:           req.Width,
		Timeout:         r.timeout,
	})
	if err != nil {
		return "", err
	}
	if r.minify {
		minified, err := svgmin.Minify(svg)
		if err != nil {
			log.Warn(ctx, "failed to minify svg, returning it as is", slog.Error(err))
			return svg, nil
		}
		svg = minified
	}
	return svg, nil
}

// withThemeVariables layers the request overrides on top of the renderer's theme variables.
func (r *Renderer) withThemeVariables(overrides *config.Config) *config.Config {
	vars := r.vars
	base := &config.Config{
		ThemeConfig: &config.ThemeConfig{
			ThemeVariables: &vars,
		},
	}
	return config.Merge(base, overrides)
}

var (
	defaultOnce     sync.Once
	defaultRenderer *Renderer
)

// Default returns the shared Renderer used by the package level functions.
func Default() *Renderer {
	defaultOnce.Do(func() {
		defaultRenderer = New(nil)
	})
	return defaultRenderer
}

func Render(ctx context.Context, req *Request) (*Result, error) {
	return Default().Render(ctx, req)
}

func RenderMemoized(ctx context.Context, req *Request) (*Result, error) {
	return Default().RenderMemoized(ctx, req)
}
