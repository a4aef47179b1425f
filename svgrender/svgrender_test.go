package svgrender_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cdr.dev/slog/sloggers/slogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oss.terrastruct.com/util-go/go2"

	"oss.terrastruct.com/d2render/config"
	"oss.terrastruct.com/d2render/engine/enginetest"
	"oss.terrastruct.com/d2render/lib/log"
	"oss.terrastruct.com/d2render/svgrender"
)

func testCtx(t *testing.T) context.Context {
	return log.WithTB(context.Background(), t, &slogtest.Options{IgnoreErrors: true})
}

func TestRenderStampsNamespace(t *testing.T) {
	t.Parallel()

	e := &enginetest.Engine{}
	svg, err := svgrender.Render(testCtx(t), e, &svgrender.Options{Code: "a -> b"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(svg, "<svg"))
	assert.Contains(t, svg, `xmlns="http://www.w3.org/2000/svg"`)
	assert.Equal(t, 1, strings.Count(svg, `xmlns="`))
	assert.Equal(t, "a -> b", e.LastCall().Code)
	assert.Equal(t, "svg", string(e.LastCall().Renderer))
}

func TestRenderBackground(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		irBg     string
		explicit string
		vars     *config.ThemeVariables
		exp      string
	}{
		{
			name: "light_default",
			exp:  "#FFFFFF",
		},
		{
			name: "dark",
			vars: &config.ThemeVariables{IsDark: go2.Pointer(true)},
			exp:  "#282A36",
		},
		{
			name: "canvas_background",
			vars: &config.ThemeVariables{
				IsDark:           go2.Pointer(true),
				CanvasBackground: go2.Pointer("rgb(var(--canvasBackground))"),
			},
			exp: "rgb(var(--canvasBackground))",
		},
		{
			name:     "explicit_wins",
			explicit: "#000000",
			vars: &config.ThemeVariables{
				IsDark:           go2.Pointer(true),
				CanvasBackground: go2.Pointer("#123456"),
			},
			exp: "#000000",
		},
		{
			name:     "source_declared",
			irBg:     "honeydew",
			explicit: "#000000",
			exp:      "honeydew",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := &enginetest.Engine{IRBackground: tc.irBg}
			opts := &svgrender.Options{
				Code:            "x",
				BackgroundColor: tc.explicit,
			}
			if tc.vars != nil {
				opts.Config = &config.Config{ThemeConfig: &config.ThemeConfig{ThemeVariables: tc.vars}}
			}
			_, err := svgrender.Render(testCtx(t), e, opts)
			require.NoError(t, err)
			assert.Equal(t, tc.exp, e.LastCall().Background)
		})
	}
}

func TestResolveBackground(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "#FFFFFF", svgrender.ResolveBackground("", nil))
	assert.Equal(t, "#FFFFFF", svgrender.ResolveBackground("", &config.ThemeVariables{IsDark: go2.Pointer(false)}))
	assert.Equal(t, "#282A36", svgrender.ResolveBackground("", &config.ThemeVariables{IsDark: go2.Pointer(true)}))
	assert.Equal(t, "red", svgrender.ResolveBackground("red", &config.ThemeVariables{IsDark: go2.Pointer(true)}))
}

func TestRenderWidth(t *testing.T) {
	t.Parallel()

	t.Run("forces_use_max_width", func(t *testing.T) {
		t.Parallel()

		e := &enginetest.Engine{}
		_, err := svgrender.Render(testCtx(t), e, &svgrender.Options{
			Code:  "x",
			Width: 400,
			Config: &config.Config{
				Core: &config.Core{
					UseMaxWidth: go2.Pointer(false),
					Sketch:      go2.Pointer(true),
				},
				ThemeConfig: &config.ThemeConfig{ThemeVariables: &config.ThemeVariables{
					PrimaryColor: go2.Pointer("red"),
				}},
			},
		})
		require.NoError(t, err)

		call := e.LastCall()
		require.NotNil(t, call.ContainerSize)
		assert.Equal(t, 400.0, call.ContainerSize.Width)
		assert.True(t, call.Config.UseMaxWidth())
		assert.True(t, *call.Config.Core.Sketch)
		assert.Equal(t, "red", *call.Config.Variables().PrimaryColor)
	})

	t.Run("no_width", func(t *testing.T) {
		t.Parallel()

		e := &enginetest.Engine{}
		_, err := svgrender.Render(testCtx(t), e, &svgrender.Options{
			Code: "x",
			Config: &config.Config{Core: &config.Core{
				UseMaxWidth: go2.Pointer(true),
			}},
		})
		require.NoError(t, err)

		call := e.LastCall()
		assert.Nil(t, call.ContainerSize)
		assert.True(t, call.Config.UseMaxWidth())
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		e := &enginetest.Engine{}
		cfg := svgrender.ResolveConfig(e, nil, 0)
		assert.Equal(t, e.DefaultConfig(), cfg)

		cfg = svgrender.ResolveConfig(e, nil, 10)
		assert.True(t, cfg.UseMaxWidth())
		assert.Equal(t, "fake", *cfg.Core.Layout)
	})
}

func TestRenderErrorVerbatim(t *testing.T) {
	t.Parallel()

	engineErr := errors.New("parse error: unexpected '{'")
	e := &enginetest.Engine{Err: engineErr}
	svg, err := svgrender.Render(testCtx(t), e, &svgrender.Options{Code: "a -> {"})
	assert.Empty(t, svg)
	assert.True(t, err == engineErr)
}

func TestRenderEnginePanic(t *testing.T) {
	t.Parallel()

	e := &enginetest.Engine{Panic: "layout exploded"}
	svg, err := svgrender.Render(testCtx(t), e, &svgrender.Options{Code: "x", Timeout: time.Minute})
	assert.Empty(t, svg)
	require.Error(t, err)
	assert.Equal(t, "engine fake panicked: layout exploded", err.Error())
	assert.False(t, errors.Is(err, svgrender.ErrTimeout))
}

func TestRenderSettlesOnce(t *testing.T) {
	t.Parallel()

	e := &enginetest.Engine{Twice: true}
	svg, err := svgrender.Render(testCtx(t), e, &svgrender.Options{Code: "x"})
	require.NoError(t, err)
	assert.NotEmpty(t, svg)

	engineErr := errors.New("boom")
	e = &enginetest.Engine{Err: engineErr, Twice: true}
	_, err = svgrender.Render(testCtx(t), e, &svgrender.Options{Code: "x"})
	assert.True(t, err == engineErr)
}

func TestRenderTimeout(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	defer close(block)
	e := &enginetest.Engine{Block: block}

	_, err := svgrender.Render(testCtx(t), e, &svgrender.Options{
		Code:    "x",
		Timeout: 20 * time.Millisecond,
	})
	assert.ErrorIs(t, err, svgrender.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRenderCanceled(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	defer close(block)
	e := &enginetest.Engine{Block: block}

	ctx, cancel := context.WithCancel(testCtx(t))
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := svgrender.Render(ctx, e, &svgrender.Options{Code: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, svgrender.ErrTimeout)
}

func TestRenderConcurrentDocuments(t *testing.T) {
	t.Parallel()

	ctx := testCtx(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := &enginetest.Engine{SVG: `<svg id="d` + string(rune('a'+i)) + `"></svg>`}
			svg, err := svgrender.Render(ctx, e, &svgrender.Options{Code: "x"})
			assert.NoError(t, err)
			assert.Contains(t, svg, `id="d`+string(rune('a'+i))+`"`)
		}()
	}
	wg.Wait()
}
