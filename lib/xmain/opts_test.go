package xmain_test

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oss.terrastruct.com/cmdlog"
	"oss.terrastruct.com/xos"

	"oss.terrastruct.com/d2render/lib/xmain"
)

func newOpts(environ []string, args ...string) *xmain.Opts {
	env := xos.NewEnv(environ)
	return xmain.NewOpts(env, cmdlog.Log(env, io.Discard), args)
}

func TestOptsEnvFallback(t *testing.T) {
	t.Parallel()

	o := newOpts([]string{
		"D2RENDER_PAD=12",
		"D2RENDER_WIDTH=480.5",
		"D2RENDER_TIMEOUT=3",
		"D2RENDER_MINIFY=true",
		"D2RENDER_LAYOUT=elk",
	})
	pad, err := o.Int64("D2RENDER_PAD", "pad", "", 100, "")
	require.NoError(t, err)
	width, err := o.Float64("D2RENDER_WIDTH", "width", "", 0, "")
	require.NoError(t, err)
	timeout, err := o.Duration("D2RENDER_TIMEOUT", "timeout", "", time.Minute, "")
	require.NoError(t, err)
	minify, err := o.Bool("D2RENDER_MINIFY", "minify", "", false, "")
	require.NoError(t, err)
	layout := o.String("D2RENDER_LAYOUT", "layout", "l", "dagre", "")

	require.NoError(t, o.Parse())
	assert.Equal(t, int64(12), *pad)
	assert.Equal(t, 480.5, *width)
	assert.Equal(t, 3*time.Second, *timeout)
	assert.True(t, *minify)
	assert.Equal(t, "elk", *layout)
}

func TestOptsFlagWins(t *testing.T) {
	t.Parallel()

	o := newOpts([]string{"D2RENDER_TIMEOUT=3"}, "--timeout", "250ms", "-l", "dagre", "in.d2")
	timeout, err := o.Duration("D2RENDER_TIMEOUT", "timeout", "", time.Minute, "")
	require.NoError(t, err)
	layout := o.String("D2RENDER_LAYOUT", "layout", "l", "elk", "")

	require.NoError(t, o.Parse())
	assert.Equal(t, 250*time.Millisecond, *timeout)
	assert.Equal(t, "dagre", *layout)
	assert.Equal(t, []string{"in.d2"}, o.Flags.Args())
}

func TestOptsInvalidEnv(t *testing.T) {
	t.Parallel()

	o := newOpts([]string{"D2RENDER_PAD=wide", "D2RENDER_MINIFY=maybe", "D2RENDER_TIMEOUT=soon"})
	_, err := o.Int64("D2RENDER_PAD", "pad", "", 100, "")
	assert.EqualError(t, err, `invalid environment variable D2RENDER_PAD. Expected int64. Found "wide".`)
	_, err = o.Bool("D2RENDER_MINIFY", "minify", "", false, "")
	assert.EqualError(t, err, `invalid environment variable D2RENDER_MINIFY. Expected bool. Found "maybe".`)
	_, err = o.Duration("D2RENDER_TIMEOUT", "timeout", "", 0, "")
	assert.EqualError(t, err, `invalid environment variable D2RENDER_TIMEOUT. Expected duration. Found "soon".`)
}

func TestOptsDefaults(t *testing.T) {
	t.Parallel()

	o := newOpts(nil)
	_ = o.String("D2RENDER_LAYOUT", "layout", "l", "dagre", "the layout engine used")
	_, err := o.Bool("", "debug", "d", false, "print debug logs")
	require.NoError(t, err)

	help := o.Defaults()
	assert.Contains(t, help, "--layout")
	assert.Contains(t, help, "the layout engine used")
	assert.True(t, strings.HasSuffix(help, "- $D2RENDER_LAYOUT"))
}
