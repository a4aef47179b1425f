package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"oss.terrastruct.com/cmdlog"
	"oss.terrastruct.com/util-go/assert"
	"oss.terrastruct.com/xos"

	"oss.terrastruct.com/d2render"
	"oss.terrastruct.com/d2render/engine/enginetest"
	"oss.terrastruct.com/d2render/lib/xmain"
)

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error {
	return nil
}

func TestWatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "w.d2")
	outputPath := filepath.Join(dir, "w.svg")
	assert.WriteFile(t, inputPath, []byte("x -> y"), 0644)

	env := xos.NewEnv([]string{"BROWSER=0"})
	ms := &xmain.State{
		Name:   "d2render",
		Stdout: nopCloser{io.Discard},
		Stderr: nopCloser{io.Discard},
		Env:    env,
		Log:    cmdlog.Log(env, io.Discard),
		PWD:    dir,
	}

	e := &enginetest.Engine{}
	renderer := d2render.New(&d2render.Options{Engine: e})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	w, err := newWatcher(ctx, ms, renderer, watcherOpts{
		host:       "localhost",
		port:       "0",
		inputPath:  inputPath,
		outputPath: outputPath,
		req:        &d2render.Request{},
	})
	assert.Success(t, err)

	done := make(chan error, 1)
	go func() {
		done <- w.run()
	}()

	addr := w.l.Addr().String()
	c, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/watch", addr), nil)
	assert.Success(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	var res compileResult
	assert.Success(t, wsjson.Read(ctx, c, &res))
	assert.Equal(t, "", res.Err)
	assert.True(t, strings.HasPrefix(res.SVG, "<svg"))
	assert.Equal(t, res.SVG, string(assert.ReadFile(t, outputPath)))
	assert.Equal(t, "x -> y", e.LastCall().Code)

	assert.WriteFile(t, inputPath, []byte("x -> z"), 0644)
	for e.LastCall().Code != "x -> z" {
		assert.Success(t, wsjson.Read(ctx, c, &res))
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/", addr))
	assert.Success(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Success(t, err)
	assert.True(t, bytes.Contains(body, []byte("<title>w.svg</title>")))

	resp, err = http.Get(fmt.Sprintf("http://%s/static/watch.js", addr))
	assert.Success(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	c.CloseNow()
	cancel()
	assert.Success(t, <-done)
	_, err = os.Stat(outputPath)
	assert.Success(t, err)
}

func TestHub(t *testing.T) {
	t.Parallel()

	h := newHub()
	assert.Equal(t, 0, h.publish(&compileResult{SVG: "<svg>1</svg>"}))

	ch, ok := h.subscribe()
	assert.True(t, ok)
	assert.Equal(t, "<svg>1</svg>", (<-ch).SVG)

	// A slow client only sees the newest result.
	assert.Equal(t, 1, h.publish(&compileResult{SVG: "<svg>2</svg>"}))
	assert.Equal(t, 1, h.publish(&compileResult{Err: "failed to recompile"}))
	res := <-ch
	assert.Equal(t, "failed to recompile", res.Err)
	select {
	case <-ch:
		t.Fatal("expected stale results to be dropped")
	default:
	}

	h.unsubscribe(ch)
	h.shutdown()
	_, ok = h.subscribe()
	assert.False(t, ok)
}
