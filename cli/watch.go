package cli

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"oss.terrastruct.com/d2render"
	"oss.terrastruct.com/d2render/lib/xbrowser"
	"oss.terrastruct.com/d2render/lib/xhttp"
	"oss.terrastruct.com/d2render/lib/xmain"
)

//go:embed static
var staticFS embed.FS

const (
	// Saves often arrive as several events. A render starts once events stop for this long.
	settleDelay = 16 * time.Millisecond
	// fsnotify can drop events so modification times are also compared on this interval.
	pollInterval = 10 * time.Second
	maxRetryWait = 16 * time.Second
)

type watcherOpts struct {
	host       string
	port       string
	inputPath  string
	outputPath string
	// req carries everything but the code, which is read from inputPath on every compile.
	req *d2render.Request
}

// watcher re-renders inputPath whenever it changes and pushes each result to the
// browsers connected to its live reload page.
type watcher struct {
	watcherOpts

	ctx    context.Context
	cancel context.CancelFunc

	ms       *xmain.State
	renderer *d2render.Renderer

	fw      *fsnotify.Watcher
	l       net.Listener
	static  http.Handler
	hub     *hub
	renders chan struct{}
}

func newWatcher(ctx context.Context, ms *xmain.State, renderer *d2render.Renderer, opts watcherOpts) (*watcher, error) {
	sfs, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	l, err := net.Listen("tcp", net.JoinHostPort(opts.host, opts.port))
	if err != nil {
		fw.Close()
		return nil, err
	}
	ms.Log.Success.Printf("listening on http://%v", l.Addr())

	ctx, cancel := context.WithCancel(ctx)
	return &watcher{
		watcherOpts: opts,
		ctx:         ctx,
		cancel:      cancel,
		ms:          ms,
		renderer:    renderer,
		fw:          fw,
		l:           l,
		static:      http.FileServer(http.FS(sfs)),
		hub:         newHub(),
		renders:     make(chan struct{}, 1),
	}, nil
}

// run blocks until the parent context is canceled or a loop fails.
func (w *watcher) run() error {
	defer w.fw.Close()

	s := xhttp.NewServer(w.ms.Log.Warn, 0, xhttp.Log(w.ms.Log, w.routes()))
	g, ctx := errgroup.WithContext(w.ctx)
	g.Go(func() error {
		return w.watchLoop(ctx)
	})
	g.Go(func() error {
		return w.renderLoop(ctx)
	})
	g.Go(func() error {
		return xhttp.Serve(ctx, 30*time.Second, s, w.l)
	})
	err := g.Wait()

	w.cancel()
	w.hub.shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *watcher) requestRender() {
	select {
	case w.renders <- struct{}{}:
	default:
	}
}

func (w *watcher) watchLoop(ctx context.Context) error {
	mtimes := make(map[string]time.Time)
	mt, err := w.watchPath(ctx, w.inputPath)
	if err != nil {
		return err
	}
	mtimes[w.inputPath] = mt
	w.ms.Log.Info.Printf("compiling %v...", w.ms.HumanPath(w.inputPath))
	w.requestRender()

	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	pending := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fw.Events:
			if !ok {
				return errors.New("fsnotify watcher closed")
			}
			w.ms.Log.Debug.Printf("file system event %v", ev)
			mt, err := w.watchPath(ctx, ev.Name)
			if err != nil {
				return err
			}
			// Chmod without a content change, see https://github.com/fsnotify/fsnotify/issues/15
			if ev.Op == fsnotify.Chmod && mt.Equal(mtimes[ev.Name]) {
				continue
			}
			mtimes[ev.Name] = mt
			pending[ev.Name] = struct{}{}
			settle.Reset(settleDelay)

		case <-settle.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, w.ms.HumanPath(p))
			}
			clear(pending)
			sort.Strings(paths)
			w.ms.Log.Info.Printf("detected change in %s: recompiling...", strings.Join(paths, ", "))
			w.requestRender()

		case <-poll.C:
			stale := false
			for _, p := range w.fw.WatchList() {
				mt, err := w.watchPath(ctx, p)
				if err != nil {
					return err
				}
				if prev, ok := mtimes[p]; !ok || !prev.Equal(mt) {
					mtimes[p] = mt
					stale = true
				}
			}
			if stale {
				w.requestRender()
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return errors.New("fsnotify watcher closed")
			}
			w.ms.Log.Error.Printf("fsnotify error: %v", err)
		}
	}
}

// watchPath (re)adds path to the watch list and returns its modification time.
// Editors may replace the file on save so failures are retried with backoff.
func (w *watcher) watchPath(ctx context.Context, path string) (time.Time, error) {
	wait := settleDelay
	for {
		err := w.fw.Add(path)
		if err == nil {
			var fi os.FileInfo
			fi, err = os.Stat(path)
			if err == nil {
				return fi.ModTime(), nil
			}
		}
		if wait >= time.Second {
			w.ms.Log.Error.Printf("failed to watch %q: %v (retrying in %v)", w.ms.HumanPath(path), err, wait)
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		}
		wait = min(max(wait*2, time.Second), maxRetryWait)
	}
}

func (w *watcher) renderLoop(ctx context.Context) error {
	for n := 0; ; n++ {
		select {
		case <-w.renders:
		case <-ctx.Done():
			return ctx.Err()
		}

		svg, err := compile(ctx, w.ms, w.renderer, w.req, w.inputPath, w.outputPath)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res := &compileResult{SVG: string(svg)}
		if err != nil {
			verb := "compile"
			if n > 0 {
				verb = "recompile"
			}
			res.Err = fmt.Sprintf("failed to %s: %v", verb, err)
			w.ms.Log.Error.Print(res.Err)
		}
		clients := w.hub.publish(res)
		w.ms.Log.Debug.Printf("pushed update to %d live reload client(s)", clients)

		if n == 0 {
			url := fmt.Sprintf("http://%s", w.l.Addr())
			err = xbrowser.Open(ctx, w.ms.Env, url)
			if err != nil && !errors.Is(err, xbrowser.ErrDisabled) {
				w.ms.Log.Warn.Printf("failed to open browser to %v: %v", url, err)
			}
		}
	}
}

func (w *watcher) routes() http.Handler {
	m := http.NewServeMux()
	m.HandleFunc("/", w.handleIndex)
	m.Handle("/static/", http.StripPrefix("/static", w.static))
	m.Handle("/watch", xhttp.HandlerFuncAdapter{Log: w.ms.Log, Func: w.handleWatch})
	return m
}

func (w *watcher) handleIndex(rw http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(rw, r)
		return
	}
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(rw, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>%s</title>
	<script src="/static/watch.js"></script>
	<link rel="stylesheet" href="/static/watch.css">
</head>
<body>
	<div id="d2render-err" style="display: none"></div>
	<div id="d2render-svg-container"></div>
</body>
</html>`, filepath.Base(w.outputPath))
}
