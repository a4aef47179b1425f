// Package server exposes a Renderer over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"oss.terrastruct.com/cmdlog"

	"oss.terrastruct.com/d2render"
	"oss.terrastruct.com/d2render/lib/color"
	"oss.terrastruct.com/d2render/lib/version"
	"oss.terrastruct.com/d2render/lib/xhttp"
	"oss.terrastruct.com/d2render/memo"
)

type Server struct {
	log      *cmdlog.Logger
	renderer *d2render.Renderer
	router   chi.Router
}

func New(log *cmdlog.Logger, renderer *d2render.Renderer) *Server {
	s := &Server{
		log:      log,
		renderer: renderer,
	}

	r := chi.NewRouter()
	r.Use(xhttp.WithRequestID)
	r.Method(http.MethodPost, "/render", s.handler(s.handleRender))
	r.Method(http.MethodPost, "/render.svg", s.handler(s.handleRenderSVG))
	r.Method(http.MethodGet, "/stats", s.handler(s.handleStats))
	r.Method(http.MethodGet, "/healthz", s.handler(s.handleHealthz))
	s.router = r
	return s
}

func (s *Server) handler(f xhttp.HandlerFunc) http.Handler {
	return xhttp.HandlerFuncAdapter{Log: s.log, Func: f}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	xhttp.Log(s.log, s.router).ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is done. writeTimeout should exceed the render timeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, writeTimeout time.Duration) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Success.Printf("listening on http://%s", l.Addr())
	srv := xhttp.NewServer(s.log.Warn, writeTimeout, s)
	return xhttp.Serve(ctx, 5*time.Second, srv, l)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) error {
	res, err := s.render(r)
	if err != nil {
		return err
	}
	xhttp.JSON(s.log, w, http.StatusOK, res)
	return nil
}

func (s *Server) handleRenderSVG(w http.ResponseWriter, r *http.Request) error {
	res, err := s.render(r)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write([]byte(res.Value))
	return err
}

func (s *Server) render(r *http.Request) (*d2render.Result, error) {
	var req d2render.Request
	err := xhttp.DecodeJSON(r, &req)
	if err != nil {
		return nil, err
	}
	if req.BackgroundColor != "" {
		if err := color.Validate(req.BackgroundColor); err != nil {
			return nil, xhttp.ErrorWrap(http.StatusBadRequest, err.Error(), err)
		}
	}
	if req.Width < 0 {
		return nil, xhttp.Errorf(http.StatusBadRequest, "width must not be negative", "negative width %v", req.Width)
	}

	var res *d2render.Result
	if r.URL.Query().Get("cache") == "0" {
		res, err = s.renderer.Render(r.Context(), &req)
	} else {
		res, err = s.renderer.RenderMemoized(r.Context(), &req)
	}
	if err != nil {
		return nil, renderError(err)
	}
	return res, nil
}

func renderError(err error) error {
	switch {
	case errors.Is(err, d2render.ErrTimeout):
		return xhttp.ErrorWrap(http.StatusGatewayTimeout, "render timed out", err)
	case errors.Is(err, context.Canceled):
		// 499 is not a standard code so the client, if still there, gets a 503.
		return xhttp.ErrorWrap(http.StatusServiceUnavailable, "render canceled", err)
	default:
		return xhttp.ErrorWrap(http.StatusUnprocessableEntity, err.Error(), err)
	}
}

type statsResponse struct {
	Engine  string     `json:"engine"`
	Version string     `json:"version"`
	Stats   memo.Stats `json:"stats"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) error {
	xhttp.JSON(s.log, w, http.StatusOK, statsResponse{
		Engine:  s.renderer.Engine().Name(),
		Version: version.String(),
		Stats:   s.renderer.Stats(),
	})
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) error {
	xhttp.JSON(s.log, w, http.StatusOK, nil)
	return nil
}
