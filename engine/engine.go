// Package engine defines the contract between the render adapter and a diagram engine.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"oss.terrastruct.com/d2render/config"
	"oss.terrastruct.com/d2render/lib/dom"
)

type RendererKind string

const SVG RendererKind = "svg"

type ContainerSize struct {
	Width float64 `json:"width"`
}

// GraphicIR is the laid out diagram right before it is drawn.
type GraphicIR interface {
	// BackgroundColor is empty unless the diagram source set one explicitly.
	BackgroundColor() string
	SetBackgroundColor(string)
}

// Renderer is handed to OnRender once the output is attached to the container.
type Renderer interface {
	RootElement() *dom.Element
}

type RenderToOptions struct {
	// Container receives the rendered markup as children.
	Container     *dom.Element
	Renderer      RendererKind
	ContainerSize *ContainerSize
	Config        *config.Config

	EnhanceGraphicIR func(GraphicIR) GraphicIR
	OnRender         func(Renderer)
	OnError          func(error)
}

// Engine draws diagram source into a container.
//
// RenderTo reports its outcome through exactly one of OnRender or OnError and may do so
// from any goroutine.
type Engine interface {
	Name() string
	DefaultConfig() *config.Config
	// GenerateNewConfig deep merges partial onto the default configuration.
	GenerateNewConfig(partial *config.Config) *config.Config
	RenderTo(ctx context.Context, code string, opts *RenderToOptions)
}

var (
	mu      sync.RWMutex
	engines = map[string]Engine{}
)

// Register makes e available through Find. Bundled engines register in init.
func Register(e Engine) {
	mu.Lock()
	defer mu.Unlock()
	engines[e.Name()] = e
}

func Find(name string) (Engine, error) {
	mu.RLock()
	defer mu.RUnlock()
	e, ok := engines[name]
	if !ok {
		return nil, fmt.Errorf("engine %q not found, available: %s", name, strings.Join(listLocked(), ", "))
	}
	return e, nil
}

func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	return listLocked()
}

func listLocked() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
