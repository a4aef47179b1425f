// Package cli implements the d2render command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cdr.dev/slog"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"oss.terrastruct.com/util-go/go2"

	"oss.terrastruct.com/d2render"
	"oss.terrastruct.com/d2render/config"
	"oss.terrastruct.com/d2render/engine"
	"oss.terrastruct.com/d2render/engine/d2engine"
	"oss.terrastruct.com/d2render/lib/background"
	"oss.terrastruct.com/d2render/lib/color"
	"oss.terrastruct.com/d2render/lib/log"
	"oss.terrastruct.com/d2render/lib/version"
	"oss.terrastruct.com/d2render/lib/xmain"
	"oss.terrastruct.com/d2render/memo"
	"oss.terrastruct.com/d2render/server"
)

func Run(ctx context.Context, ms *xmain.State) (err error) {
	ctx = log.WithDefault(ctx)
	// These should be kept up-to-date with help.
	watchFlag, err := ms.Opts.Bool("D2RENDER_WATCH", "watch", "w", false, "watch for changes to input and live reload. Use $HOST and $PORT to specify the listening address.\n(default localhost:0, which will open on a randomly available local port).")
	if err != nil {
		return err
	}
	hostFlag := ms.Opts.String("HOST", "host", "h", "localhost", "host listening address when used with watch or serve")
	portFlag := ms.Opts.String("PORT", "port", "p", "0", "port listening address when used with watch or serve")
	debugFlag, err := ms.Opts.Bool("DEBUG", "debug", "d", false, "print debug logs.")
	if err != nil {
		ms.Log.Warn.Printf("Invalid DEBUG flag value ignored")
		debugFlag = go2.Pointer(false)
	}
	engineFlag := ms.Opts.String("D2RENDER_ENGINE", "engine", "", d2engine.Name, fmt.Sprintf("the diagram engine, one of %s", strings.Join(engine.List(), ", ")))
	layoutFlag := ms.Opts.String("D2RENDER_LAYOUT", "layout", "l", d2engine.DefaultLayout, fmt.Sprintf("the layout engine used, one of %s", strings.Join(d2engine.Layouts, ", ")))
	themeFlag, err := ms.Opts.Int64("D2RENDER_THEME", "theme", "t", 0, "the diagram theme ID")
	if err != nil {
		return err
	}
	darkThemeFlag, err := ms.Opts.Int64("D2RENDER_DARK_THEME", "dark-theme", "", -1, "the theme to use when the viewer's browser is in dark mode. When left unset -theme is used for both light and dark mode.")
	if err != nil {
		return err
	}
	padFlag, err := ms.Opts.Int64("D2RENDER_PAD", "pad", "", 100, "pixels padded around the rendered diagram")
	if err != nil {
		return err
	}
	widthFlag, err := ms.Opts.Float64("D2RENDER_WIDTH", "width", "", 0, "container width in pixels. When set the svg fills its container up to its natural width.")
	if err != nil {
		return err
	}
	bgFlag := ms.Opts.String("D2RENDER_BG", "bg", "", "", "background color of the svg, e.g. #1e1e2e. Defaults to the theme's canvas background.")
	darkFlag, err := ms.Opts.Bool("D2RENDER_DARK", "dark", "", false, "render with a dark palette and background")
	if err != nil {
		return err
	}
	sketchFlag, err := ms.Opts.Bool("D2RENDER_SKETCH", "sketch", "s", false, "render the diagram to look like it was sketched by hand")
	if err != nil {
		return err
	}
	centerFlag, err := ms.Opts.Bool("D2RENDER_CENTER", "center", "", false, "center the SVG in the containing viewbox")
	if err != nil {
		return err
	}
	configFlag := ms.Opts.String("D2RENDER_CONFIG", "config", "c", "", "path to a YAML or JSON file of config overrides. Flags take precedence over the file.")
	timeoutFlag, err := ms.Opts.Duration("D2RENDER_TIMEOUT", "timeout", "", d2render.DefaultTimeout, "the maximum time a single render may take. Plain integers are seconds.")
	if err != nil {
		return err
	}
	minifyFlag, err := ms.Opts.Bool("D2RENDER_MINIFY", "minify", "", false, "minify the output svg")
	if err != nil {
		return err
	}
	cacheFlag := ms.Opts.String("D2RENDER_CACHE", "cache", "", memo.StoreMemory, fmt.Sprintf("render cache used by watch and serve, one of %s, %s, %s", memo.StoreMemory, memo.StoreLRU, memo.StoreRedis))
	cacheSizeFlag, err := ms.Opts.Int64("D2RENDER_CACHE_SIZE", "cache-size", "", 512, "maximum number of renders kept by the lru cache")
	if err != nil {
		return err
	}
	redisURLFlag := ms.Opts.String("D2RENDER_REDIS_URL", "redis-url", "", "redis://localhost:6379/0", "redis server used by the redis cache")
	browserFlag := ms.Opts.String("BROWSER", "browser", "", "", "browser executable that watch opens. Setting to 0 opens no browser.")
	versionFlag, err := ms.Opts.Bool("", "version", "v", false, "get the version")
	if err != nil {
		return err
	}

	err = ms.Opts.Parse()
	if !errors.Is(err, pflag.ErrHelp) && err != nil {
		return xmain.UsageErrorf("failed to parse flags: %v", err)
	}
	if errors.Is(err, pflag.ErrHelp) {
		help(ms)
		return nil
	}

	if *debugFlag {
		ctx = log.Leveled(ctx, slog.LevelDebug)
		ms.Env.Setenv("DEBUG", "1")
	}
	if *browserFlag != "" {
		ms.Env.Setenv("BROWSER", *browserFlag)
	}

	args := ms.Opts.Flags.Args()
	if len(args) > 0 {
		switch args[0] {
		case "themes":
			themesCmd(ctx, ms)
			return nil
		case "layout":
			layoutCmd(ctx, ms)
			return nil
		case "play":
			return playCmd(ctx, ms, *themeFlag, *sketchFlag)
		case "version":
			if len(args) > 1 {
				return xmain.UsageErrorf("version subcommand accepts no arguments")
			}
			fmt.Fprintln(ms.Stdout, version.String())
			return nil
		}
	}

	if len(args) == 0 {
		if *versionFlag {
			fmt.Fprintln(ms.Stdout, version.String())
			return nil
		}
		help(ms)
		return nil
	}

	if *bgFlag != "" {
		err = color.Validate(*bgFlag)
		if err != nil {
			return xmain.UsageErrorf("--bg: %v", err)
		}
	}

	e, err := engine.Find(*engineFlag)
	if err != nil {
		return xmain.UsageErrorf("--engine: %v", err)
	}

	overrides, err := loadOverrides(ms, *configFlag)
	if err != nil {
		return err
	}
	overrides = config.Merge(overrides, flagOverrides(ms, flagValues{
		layout:    layoutFlag,
		theme:     themeFlag,
		darkTheme: darkThemeFlag,
		pad:       padFlag,
		sketch:    sketchFlag,
		center:    centerFlag,
		dark:      darkFlag,
	}))
	if overrides.ThemeConfig != nil && overrides.ThemeConfig.Theme != nil {
		ms.Log.Debug.Printf("using theme %d", *overrides.ThemeConfig.Theme)
	}

	opts := &d2render.Options{
		Engine:  e,
		Timeout: *timeoutFlag,
		Minify:  *minifyFlag,
		// A standalone file has no page to supply CSS variables.
		ThemeVariables: &config.ThemeVariables{},
	}
	ns, err := opts.Namespace()
	if err != nil {
		return err
	}
	opts.Store, err = memo.OpenStore(ctx, *cacheFlag, int(*cacheSizeFlag), *redisURLFlag, ns)
	if err != nil {
		return err
	}
	defer func() {
		if c, ok := opts.Store.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}()

	renderer := d2render.New(opts)
	req := &d2render.Request{
		BackgroundColor: *bgFlag,
		ConfigOverrides: overrides,
		Width:           *widthFlag,
	}

	if args[0] == "serve" {
		if len(args) > 1 {
			return xmain.UsageErrorf("serve subcommand accepts no arguments")
		}
		s := server.New(ms.Log, renderer)
		return s.ListenAndServe(ctx, net.JoinHostPort(*hostFlag, *portFlag), *timeoutFlag+10*time.Second)
	}

	if len(args) >= 3 {
		return xmain.UsageErrorf("too many arguments passed")
	}
	inputPath := args[0]
	var outputPath string
	if len(args) >= 2 {
		outputPath = args[1]
	} else if inputPath == "-" {
		outputPath = "-"
	} else {
		outputPath = renameExt(inputPath, ".svg")
	}
	if inputPath != "-" {
		inputPath = ms.AbsPath(inputPath)
		d, err := os.Stat(inputPath)
		if err == nil && d.IsDir() {
			inputPath = filepath.Join(inputPath, "index.d2")
		}
	}
	if outputPath != "-" {
		outputPath = ms.AbsPath(outputPath)
		if ext := filepath.Ext(outputPath); ext != ".svg" {
			return xmain.UsageErrorf("d2render only writes svg, got output extension %q", ext)
		}
	}

	if *watchFlag {
		if inputPath == "-" {
			return xmain.UsageErrorf("-w[atch] cannot be combined with reading input from stdin")
		}
		if outputPath == "-" {
			return xmain.UsageErrorf("-w[atch] cannot be combined with writing output to stdout")
		}
		w, err := newWatcher(ctx, ms, renderer, watcherOpts{
			host:       *hostFlag,
			port:       *portFlag,
			inputPath:  inputPath,
			outputPath: outputPath,
			req:        req,
		})
		if err != nil {
			return err
		}
		return w.run()
	}

	_, err = compile(ctx, ms, renderer, req, inputPath, outputPath)
	if err != nil {
		return xmain.ExitError{Code: 1, Message: err.Error()}
	}
	return nil
}

type flagValues struct {
	layout    *string
	theme     *int64
	darkTheme *int64
	pad       *int64
	sketch    *bool
	center    *bool
	dark      *bool
}

// flagOverrides keeps only the flags the user set on the command line or through the
// environment so config file values are not clobbered by flag defaults.
func flagOverrides(ms *xmain.State, v flagValues) *config.Config {
	flagSet := make(map[string]struct{})
	ms.Opts.Flags.Visit(func(f *pflag.Flag) {
		flagSet[f.Name] = struct{}{}
	})
	given := func(flag, envKey string) bool {
		if _, ok := flagSet[flag]; ok {
			return true
		}
		return ms.Env.Getenv(envKey) != ""
	}

	cfg := &config.Config{
		Core:        &config.Core{},
		ThemeConfig: &config.ThemeConfig{},
	}
	if given("layout", "D2RENDER_LAYOUT") {
		cfg.Core.Layout = v.layout
	}
	if given("pad", "D2RENDER_PAD") {
		cfg.Core.Pad = v.pad
	}
	if given("sketch", "D2RENDER_SKETCH") {
		cfg.Core.Sketch = v.sketch
	}
	if given("center", "D2RENDER_CENTER") {
		cfg.Core.Center = v.center
	}
	if given("theme", "D2RENDER_THEME") {
		cfg.ThemeConfig.Theme = v.theme
	}
	if given("dark-theme", "D2RENDER_DARK_THEME") && *v.darkTheme >= 0 {
		cfg.ThemeConfig.DarkTheme = v.darkTheme
	}
	if given("dark", "D2RENDER_DARK") {
		cfg.ThemeConfig.ThemeVariables = &config.ThemeVariables{IsDark: v.dark}
	}
	return cfg
}

func loadOverrides(ms *xmain.State, path string) (*config.Config, error) {
	if path == "" {
		return &config.Config{}, nil
	}
	cfg, err := config.Load(ms.AbsPath(path))
	if err != nil {
		return nil, xmain.UsageErrorf("failed to load --config: %v", err)
	}
	ms.Log.Debug.Printf("loaded config overrides from %s", ms.HumanPath(path))
	return cfg, nil
}

func compile(ctx context.Context, ms *xmain.State, renderer *d2render.Renderer, req *d2render.Request, inputPath, outputPath string) ([]byte, error) {
	start := time.Now()
	input, err := ms.ReadPath(inputPath)
	if err != nil {
		return nil, err
	}

	r := *req
	r.Code = string(input)

	cancel := background.Repeat(ctx, func() {
		ms.Log.Info.Printf("compiling & running layout algorithms...")
	}, time.Second*5)
	defer cancel()

	res, err := renderer.RenderMemoized(ctx, &r)
	if err != nil {
		return nil, err
	}
	cancel()

	svg := []byte(res.Value)
	err = ms.WritePath(outputPath, svg)
	if err != nil {
		return nil, err
	}
	if outputPath != "-" {
		ms.Log.Success.Printf("successfully compiled %s to %s in %s", ms.HumanPath(inputPath), ms.HumanPath(outputPath), time.Since(start))
	}
	return svg, nil
}

func renameExt(fp string, newExt string) string {
	fpExt := filepath.Ext(fp)
	if fpExt == ".d2" || fpExt == "" {
		return strings.TrimSuffix(fp, fpExt) + newExt
	}
	return fp + newExt
}
