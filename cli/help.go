package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"oss.terrastruct.com/d2/d2themes/d2themescatalog"

	"oss.terrastruct.com/d2render/engine/d2engine"
	"oss.terrastruct.com/d2render/lib/version"
	"oss.terrastruct.com/d2render/lib/xmain"
)

func help(ms *xmain.State) {
	fmt.Fprintf(ms.Stdout, `%[1]s %[2]s
Usage:
  %[1]s [--watch=false] [--theme=0] file.d2 [file.svg]
  %[1]s serve [--host=localhost] [--port=0]
  %[1]s play [--theme=0] [--sketch] file.d2
  %[1]s layout
  %[1]s themes

%[1]s compiles and renders file.d2 to file.svg
It defaults to file.svg if an output path is not provided.

Use - to have %[1]s read from stdin or write to stdout.

Renders are cached by a fingerprint of the request. Identical requests within a
watch or serve session are answered from the cache.

Flags:
%[3]s

Subcommands:
  %[1]s serve - Serves the render API over HTTP. POST /render, POST /render.svg, GET /stats
  %[1]s play file.d2 - Opens the file in the playground, an online web viewer (https://play.d2lang.com)
  %[1]s layout - Lists available layout engines
  %[1]s themes - Lists available themes
  %[1]s version - Prints the version

See more docs and the source code at https://oss.terrastruct.com/d2render.
`, filepath.Base(ms.Name), version.Version, ms.Opts.Defaults())
}

func layoutCmd(_ context.Context, ms *xmain.State) {
	var lines []string
	for _, l := range d2engine.Layouts {
		s := fmt.Sprintf("%s (bundled)", l)
		if l == d2engine.DefaultLayout {
			s += " - default"
		}
		lines = append(lines, s)
	}
	fmt.Fprintf(ms.Stdout, `Available layout engines:

%s

Usage:
  To use a particular layout engine, set the environment variable D2RENDER_LAYOUT=[name] or flag --layout=[name].

Example:
  D2RENDER_LAYOUT=elk %s in.d2 out.svg
`, strings.Join(lines, "\n"), filepath.Base(ms.Name))
}

func themesCmd(_ context.Context, ms *xmain.State) {
	fmt.Fprintf(ms.Stdout, "Available themes:\n%s", d2themescatalog.CLIString())
}
