// Package xbrowser opens urls in the user's browser.
package xbrowser

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/pkg/browser"

	"oss.terrastruct.com/xos"
)

// ErrDisabled is returned by Open when $BROWSER is 0.
var ErrDisabled = fmt.Errorf("browser disabled with BROWSER=0")

// Open opens url with $BROWSER when set and the system default otherwise.
// $BROWSER=0 opens nothing.
func Open(ctx context.Context, env *xos.Env, url string) error {
	browserEnv := env.Getenv("BROWSER")
	switch browserEnv {
	case "0", "false":
		return ErrDisabled
	case "":
		browser.Stdout = io.Discard
		browser.Stderr = io.Discard
		return browser.OpenURL(url)
	}
	browserSh := fmt.Sprintf("%s '$1'", browserEnv)
	cmd := exec.CommandContext(ctx, "sh", "-c", browserSh, "--", url)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to run %v (out: %q): %w", cmd.Args, out, err)
	}
	return nil
}
