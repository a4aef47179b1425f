package cli

import (
	"context"
	"errors"

	"oss.terrastruct.com/d2render/lib/urlenc"
	"oss.terrastruct.com/d2render/lib/xbrowser"
	"oss.terrastruct.com/d2render/lib/xmain"
)

// playCmd opens the source in the d2 playground. The url is printed when no browser
// is available.
func playCmd(ctx context.Context, ms *xmain.State, theme int64, sketch bool) error {
	args := ms.Opts.Flags.Args()
	if len(args) != 2 {
		return xmain.UsageErrorf("play must be passed one argument: either a filepath or '-' for stdin")
	}
	raw, err := ms.ReadPath(args[1])
	if err != nil {
		return xmain.UsageErrorf("%v", err)
	}

	url, err := urlenc.PlayURL(string(raw), theme, sketch)
	if err != nil {
		return err
	}

	ms.Log.Info.Printf("opening playground: %s", url)
	err = xbrowser.Open(ctx, ms.Env, url)
	if errors.Is(err, xbrowser.ErrDisabled) {
		_, err = ms.Stdout.Write([]byte(url + "\n"))
		return err
	}
	if err != nil {
		ms.Log.Warn.Printf("failed to open browser to %v: %v", url, err)
	}
	return nil
}
