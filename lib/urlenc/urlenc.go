// Package urlenc packs diagram source into urls for the d2 playground.
package urlenc

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strings"

	"oss.terrastruct.com/util-go/xdefer"
)

const PlaygroundURL = "https://play.d2lang.com/"

// Encode compresses the source and encodes it as url safe base64.
func Encode(raw string) (_ string, err error) {
	defer xdefer.Errorf(&err, "failed to encode diagram source")

	b := &bytes.Buffer{}
	zw, err := flate.NewWriter(b, flate.BestCompression)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(zw, strings.NewReader(raw))
	if err != nil {
		return "", err
	}
	err = zw.Close()
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b.Bytes()), nil
}

func Decode(encoded string) (_ string, err error) {
	defer xdefer.Errorf(&err, "failed to decode diagram source")

	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	zr := flate.NewReader(bytes.NewReader(raw))
	defer zr.Close()

	var b strings.Builder
	_, err = io.Copy(&b, zr)
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// PlayURL links to the playground with the source, theme and sketch mode preloaded.
func PlayURL(raw string, theme int64, sketch bool) (string, error) {
	encoded, err := Encode(raw)
	if err != nil {
		return "", err
	}
	sketchN := 0
	if sketch {
		sketchN = 1
	}
	q := url.Values{}
	q.Set("script", encoded)
	q.Set("sketch", fmt.Sprint(sketchN))
	q.Set("theme", fmt.Sprint(theme))
	return PlaygroundURL + "?" + q.Encode(), nil
}
