package xhttp_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oss.terrastruct.com/cmdlog"
	"oss.terrastruct.com/xos"

	"oss.terrastruct.com/d2render/lib/xhttp"
)

func TestErrorIs(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	err := xhttp.ErrorWrap(http.StatusBadRequest, "bad", base)
	assert.True(t, errors.Is(err, base))
	assert.True(t, errors.Is(err, xhttp.ErrorWrap(http.StatusBadRequest, "bad", base)))
	assert.False(t, errors.Is(err, xhttp.ErrorWrap(http.StatusConflict, "bad", base)))

	err = xhttp.Errorf(http.StatusNotFound, nil, "no %s", "thing")
	var herr xhttp.Error
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusText(http.StatusNotFound), herr.Resp)
}

func TestHandlerFuncAdapter(t *testing.T) {
	t.Parallel()

	env := xos.NewEnv(nil)
	logs := &bytes.Buffer{}
	clog := cmdlog.Log(env, logs)

	h := xhttp.WithRequestID(xhttp.Log(clog, xhttp.HandlerFuncAdapter{
		Log: clog,
		Func: func(w http.ResponseWriter, r *http.Request) error {
			var v struct {
				N int `json:"n"`
			}
			err := xhttp.DecodeJSON(r, &v)
			if err != nil {
				return err
			}
			if v.N < 0 {
				return errors.New("negative")
			}
			xhttp.JSON(clog, w, http.StatusOK, v)
			return nil
		},
	}))

	do := func(body string) (*httptest.ResponseRecorder, map[string]interface{}) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
		return rec, m
	}

	rec, m := do(`{"n":2}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), m["n"])

	rec, m = do(`{"n":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, m["error"], "invalid json")
	assert.Equal(t, rec.Header().Get(xhttp.RequestIDHeader), m["requestID"])

	rec, m = do(`{"n":-1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), m["error"])
	assert.Contains(t, logs.String(), "negative")
}

func TestLogRecoversPanic(t *testing.T) {
	t.Parallel()

	env := xos.NewEnv(nil)
	h := xhttp.Log(cmdlog.Log(env, io.Discard), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
