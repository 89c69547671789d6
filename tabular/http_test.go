package tabular

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSource(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flows.csv":
			_, _ = w.Write([]byte(flowsCSV))
		case "/private.csv":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "hydra" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(flowsCSV))
		case "/token.csv":
			if r.Header.Get("Authorization") != "Bearer t0k" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			_, _ = w.Write([]byte(flowsCSV))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	ctx := context.Background()

	t.Run("through reader", func(t *testing.T) {
		t.Parallel()
		src, err := NewHTTPSource(DefaultHTTPOptions())
		require.NoError(t, err)
		r := NewReader(nil, WithPrefix("project"), WithHTTP(src))

		url := server.URL + "/flows.csv"
		assert.Equal(t, url, r.Resolve(url))
		tbl, err := r.Read(ctx, url, DefaultOptions())
		require.NoError(t, err)
		assert.Len(t, tbl.Index, 4)

		_, err = r.Read(ctx, server.URL+"/missing.csv", DefaultOptions())
		require.ErrorIs(t, err, ErrNotFound)

		_, err = r.Read(ctx, "flows.csv", DefaultOptions())
		require.ErrorIs(t, err, ErrNoSource)
	})

	t.Run("no http source", func(t *testing.T) {
		t.Parallel()
		_, err := NewReader(nil).Read(ctx, server.URL+"/flows.csv", DefaultOptions())
		require.ErrorIs(t, err, ErrNoSource)
	})

	t.Run("basic auth", func(t *testing.T) {
		t.Parallel()
		opts := DefaultHTTPOptions()
		opts.AuthType = BasicAuth
		opts.Username = "hydra"
		opts.Password = "secret"
		src, err := NewHTTPSource(opts)
		require.NoError(t, err)
		rc, err := src.Open(ctx, server.URL+"/private.csv")
		require.NoError(t, err)
		require.NoError(t, rc.Close())

		anon, err := NewHTTPSource(DefaultHTTPOptions())
		require.NoError(t, err)
		_, err = anon.Open(ctx, server.URL+"/private.csv")
		require.ErrorContains(t, err, "401")
	})

	t.Run("header auth", func(t *testing.T) {
		t.Parallel()
		opts := DefaultHTTPOptions()
		opts.AuthType = HeaderAuth
		opts.Headers["Authorization"] = "Bearer t0k"
		src, err := NewHTTPSource(opts)
		require.NoError(t, err)
		rc, err := src.Open(ctx, server.URL+"/token.csv")
		require.NoError(t, err)
		require.NoError(t, rc.Close())
	})

	t.Run("bad scheme", func(t *testing.T) {
		t.Parallel()
		src, err := NewHTTPSource(DefaultHTTPOptions())
		require.NoError(t, err)
		_, err = src.Open(ctx, "ftp://example.com/flows.csv")
		require.ErrorContains(t, err, "unsupported scheme")
	})
}

func TestHTTPOptionsValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultHTTPOptions().Validate())

	o := DefaultHTTPOptions()
	o.AuthType = BasicAuth
	require.Error(t, o.Validate())

	o = DefaultHTTPOptions()
	o.AuthType = "digest"
	require.Error(t, o.Validate())

	o = DefaultHTTPOptions()
	o.Timeout = -1
	require.Error(t, o.Validate())
}
