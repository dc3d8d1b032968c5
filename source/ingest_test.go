package source_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MichaelIeong/SAGE/core"
	"github.com/MichaelIeong/SAGE/source"
	"github.com/m-mizutani/gt"
)

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("project") != "7" {
			http.Error(w, "wrong project", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`[{"deviceId": 3, "deviceName": "TV", "spaceId": 1, "functions": [{"functionName": "turnOn"}]}]`))
	})
	mux.HandleFunc("/api/person", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"personName": "alice", "spaceId": "2"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestIngestor_Fetch(t *testing.T) {
	srv := newAPI(t)
	ing := source.NewIngestor(srv.URL+"/api/", source.WithProjectID(7))
	ctx := context.Background()

	devices := ing.Fetch(ctx, core.SourceDevice)
	gt.A(t, devices).Length(1)
	gt.Equal(t, devices[0].String("deviceName", ""), "TV")
	gt.Equal(t, devices[0].String("deviceId", ""), "3")

	people := ing.Fetch(ctx, core.SourceEnv)
	gt.A(t, people).Length(1)
	gt.Equal(t, people[0].String("personName", ""), "alice")
}

func TestIngestor_FailOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		got := source.NewIngestor(srv.URL).Fetch(ctx, core.SourceEnv)
		gt.V(t, got).NotNil()
		gt.A(t, got).Length(0)
	})

	t.Run("bad payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"not": "a list"`))
		}))
		defer srv.Close()

		gt.A(t, source.NewIngestor(srv.URL).Fetch(ctx, core.SourceDevice)).Length(0)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		ing := source.NewIngestor(addr, source.WithTimeout(time.Second))
		gt.A(t, ing.Fetch(ctx, core.SourceDevice)).Length(0)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(`[]`))
		}))
		defer srv.Close()

		ing := source.NewIngestor(srv.URL, source.WithTimeout(20*time.Millisecond))
		gt.A(t, ing.Fetch(ctx, core.SourceEnv)).Length(0)
	})

	t.Run("unknown kind", func(t *testing.T) {
		gt.A(t, source.NewIngestor("http://127.0.0.1:1").Fetch(ctx, core.SourceKind("weather"))).Length(0)
	})
}

func TestIngestor_TryFetchReportsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := source.NewIngestor(srv.URL).TryFetch(context.Background(), core.SourceDevice)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, source.ErrFetch))
}
