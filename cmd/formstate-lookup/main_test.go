package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formstate/components/lookup"
)

func TestRouterServesEveryFile(t *testing.T) {
	dir := t.TempDir()
	cities := filepath.Join(dir, "cities.txt")
	require.NoError(t, os.WriteFile(cities, []byte("LIS|Lisbon|country=PT\nOPO|Porto|country=PT\nMAD|Madrid|country=ES\n"), 0o644))
	currencies := filepath.Join(dir, "currencies.txt")
	require.NoError(t, os.WriteFile(currencies, []byte("EUR\nUSD\n"), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router, err := newRouter(logger, "/api/options", []string{cities, currencies},
		lookup.WithListAll(true),
		lookup.WithLimits(0, 10),
		lookup.WithFilters(splitList("country, ")...),
	)
	require.NoError(t, err)

	server := httptest.NewServer(router)
	defer server.Close()

	res, err := server.Client().Get(server.URL + "/api/options/cities?q=por")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var payload struct {
		Data []struct {
			Value string `json:"value"`
			Label string `json:"label"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.Len(t, payload.Data, 1)
	require.Equal(t, "OPO", payload.Data[0].Value)

	spanish, err := server.Client().Get(server.URL + "/api/options/cities?country=es")
	require.NoError(t, err)
	defer spanish.Body.Close()
	require.NoError(t, json.NewDecoder(spanish.Body).Decode(&payload))
	require.Len(t, payload.Data, 1)
	require.Equal(t, "Madrid", payload.Data[0].Label)

	res2, err := server.Client().Get(server.URL + "/api/options/currencies")
	require.NoError(t, err)
	defer res2.Body.Close()
	require.NoError(t, json.NewDecoder(res2.Body).Decode(&payload))
	require.Len(t, payload.Data, 2)

	health, err := server.Client().Get(server.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	require.Equal(t, http.StatusOK, health.StatusCode)
}

func TestRouterRejectsMissingFile(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := newRouter(logger, "/api/options", []string{filepath.Join(t.TempDir(), "nope.txt")})
	require.Error(t, err)
}
