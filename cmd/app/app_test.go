package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev := stdout
	stdout = buf
	t.Cleanup(func() { stdout = prev })
	return buf
}

func TestParseSetFlags(t *testing.T) {
	data, err := parseSetFlags([]string{"amount=250", "currency=EUR", `payment_method=["Cash"]`, "note=a=b", "paid=true"})
	require.NoError(t, err)
	assert.Equal(t, 250.0, data["amount"])
	assert.Equal(t, "EUR", data["currency"])
	assert.Equal(t, []any{"Cash"}, data["payment_method"])
	assert.Equal(t, "a=b", data["note"])
	assert.Equal(t, true, data["paid"])

	_, err = parseSetFlags([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseSetFlags([]string{"=x"})
	assert.Error(t, err)
}

func TestRecordFromFlat(t *testing.T) {
	rec := recordFromFlat(map[string]any{
		"id":             "r1",
		"collectionId":   "c1",
		"collectionName": "donations",
		"created":        "2025-01-02T03:04:05Z",
		"amount":         10.5,
	})
	assert.Equal(t, "r1", rec.ID)
	assert.Equal(t, "donations", rec.Collection)
	assert.Equal(t, 2025, rec.Created.Year())
	assert.True(t, rec.Updated.IsZero())
	assert.Equal(t, map[string]any{"amount": 10.5}, rec.Data)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, err := loadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, cliConfig{Transport: "uds", Server: "http://127.0.0.1:8080", Socket: "/tmp/aidledger.sock"}, cfg)

	require.NoError(t, saveConfigFile(path, cliConfig{Transport: "http", Token: "tok"}))
	cfg, err = loadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http", cfg.Transport)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, defaultSocket, cfg.Socket)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestHTTPLoginAndRecords(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/collections/users/auth-with-password", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["identity"] != "vol@aid.test" || in["password"] != "pw" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":400,"message":"Failed to authenticate.","data":{}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok", "record": map[string]any{"id": "u1", "email": "vol@aid.test", "role": "volunteer"}})
	})
	mux.HandleFunc("GET /api/collections/donations/records", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "5", r.URL.Query().Get("perPage"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items":      []map[string]any{{"id": "r1", "collectionName": "donations", "amount": 250, "status": "Pending"}},
			"totalItems": 1,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	cfg := cliConfig{Transport: "http", Server: srv.URL + "/"}

	_, err := doLogin(ctx, cfg, "vol@aid.test", "wrong")
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Failed to authenticate.", apiErr.Message)

	res, err := doLogin(ctx, cfg, "vol@aid.test", "pw")
	require.NoError(t, err)
	assert.Equal(t, loginResult{Token: "tok", UserID: "u1", Email: "vol@aid.test", Role: "volunteer"}, res)

	cfg.Token = res.Token
	items, err := doRecordsList(ctx, cfg, "donations", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Pending", items[0].String("status"))

	out := captureStdout(t)
	printRecords(items)
	assert.Contains(t, out.String(), "AMOUNT")
	assert.Contains(t, out.String(), "250")
	assert.Contains(t, out.String(), "Pending")
}

func TestPrintMigrationsAndEmptyTables(t *testing.T) {
	out := captureStdout(t)
	printMigrations([]domain.MigrationStatus{{Name: "1700000000_created_expenses", Applied: true}, {Name: "1700000001_updated_expenses"}})
	assert.Contains(t, out.String(), "1700000000_created_expenses  applied")
	assert.Contains(t, out.String(), "pending")

	out.Reset()
	printUsers(nil)
	assert.Equal(t, "no results\n", out.String())
}
