package rpcjson

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heshamoov/aid-app-admin-production/internal/adapters/db/sqlite"
	"github.com/Heshamoov/aid-app-admin-production/internal/application"
	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/Heshamoov/aid-app-admin-production/internal/migrations"
)

type rpcClient struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
	next int
}

func (c *rpcClient) call(t *testing.T, method string, params any) response {
	t.Helper()
	c.next++
	require.NoError(t, c.enc.Encode(map[string]any{"jsonrpc": "2.0", "method": method, "params": params, "id": c.next}))
	var resp struct {
		JSONRPC string          `json:"jsonrpc"`
		Result  json.RawMessage `json:"result"`
		Error   *rpcError       `json:"error"`
		ID      any             `json:"id"`
	}
	require.NoError(t, c.dec.Decode(&resp))
	var result any
	if len(resp.Result) > 0 {
		require.NoError(t, json.Unmarshal(resp.Result, &result))
	}
	return response{JSONRPC: resp.JSONRPC, Result: result, Error: resp.Error, ID: resp.ID}
}

func startServer(t *testing.T) *rpcClient {
	t.Helper()
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "aidrpc")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	db, err := sqlite.OpenAndMigrate(ctx, filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	store := sqlite.NewSchemaStore(db)
	steps, err := migrations.Sequence()
	require.NoError(t, err)
	runner := migrations.NewRunner(store, steps, nil)
	_, err = runner.Up(ctx)
	require.NoError(t, err)

	tokens, err := application.NewTokenIssuer("rpc-test-secret-0123456789", time.Hour)
	require.NoError(t, err)
	svc := application.NewLedgerService(sqlite.NewLedgerRepository(db), store, tokens, nil)
	require.NoError(t, svc.BootstrapAdmin(ctx, "admin@aid.test", "admin-pass"))
	_, admin, err := svc.AuthWithPassword(ctx, "admin@aid.test", "admin-pass")
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, admin, "volunteer@aid.test", "volunteer-pass", "Vic", domain.RoleVolunteer)
	require.NoError(t, err)

	srv, err := Start(filepath.Join(dir, "rpc.sock"), svc, runner, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := net.Dial("unix", filepath.Join(dir, "rpc.sock"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &rpcClient{conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}
}

func TestRPCRecordsFlow(t *testing.T) {
	c := startServer(t)

	resp := c.call(t, "auth.login", map[string]any{"email": "volunteer@aid.test", "password": "nope"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, 40100, resp.Error.Code)

	resp = c.call(t, "auth.login", map[string]any{"email": "volunteer@aid.test", "password": "volunteer-pass"})
	require.Nil(t, resp.Error)
	token := resp.Result.(map[string]any)["token"].(string)
	require.NotEmpty(t, token)

	resp = c.call(t, "auth.whoami", map[string]any{"token": token})
	require.Nil(t, resp.Error)
	assert.Equal(t, "volunteer", resp.Result.(map[string]any)["role"])

	resp = c.call(t, "records.create", map[string]any{
		"token":      token,
		"collection": "expenses",
		"data":       map[string]any{"category": "Housing", "amount": 40, "currency": "EUR", "description": "tent"},
	})
	require.Nil(t, resp.Error)
	created := resp.Result.(map[string]any)
	assert.Equal(t, "Pending", created["data"].(map[string]any)["status"])

	resp = c.call(t, "records.list", map[string]any{"token": token, "collection": "expenses"})
	require.Nil(t, resp.Error)
	assert.Len(t, resp.Result.([]any), 1)

	resp = c.call(t, "records.create", map[string]any{"token": token, "collection": "expenses", "data": map[string]any{"amount": 1}})
	require.NotNil(t, resp.Error)
	assert.Equal(t, 40000, resp.Error.Code)

	resp = c.call(t, "records.status", map[string]any{"token": token, "collection": "expenses", "id": created["id"], "status": "Approved"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, 40300, resp.Error.Code)

	resp = c.call(t, "users.list", map[string]any{"token": token})
	require.NotNil(t, resp.Error)
	assert.Equal(t, 40300, resp.Error.Code)
}

func TestRPCAdminMethods(t *testing.T) {
	c := startServer(t)

	resp := c.call(t, "auth.login", map[string]any{"email": "admin@aid.test", "password": "admin-pass"})
	require.Nil(t, resp.Error)
	token := resp.Result.(map[string]any)["token"].(string)

	resp = c.call(t, "migrations.status", map[string]any{"token": token})
	require.Nil(t, resp.Error)
	steps := resp.Result.([]any)
	require.NotEmpty(t, steps)
	for _, s := range steps {
		assert.Equal(t, true, s.(map[string]any)["applied"])
	}

	resp = c.call(t, "users.list", map[string]any{"token": token})
	require.Nil(t, resp.Error)
	assert.Len(t, resp.Result.([]any), 2)

	resp = c.call(t, "records.get", map[string]any{"token": token, "collection": "expenses", "id": "missing"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, 40400, resp.Error.Code)

	resp = c.call(t, "nope.nothing", map[string]any{"token": token})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}
