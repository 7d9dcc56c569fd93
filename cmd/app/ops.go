package main

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

type loginResult struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func doLogin(ctx context.Context, cfg cliConfig, email, password string) (loginResult, error) {
	if cfg.Transport == "uds" {
		var out loginResult
		err := newRPCClient(cfg.Socket).call(ctx, "auth.login", map[string]any{"email": email, "password": password}, &out)
		return out, err
	}
	var out struct {
		Token  string            `json:"token"`
		Record *domain.Principal `json:"record"`
	}
	client := newAPIClient(cfg.Server, "")
	if err := client.request(ctx, http.MethodPost, "/api/collections/users/auth-with-password", map[string]any{
		"identity": email,
		"password": password,
	}, &out); err != nil {
		return loginResult{}, err
	}
	res := loginResult{Token: out.Token}
	if out.Record != nil {
		res.UserID, res.Email, res.Role = out.Record.ID, out.Record.Email, out.Record.Role
	}
	return res, nil
}

func doWhoAmI(ctx context.Context, cfg cliConfig, out any) error {
	if cfg.Transport == "uds" {
		return newRPCClient(cfg.Socket).call(ctx, "auth.whoami", map[string]any{"token": cfg.Token}, out)
	}
	return newAPIClient(cfg.Server, cfg.Token).request(ctx, http.MethodGet, "/api/auth/whoami", nil, out)
}

// doRefresh exchanges the stored token for a fresh one. Only the HTTP
// transport exposes refresh.
func doRefresh(ctx context.Context, cfg cliConfig) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := newAPIClient(cfg.Server, cfg.Token).request(ctx, http.MethodPost, "/api/collections/users/auth-refresh", nil, &out)
	return out.Token, err
}

func doCollectionsList(ctx context.Context, cfg cliConfig) ([]domain.Collection, error) {
	var items []domain.Collection
	if cfg.Transport == "uds" {
		err := newRPCClient(cfg.Socket).call(ctx, "collections.list", map[string]any{"token": cfg.Token}, &items)
		return items, err
	}
	var out struct {
		Items []domain.Collection `json:"items"`
	}
	err := newAPIClient(cfg.Server, cfg.Token).request(ctx, http.MethodGet, "/api/collections", nil, &out)
	return out.Items, err
}

func doRecordsList(ctx context.Context, cfg cliConfig, collection string, limit int) ([]domain.Record, error) {
	if cfg.Transport == "uds" {
		var items []domain.Record
		err := newRPCClient(cfg.Socket).call(ctx, "records.list", map[string]any{"token": cfg.Token, "collection": collection, "limit": limit}, &items)
		return items, err
	}
	path := "/api/collections/" + url.PathEscape(collection) + "/records"
	if limit > 0 {
		path += "?perPage=" + strconv.Itoa(limit)
	}
	var out struct {
		Items []map[string]any `json:"items"`
	}
	if err := newAPIClient(cfg.Server, cfg.Token).request(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	items := make([]domain.Record, 0, len(out.Items))
	for _, flat := range out.Items {
		items = append(items, recordFromFlat(flat))
	}
	return items, nil
}

func doRecordsCreate(ctx context.Context, cfg cliConfig, collection string, data map[string]any) (domain.Record, error) {
	if cfg.Transport == "uds" {
		var rec domain.Record
		err := newRPCClient(cfg.Socket).call(ctx, "records.create", map[string]any{"token": cfg.Token, "collection": collection, "data": data}, &rec)
		return rec, err
	}
	var flat map[string]any
	err := newAPIClient(cfg.Server, cfg.Token).request(ctx, http.MethodPost, "/api/collections/"+url.PathEscape(collection)+"/records", data, &flat)
	return recordFromFlat(flat), err
}

func doRecordsStatus(ctx context.Context, cfg cliConfig, collection, id, status string) (domain.Record, error) {
	if cfg.Transport == "uds" {
		var rec domain.Record
		err := newRPCClient(cfg.Socket).call(ctx, "records.status", map[string]any{"token": cfg.Token, "collection": collection, "id": id, "status": status}, &rec)
		return rec, err
	}
	var flat map[string]any
	path := "/api/collections/" + url.PathEscape(collection) + "/records/" + url.PathEscape(id) + "/status"
	err := newAPIClient(cfg.Server, cfg.Token).request(ctx, http.MethodPost, path, map[string]any{"status": status}, &flat)
	return recordFromFlat(flat), err
}

func doRecordsDelete(ctx context.Context, cfg cliConfig, collection, id string) error {
	if cfg.Transport == "uds" {
		return newRPCClient(cfg.Socket).call(ctx, "records.delete", map[string]any{"token": cfg.Token, "collection": collection, "id": id}, nil)
	}
	path := "/api/collections/" + url.PathEscape(collection) + "/records/" + url.PathEscape(id)
	return newAPIClient(cfg.Server, cfg.Token).request(ctx, http.MethodDelete, path, nil, nil)
}

func doUsersList(ctx context.Context, cfg cliConfig, q string) ([]domain.User, error) {
	var items []domain.User
	if cfg.Transport == "uds" {
		err := newRPCClient(cfg.Socket).call(ctx, "users.list", map[string]any{"token": cfg.Token, "q": q, "limit": 200}, &items)
		return items, err
	}
	path := "/api/users?limit=200"
	if q != "" {
		path += "&q=" + url.QueryEscape(q)
	}
	err := newAPIClient(cfg.Server, cfg.Token).request(ctx, http.MethodGet, path, nil, &items)
	return items, err
}

func doUsersCreate(ctx context.Context, cfg cliConfig, email, password, name, role string) (domain.User, error) {
	var u domain.User
	in := map[string]any{"email": email, "password": password, "name": name, "role": role}
	if cfg.Transport == "uds" {
		in["token"] = cfg.Token
		err := newRPCClient(cfg.Socket).call(ctx, "users.create", in, &u)
		return u, err
	}
	err := newAPIClient(cfg.Server, cfg.Token).request(ctx, http.MethodPost, "/api/users", in, &u)
	return u, err
}

func doAuditList(ctx context.Context, cfg cliConfig, limit int) ([]domain.AuditLog, error) {
	var items []domain.AuditLog
	if cfg.Transport == "uds" {
		err := newRPCClient(cfg.Socket).call(ctx, "audit.list", map[string]any{"token": cfg.Token, "limit": limit}, &items)
		return items, err
	}
	err := newAPIClient(cfg.Server, cfg.Token).request(ctx, http.MethodGet, "/api/audit?limit="+strconv.Itoa(limit), nil, &items)
	return items, err
}

func doMigrationsStatus(ctx context.Context, cfg cliConfig) ([]domain.MigrationStatus, error) {
	var items []domain.MigrationStatus
	if cfg.Transport == "uds" {
		err := newRPCClient(cfg.Socket).call(ctx, "migrations.status", map[string]any{"token": cfg.Token}, &items)
		return items, err
	}
	err := newAPIClient(cfg.Server, cfg.Token).request(ctx, http.MethodGet, "/api/migrations", nil, &items)
	return items, err
}

func doVersion(ctx context.Context, cfg cliConfig) (domain.VersionInfo, error) {
	var info domain.VersionInfo
	err := newAPIClient(cfg.Server, "").request(ctx, http.MethodGet, "/api/version", nil, &info)
	return info, err
}

// recordFromFlat reverses the flattened HTTP record shape.
func recordFromFlat(flat map[string]any) domain.Record {
	rec := domain.Record{Data: map[string]any{}}
	for k, v := range flat {
		switch k {
		case "id":
			rec.ID, _ = v.(string)
		case "collectionId":
			rec.CollectionID, _ = v.(string)
		case "collectionName":
			rec.Collection, _ = v.(string)
		case "created":
			rec.Created = parseTime(v)
		case "updated":
			rec.Updated = parseTime(v)
		default:
			rec.Data[k] = v
		}
	}
	return rec
}

func parseTime(v any) time.Time {
	s, _ := v.(string)
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
