package rpcjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/Heshamoov/aid-app-admin-production/internal/application"
	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/Heshamoov/aid-app-admin-production/internal/migrations"
)

type Server struct {
	service    *application.LedgerService
	migrations *migrations.Runner
	logger     *slog.Logger
	listener   net.Listener
	path       string
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type response struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Start listens on a unix socket readable only by the owner.
func Start(path string, service *application.LedgerService, runner *migrations.Runner, logger *slog.Logger) (*Server, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rpc socket path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, err
	}

	s := &Server{service: service, migrations: runner, logger: logger, listener: ln, path: path}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			s.logger.Debug("rpc parse error", "error", err)
			_ = enc.Encode(response{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}, ID: nil})
			return
		}

		resp := s.dispatch(context.Background(), req)
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

type recordParams struct {
	Token      string         `json:"token"`
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	Limit      int            `json:"limit"`
	Data       map[string]any `json:"data"`
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32600, Message: "invalid request"}, ID: req.ID}
	}

	switch req.Method {
	case "auth.login":
		return s.handleAuthLogin(ctx, req)
	case "auth.whoami":
		p, rpcResp, ok := s.authz(ctx, req, "")
		if !ok {
			return rpcResp
		}
		return result(req.ID, map[string]any{"id": p.ID, "email": p.Email, "name": p.Name, "role": p.Role})
	case "collections.list":
		p, rpcResp, ok := s.authz(ctx, req, "")
		if !ok {
			return rpcResp
		}
		items, err := s.service.ListCollections(ctx, p)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, items)
	case "records.list":
		p, rpcResp, ok := s.authz(ctx, req, "")
		if !ok {
			return rpcResp
		}
		var in recordParams
		if !decodeParams(req.Params, &in) || in.Collection == "" {
			return invalidParams(req.ID)
		}
		items, err := s.service.ListRecords(ctx, p, in.Collection, in.Limit)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, items)
	case "records.get":
		p, rpcResp, ok := s.authz(ctx, req, "")
		if !ok {
			return rpcResp
		}
		var in recordParams
		if !decodeParams(req.Params, &in) || in.Collection == "" || in.ID == "" {
			return invalidParams(req.ID)
		}
		rec, err := s.service.GetRecord(ctx, p, in.Collection, in.ID)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, rec)
	case "records.create":
		p, rpcResp, ok := s.authz(ctx, req, application.PermRecordsCreate)
		if !ok {
			return rpcResp
		}
		var in recordParams
		if !decodeParams(req.Params, &in) || in.Collection == "" {
			return invalidParams(req.ID)
		}
		rec, err := s.service.CreateRecord(ctx, p, in.Collection, in.Data)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, rec)
	case "records.status":
		p, rpcResp, ok := s.authz(ctx, req, application.PermRecordsReview)
		if !ok {
			return rpcResp
		}
		var in recordParams
		if !decodeParams(req.Params, &in) || in.Collection == "" || in.ID == "" || in.Status == "" {
			return invalidParams(req.ID)
		}
		rec, err := s.service.SetStatus(ctx, p, in.Collection, in.ID, in.Status)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, rec)
	case "records.delete":
		p, rpcResp, ok := s.authz(ctx, req, application.PermRecordsDelete)
		if !ok {
			return rpcResp
		}
		var in recordParams
		if !decodeParams(req.Params, &in) || in.Collection == "" || in.ID == "" {
			return invalidParams(req.ID)
		}
		if err := s.service.DeleteRecord(ctx, p, in.Collection, in.ID); err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, map[string]any{"ok": true})
	case "migrations.status":
		_, rpcResp, ok := s.authz(ctx, req, application.PermMigrationsRead)
		if !ok {
			return rpcResp
		}
		if s.migrations == nil {
			return appError(req.ID, fmt.Errorf("migrations: %w", domain.ErrNotFound))
		}
		items, err := s.migrations.Status(ctx)
		if err != nil {
			return internalError(req.ID, err)
		}
		return result(req.ID, items)
	case "users.list":
		p, rpcResp, ok := s.authz(ctx, req, application.PermUsersManage)
		if !ok {
			return rpcResp
		}
		var in struct {
			Q     string `json:"q"`
			Limit int    `json:"limit"`
		}
		if !decodeParams(req.Params, &in) {
			return invalidParams(req.ID)
		}
		items, err := s.service.ListUsers(ctx, p, in.Q, in.Limit)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, items)
	case "users.create":
		p, rpcResp, ok := s.authz(ctx, req, application.PermUsersManage)
		if !ok {
			return rpcResp
		}
		var in struct {
			Email    string `json:"email"`
			Password string `json:"password"`
			Name     string `json:"name"`
			Role     string `json:"role"`
		}
		if !decodeParams(req.Params, &in) {
			return invalidParams(req.ID)
		}
		u, err := s.service.CreateUser(ctx, p, in.Email, in.Password, in.Name, in.Role)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, u)
	case "audit.list":
		p, rpcResp, ok := s.authz(ctx, req, application.PermAuditRead)
		if !ok {
			return rpcResp
		}
		var in struct {
			Limit int `json:"limit"`
		}
		if !decodeParams(req.Params, &in) {
			return invalidParams(req.ID)
		}
		items, err := s.service.ListAuditLogs(ctx, p, in.Limit)
		if err != nil {
			return appError(req.ID, err)
		}
		return result(req.ID, items)
	default:
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32601, Message: "method not found"}, ID: req.ID}
	}
}

func (s *Server) handleAuthLogin(ctx context.Context, req request) response {
	var p struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeParams(req.Params, &p) {
		return invalidParams(req.ID)
	}
	token, principal, err := s.service.AuthWithPassword(ctx, p.Email, p.Password)
	if err != nil {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: 40100, Message: "invalid credentials"}, ID: req.ID}
	}
	return result(req.ID, map[string]any{"user_id": principal.ID, "email": principal.Email, "role": principal.Role, "token": token})
}

func (s *Server) authz(ctx context.Context, req request, permission string) (*domain.Principal, response, bool) {
	var p struct {
		Token string `json:"token"`
	}
	if !decodeParams(req.Params, &p) {
		return nil, invalidParams(req.ID), false
	}
	principal, err := s.service.Authenticate(ctx, p.Token)
	if err != nil {
		return nil, response{JSONRPC: "2.0", Error: &rpcError{Code: 40100, Message: "unauthorized"}, ID: req.ID}, false
	}
	if permission != "" && !s.service.Can(principal, permission) {
		return nil, response{JSONRPC: "2.0", Error: &rpcError{Code: 40300, Message: "forbidden"}, ID: req.ID}, false
	}
	return principal, response{}, true
}

func decodeParams(raw json.RawMessage, out any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func result(id, v any) response {
	return response{JSONRPC: "2.0", Result: v, ID: id}
}

func invalidParams(id any) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: -32602, Message: "invalid params"}, ID: id}
}

// appError maps domain sentinels to http-like codes times 100.
func appError(id any, err error) response {
	code := 40000
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = 40400
	case errors.Is(err, domain.ErrUnauthorized):
		code = 40100
	case errors.Is(err, domain.ErrForbidden):
		code = 40300
	case errors.Is(err, domain.ErrConflict):
		code = 40900
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidCredentials):
	default:
		return internalError(id, err)
	}
	return response{JSONRPC: "2.0", Error: &rpcError{Code: code, Message: err.Error()}, ID: id}
}

func internalError(id any, err error) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: 50000, Message: fmt.Sprintf("internal error: %v", err)}, ID: id}
}
