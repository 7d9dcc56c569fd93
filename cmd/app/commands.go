package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/Heshamoov/aid-app-admin-production/internal/application"
	"github.com/Heshamoov/aid-app-admin-production/internal/config"
	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authentication commands",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Login and store CLI token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "transport", Value: defaultTransport, Usage: "uds or http"},
					&cli.StringFlag{Name: "server", Value: defaultServer},
					&cli.StringFlag{Name: "socket", Value: defaultSocket},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg := cliConfig{Transport: c.String("transport"), Server: c.String("server"), Socket: c.String("socket")}
					if cfg.Transport != "uds" && cfg.Transport != "http" {
						return fmt.Errorf("unknown transport %q", cfg.Transport)
					}
					out, err := doLogin(ctx, cfg, c.String("email"), c.String("password"))
					if err != nil {
						return err
					}
					cfg.Token = out.Token
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Printf("logged in as %s (%s)\n", out.Email, out.Role)
					return nil
				},
			},
			{
				Name:  "whoami",
				Usage: "Show current authenticated user",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out struct {
						ID    string `json:"id"`
						Email string `json:"email"`
						Name  string `json:"name"`
						Role  string `json:"role"`
					}
					if err := doWhoAmI(ctx, cfg, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printKV([][2]string{{"id", out.ID}, {"email", out.Email}, {"name", orDash(out.Name)}, {"role", out.Role}})
					return nil
				},
			},
			{
				Name:  "refresh",
				Usage: "Exchange the stored token for a fresh one (http transport)",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if cfg.Transport != "http" {
						return errors.New("refresh is only available over http")
					}
					token, err := doRefresh(ctx, cfg)
					if err != nil {
						return err
					}
					cfg.Token = token
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Println("token refreshed")
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "Clear local CLI auth token",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					cfg.Token = ""
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Println("logged out")
					return nil
				},
			},
		},
	}
}

func recordsCommand() *cli.Command {
	collectionFlag := &cli.StringFlag{Name: "collection", Aliases: []string{"c"}, Required: true, Usage: "collection name or id"}
	jsonFlag := &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}
	return &cli.Command{
		Name:  "records",
		Usage: "Expense and donation records",
		Commands: []*cli.Command{
			{
				Name:  "collections",
				Usage: "List collections",
				Flags: []cli.Flag{jsonFlag},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					items, err := doCollectionsList(ctx, cfg)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(items)
					}
					printCollections(items)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List records of a collection",
				Flags: []cli.Flag{collectionFlag, jsonFlag, &cli.IntFlag{Name: "limit", Value: 200}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					items, err := doRecordsList(ctx, cfg, c.String("collection"), int(c.Int("limit")))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(items)
					}
					printRecords(items)
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "Create a record from --set key=value pairs",
				Flags: []cli.Flag{
					collectionFlag,
					jsonFlag,
					&cli.StringSliceFlag{Name: "set", Usage: "field=value; values are parsed as JSON when possible"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					data, err := parseSetFlags(c.StringSlice("set"))
					if err != nil {
						return err
					}
					rec, err := doRecordsCreate(ctx, cfg, c.String("collection"), data)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(rec)
					}
					printRecord(rec)
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "Approve or reject a record",
				Flags: []cli.Flag{
					collectionFlag,
					jsonFlag,
					&cli.StringFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "status", Required: true, Usage: "Pending, Approved or Rejected"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					rec, err := doRecordsStatus(ctx, cfg, c.String("collection"), c.String("id"), c.String("status"))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(rec)
					}
					printRecord(rec)
					return nil
				},
			},
			{
				Name:  "delete",
				Usage: "Delete a record",
				Flags: []cli.Flag{collectionFlag, &cli.StringFlag{Name: "id", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if err := doRecordsDelete(ctx, cfg, c.String("collection"), c.String("id")); err != nil {
						return err
					}
					fmt.Printf("deleted %s\n", c.String("id"))
					return nil
				},
			},
		},
	}
}

func usersCommand() *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "User management",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List users",
				Flags: []cli.Flag{&cli.StringFlag{Name: "q"}, &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					items, err := doUsersList(ctx, cfg, c.String("q"))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(items)
					}
					printUsers(items)
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "Create a user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "role", Value: "volunteer", Usage: "admin, monitor or volunteer"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					u, err := doUsersCreate(ctx, cfg, c.String("email"), c.String("password"), c.String("name"), c.String("role"))
					if err != nil {
						return err
					}
					printUsers([]domain.User{u})
					return nil
				},
			},
		},
	}
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Audit log",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent audit entries",
				Flags: []cli.Flag{&cli.IntFlag{Name: "limit", Value: 100}, &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					items, err := doAuditList(ctx, cfg, int(c.Int("limit")))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(items)
					}
					printAudit(items)
					return nil
				},
			},
			{
				Name:  "migrations",
				Usage: "Show migration status of the running server",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					items, err := doMigrationsStatus(ctx, cfg)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(items)
					}
					printMigrations(items)
					return nil
				},
			},
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Compare the deployed commit with the remote head",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "local", Usage: "inspect the repository directly instead of asking the server"},
			&cli.StringFlag{Name: "repo-dir", Usage: "repository directory for --local"},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			info, err := fetchVersion(ctx, c)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(info)
			}
			printVersion(info)
			return nil
		},
	}
}

func fetchVersion(ctx context.Context, c *cli.Command) (domain.VersionInfo, error) {
	if !c.Bool("local") {
		cfg, err := loadConfig()
		if err != nil {
			return domain.VersionInfo{}, err
		}
		return doVersion(ctx, cfg)
	}
	appCfg, err := config.Load(c.String("config-dir"))
	if err != nil {
		return domain.VersionInfo{}, err
	}
	dir := appCfg.RepoDir
	if c.IsSet("repo-dir") {
		dir = c.String("repo-dir")
	}
	return application.NewVersionChecker(application.ExecGit{}, dir, config.NewLogger(appCfg.LogLevel)).Check(ctx)
}

// parseSetFlags turns "field=value" pairs into record data. A value that is
// valid JSON keeps its JSON type; anything else is a string.
func parseSetFlags(pairs []string) (map[string]any, error) {
	data := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("--set %q: expected field=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		data[key] = v
	}
	return data, nil
}
