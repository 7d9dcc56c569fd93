package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/Heshamoov/aid-app-admin-production/internal/config"
	"github.com/Heshamoov/aid-app-admin-production/internal/migrations"
)

func migrateCommand() *cli.Command {
	dbFlag := &cli.StringFlag{Name: "db-path", Value: "aidledger.db", Usage: "SQLite database path"}
	return &cli.Command{
		Name:  "migrate",
		Usage: "Collection schema migrations",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply every pending step",
				Flags: []cli.Flag{dbFlag},
				Action: func(ctx context.Context, c *cli.Command) error {
					runner, err := localRunner(ctx, c)
					if err != nil {
						return err
					}
					applied, err := runner.Up(ctx)
					for _, name := range applied {
						fmt.Printf("applied %s\n", name)
					}
					if err != nil {
						return err
					}
					if len(applied) == 0 {
						fmt.Println("nothing to apply")
					}
					return nil
				},
			},
			{
				Name:  "down",
				Usage: "Revert the newest applied steps",
				Flags: []cli.Flag{
					dbFlag,
					&cli.IntFlag{Name: "steps", Value: 1, Usage: "how many steps to revert"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Int("steps") < 1 {
						return fmt.Errorf("--steps must be at least 1")
					}
					runner, err := localRunner(ctx, c)
					if err != nil {
						return err
					}
					reverted, err := runner.Down(ctx, int(c.Int("steps")))
					for _, name := range reverted {
						fmt.Printf("reverted %s\n", name)
					}
					return err
				},
			},
			{
				Name:  "status",
				Usage: "List steps and whether they are applied",
				Flags: []cli.Flag{dbFlag, &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					runner, err := localRunner(ctx, c)
					if err != nil {
						return err
					}
					items, err := runner.Status(ctx)
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
			{
				Name:  "check",
				Usage: "Verify every step's down list inverts its up list",
				Action: func(ctx context.Context, c *cli.Command) error {
					steps, err := migrations.Sequence()
					if err != nil {
						return err
					}
					final, err := migrations.Check(steps)
					if err != nil {
						if final != nil {
							fmt.Printf("%d steps checked; %d collections at head\n", len(steps), final.Len())
						}
						return fmt.Errorf("migration check failed:\n%w", err)
					}
					fmt.Printf("%d steps ok; %d collections at head; full rollback returns to empty\n", len(steps), final.Len())
					return nil
				},
			},
			{
				Name:  "new",
				Usage: "Create an empty step file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "verb", Value: "updated", Usage: "created, updated or deleted"},
					&cli.StringFlag{Name: "collection", Required: true},
					&cli.StringFlag{Name: "dir", Value: filepath.Join("internal", "migrations", "steps")},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					name, err := migrations.NewStepName(time.Now(), c.String("verb"), c.String("collection"))
					if err != nil {
						return err
					}
					data, err := migrations.EncodeStep(migrations.Step{Name: name})
					if err != nil {
						return err
					}
					path := filepath.Join(c.String("dir"), name+".json")
					if _, err := os.Stat(path); err == nil {
						return fmt.Errorf("%s already exists", path)
					}
					if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
						return err
					}
					fmt.Println(path)
					return nil
				},
			},
		},
	}
}

func localRunner(ctx context.Context, c *cli.Command) (*migrations.Runner, error) {
	cfg, err := config.Load(c.String("config-dir"))
	if err != nil {
		return nil, err
	}
	path := cfg.DB
	if c.IsSet("db-path") {
		path = c.String("db-path")
	}
	_, runner, err := openLedger(ctx, path, config.NewLogger(cfg.LogLevel))
	return runner, err
}
