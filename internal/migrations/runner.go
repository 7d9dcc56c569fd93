package migrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/Heshamoov/aid-app-admin-production/internal/metrics"
)

var ErrUnknownApplied = errors.New("applied migration is not part of the sequence")

// Runner applies steps to a SchemaStore. Each step runs in its own
// transaction; the first failing step aborts the run and no later step is
// attempted.
type Runner struct {
	store  domain.SchemaStore
	steps  []Step
	logger *slog.Logger
}

func NewRunner(store domain.SchemaStore, steps []Step, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: store, steps: steps, logger: logger}
}

func (r *Runner) Status(ctx context.Context) ([]domain.MigrationStatus, error) {
	applied, err := r.appliedSet(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MigrationStatus, 0, len(r.steps))
	for _, step := range r.steps {
		st := domain.MigrationStatus{Name: step.Name}
		if m, ok := applied[step.Name]; ok {
			at := m.Applied
			st.Applied = true
			st.At = &at
		}
		out = append(out, st)
	}
	return out, nil
}

func (r *Runner) Pending(ctx context.Context) ([]Step, error) {
	applied, err := r.appliedSet(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Step
	for _, step := range r.steps {
		if _, ok := applied[step.Name]; !ok {
			pending = append(pending, step)
		}
	}
	return pending, nil
}

// Up applies every pending step in order and returns the names applied
// before it stopped.
func (r *Runner) Up(ctx context.Context) ([]string, error) {
	pending, err := r.Pending(ctx)
	if err != nil {
		return nil, err
	}
	done := make([]string, 0, len(pending))
	for _, step := range pending {
		err := r.store.WithinTx(ctx, func(tx domain.SchemaStore) error {
			if err := applyToStore(ctx, tx, step.Up); err != nil {
				return err
			}
			return tx.MarkApplied(ctx, step.Name)
		})
		if err != nil {
			metrics.MigrationFailuresTotal.WithLabelValues("up").Inc()
			r.logger.Error("migration failed", "step", step.Name, "direction", "up", "error", err)
			return done, fmt.Errorf("migration %s: %w", step.Name, err)
		}
		metrics.MigrationsAppliedTotal.WithLabelValues("up").Inc()
		r.logger.Info("migration applied", "step", step.Name, "direction", "up")
		done = append(done, step.Name)
	}
	return done, nil
}

// Down reverts the last n applied steps, newest first.
func (r *Runner) Down(ctx context.Context, n int) ([]string, error) {
	applied, err := r.appliedSet(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(r.steps))
	for _, step := range r.steps {
		known[step.Name] = struct{}{}
	}
	for name := range applied {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownApplied, name)
		}
	}

	var targets []Step
	for i := len(r.steps) - 1; i >= 0 && len(targets) < n; i-- {
		if _, ok := applied[r.steps[i].Name]; ok {
			targets = append(targets, r.steps[i])
		}
	}

	done := make([]string, 0, len(targets))
	for _, step := range targets {
		err := r.store.WithinTx(ctx, func(tx domain.SchemaStore) error {
			if err := applyToStore(ctx, tx, step.Down); err != nil {
				return err
			}
			return tx.UnmarkApplied(ctx, step.Name)
		})
		if err != nil {
			metrics.MigrationFailuresTotal.WithLabelValues("down").Inc()
			r.logger.Error("migration failed", "step", step.Name, "direction", "down", "error", err)
			return done, fmt.Errorf("migration %s: %w", step.Name, err)
		}
		metrics.MigrationsAppliedTotal.WithLabelValues("down").Inc()
		r.logger.Info("migration reverted", "step", step.Name)
		done = append(done, step.Name)
	}
	return done, nil
}

func (r *Runner) appliedSet(ctx context.Context) (map[string]domain.AppliedMigration, error) {
	list, err := r.store.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.AppliedMigration, len(list))
	for _, m := range list {
		out[m.File] = m
	}
	return out, nil
}

// LoadSchema reads every stored collection into a Schema.
func LoadSchema(ctx context.Context, store domain.SchemaStore) (*Schema, error) {
	list, err := store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	return NewSchema(list...), nil
}

func applyToStore(ctx context.Context, store domain.SchemaStore, ops []Op) error {
	before, err := LoadSchema(ctx, store)
	if err != nil {
		return err
	}
	after := before.Clone()
	if err := ApplyOps(after, ops); err != nil {
		return err
	}
	changed, deleted := Diff(before, after)
	for _, id := range deleted {
		if err := store.DeleteCollection(ctx, id); err != nil {
			return fmt.Errorf("delete collection %s: %w", id, err)
		}
	}
	for _, c := range changed {
		if err := store.SaveCollection(ctx, c); err != nil {
			return fmt.Errorf("save collection %s: %w", c.Name, err)
		}
	}
	return nil
}
