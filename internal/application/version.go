package application

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/Heshamoov/aid-app-admin-production/internal/metrics"
)

const (
	versionUnknown      = "unknown"
	shortHashLength     = 7
	defaultFetchTimeout = 5 * time.Second
)

// GitRunner runs a git subcommand in dir and returns its stdout.
type GitRunner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

type ExecGit struct{}

func (ExecGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

type VersionChecker struct {
	git          GitRunner
	dir          string
	remote       string
	branch       string
	fetchTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

func NewVersionChecker(git GitRunner, dir string, logger *slog.Logger) *VersionChecker {
	if git == nil {
		git = ExecGit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VersionChecker{
		git:          git,
		dir:          dir,
		remote:       "origin",
		branch:       "main",
		fetchTimeout: defaultFetchTimeout,
		logger:       logger,
		now:          now,
	}
}

// Check compares the local HEAD with the remote branch. Remote failures
// degrade to latest == current; only a failure to read HEAD is an error,
// and the returned info then carries the "unknown" payload.
func (v *VersionChecker) Check(ctx context.Context) (domain.VersionInfo, error) {
	head, err := v.git.Run(ctx, v.dir, "rev-parse", "HEAD")
	if err != nil {
		metrics.VersionChecksTotal.WithLabelValues("error").Inc()
		v.logger.Error("version check failed", "error", err)
		return domain.VersionInfo{
			Current:         versionUnknown,
			Latest:          versionUnknown,
			UpdateAvailable: false,
			Error:           "Could not determine version",
		}, err
	}
	current := shortHash(head)

	info := domain.VersionInfo{
		Current:   current,
		Latest:    current,
		Timestamp: v.now().Format(time.RFC3339Nano),
	}
	latest, err := v.remoteHead(ctx)
	if err != nil {
		metrics.VersionChecksTotal.WithLabelValues("degraded").Inc()
		v.logger.Debug("could not fetch remote version", "error", err)
		return info, nil
	}
	info.Latest = latest
	info.UpdateAvailable = current != latest
	metrics.VersionChecksTotal.WithLabelValues("ok").Inc()
	return info, nil
}

func (v *VersionChecker) remoteHead(ctx context.Context) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, v.fetchTimeout)
	defer cancel()
	if _, err := v.git.Run(fetchCtx, v.dir, "fetch", v.remote, v.branch); err != nil {
		return "", err
	}
	out, err := v.git.Run(ctx, v.dir, "rev-parse", v.remote+"/"+v.branch)
	if err != nil {
		return "", err
	}
	return shortHash(out), nil
}

func shortHash(out string) string {
	h := strings.TrimSpace(out)
	if len(h) > shortHashLength {
		h = h[:shortHashLength]
	}
	return h
}
