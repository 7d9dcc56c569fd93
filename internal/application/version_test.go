package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGit struct {
	outputs map[string]string
	errs    map[string]error
	block   map[string]bool
}

func (f fakeGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	if f.block[key] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err, ok := f.errs[key]; ok {
		return "", err
	}
	return f.outputs[key], nil
}

const (
	localHash  = "0123456789abcdef0123456789abcdef01234567\n"
	remoteHash = "fedcba9876543210fedcba9876543210fedcba98\n"
)

func TestVersionUpdateAvailable(t *testing.T) {
	git := fakeGit{outputs: map[string]string{
		"rev-parse HEAD":        localHash,
		"rev-parse origin/main": remoteHash,
	}}
	info, err := NewVersionChecker(git, ".", nil).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0123456", info.Current)
	assert.Equal(t, "fedcba9", info.Latest)
	assert.True(t, info.UpdateAvailable)
	assert.NotEmpty(t, info.Timestamp)
}

func TestVersionFetchFailureDegrades(t *testing.T) {
	git := fakeGit{
		outputs: map[string]string{"rev-parse HEAD": localHash},
		errs:    map[string]error{"fetch origin main": errors.New("no network")},
	}
	info, err := NewVersionChecker(git, ".", nil).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0123456", info.Current)
	assert.Equal(t, info.Current, info.Latest)
	assert.False(t, info.UpdateAvailable)
	assert.Empty(t, info.Error)
}

func TestVersionFetchTimeoutDegrades(t *testing.T) {
	git := fakeGit{
		outputs: map[string]string{"rev-parse HEAD": localHash, "rev-parse origin/main": remoteHash},
		block:   map[string]bool{"fetch origin main": true},
	}
	checker := NewVersionChecker(git, ".", nil)
	checker.fetchTimeout = 20 * time.Millisecond

	started := time.Now()
	info, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 2*time.Second)
	assert.Equal(t, info.Current, info.Latest)
	assert.False(t, info.UpdateAvailable)
}

func TestVersionLocalFailure(t *testing.T) {
	git := fakeGit{errs: map[string]error{"rev-parse HEAD": errors.New("not a git repository")}}
	info, err := NewVersionChecker(git, ".", nil).Check(context.Background())
	require.Error(t, err)
	assert.Equal(t, "unknown", info.Current)
	assert.Equal(t, "unknown", info.Latest)
	assert.False(t, info.UpdateAvailable)
	assert.Equal(t, "Could not determine version", info.Error)
}
