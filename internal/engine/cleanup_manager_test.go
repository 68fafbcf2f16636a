package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	ghaerrors "github.com/dangazineu/ghaexec/internal/errors"
)

func TestBranchLeaseReleaseWithoutAcquire(t *testing.T) {
	remote := newFakeRemote()
	lease := newBranchLease(remote, testRepo, "ghaexec/x", zaptest.NewLogger(t), nil)

	assert.Equal(t, ghaerrors.DispositionNotCreated, lease.Release(context.Background()))
	assert.Zero(t, remote.count("DeleteBranch"))
}

func TestBranchLeaseAcquireFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.errCreateBranch = ghaerrors.BranchAlreadyExists("ghaexec/x", nil)
	lease := newBranchLease(remote, testRepo, "ghaexec/x", zaptest.NewLogger(t), nil)

	err := lease.Acquire(context.Background(), "abc123")
	assert.ErrorIs(t, err, ghaerrors.ErrBranchAlreadyExists)
	assert.Equal(t, ghaerrors.DispositionNotCreated, lease.Release(context.Background()))
	assert.Zero(t, remote.count("DeleteBranch"))
}

func TestBranchLeaseDeletesOnce(t *testing.T) {
	remote := newFakeRemote()
	lease := newBranchLease(remote, testRepo, "ghaexec/x", zaptest.NewLogger(t), nil)

	require.NoError(t, lease.Acquire(context.Background(), "abc123"))
	assert.Equal(t, ghaerrors.DispositionDeleted, lease.Release(context.Background()))
	assert.Equal(t, ghaerrors.DispositionDeleted, lease.Release(context.Background()))
	assert.Equal(t, []string{"ghaexec/x"}, remote.deleted)
}

func TestBranchLeaseDeletesAfterCancel(t *testing.T) {
	remote := newFakeRemote()
	lease := newBranchLease(remote, testRepo, "ghaexec/x", zaptest.NewLogger(t), nil)
	require.NoError(t, lease.Acquire(context.Background(), "abc123"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, ghaerrors.DispositionDeleted, lease.Release(ctx))
}

func TestBranchLeaseDeleteFailureIsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	remote := newFakeRemote()
	remote.errDelete = errors.New("boom")
	lease := newBranchLease(remote, testRepo, "ghaexec/x", zap.New(core), nil)
	require.NoError(t, lease.Acquire(context.Background(), "abc123"))

	assert.Equal(t, ghaerrors.DispositionDeleteFailed, lease.Release(context.Background()))

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "ghaexec/x", warnings[0].ContextMap()["branch"])
}

func TestNewCleanupManager(t *testing.T) {
	cm := NewCleanupManager(newFakeRemote(), testRepo, "ghaexec", 0, nil, nil)
	assert.Equal(t, 24*time.Hour, cm.maxAge)

	cm = NewCleanupManager(newFakeRemote(), testRepo, "ghaexec", 2*time.Hour, nil, nil)
	assert.Equal(t, 2*time.Hour, cm.maxAge)
}

func TestCleanupManager_StaleBranches(t *testing.T) {
	remote := newFakeRemote()
	remote.branches = []string{
		"ghaexec/20240726-143022-a7b3c1d2", // 2 days old
		"ghaexec/20240728-120000-0000ffff", // 2.5 hours old
		"ghaexec/20240725-090000-12345678", // 3 days old
		"ghaexec/my-manual-branch",
	}
	now := time.Date(2024, 7, 28, 14, 30, 0, 0, time.UTC)

	cm := NewCleanupManager(remote, testRepo, "ghaexec", 24*time.Hour, zaptest.NewLogger(t), nil)
	stale, err := cm.StaleBranches(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ghaexec/20240725-090000-12345678",
		"ghaexec/20240726-143022-a7b3c1d2",
	}, stale)
}

func TestCleanupManager_CleanupOrphanedBranches(t *testing.T) {
	now := time.Date(2024, 7, 28, 14, 30, 0, 0, time.UTC)

	t.Run("dry run", func(t *testing.T) {
		remote := newFakeRemote()
		remote.branches = []string{"ghaexec/20240726-143022-a7b3c1d2"}
		cm := NewCleanupManager(remote, testRepo, "ghaexec", time.Hour, zaptest.NewLogger(t), nil)

		report, err := cm.CleanupOrphanedBranches(context.Background(), now, true)
		require.NoError(t, err)
		assert.Len(t, report.Stale, 1)
		assert.Empty(t, report.Deleted)
		assert.Zero(t, remote.count("DeleteBranch"))
	})

	t.Run("delete", func(t *testing.T) {
		remote := newFakeRemote()
		remote.branches = []string{"ghaexec/20240726-143022-a7b3c1d2", "ghaexec/20240728-143000-aaaaaaaa"}
		cm := NewCleanupManager(remote, testRepo, "ghaexec", time.Hour, zaptest.NewLogger(t), nil)

		report, err := cm.CleanupOrphanedBranches(context.Background(), now, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"ghaexec/20240726-143022-a7b3c1d2"}, report.Deleted)
		assert.Equal(t, report.Deleted, remote.deleted)
	})

	t.Run("delete failure", func(t *testing.T) {
		remote := newFakeRemote()
		remote.branches = []string{"ghaexec/20240726-143022-a7b3c1d2"}
		remote.errDelete = errors.New("forbidden")
		cm := NewCleanupManager(remote, testRepo, "ghaexec", time.Hour, zaptest.NewLogger(t), nil)

		report, err := cm.CleanupOrphanedBranches(context.Background(), now, false)
		require.NoError(t, err)
		assert.Empty(t, report.Deleted)
		assert.Equal(t, []string{"ghaexec/20240726-143022-a7b3c1d2"}, report.Failed)
	})
}
