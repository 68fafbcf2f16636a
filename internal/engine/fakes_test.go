package engine

import (
	"context"
	"sync"
	"time"

	ghaerrors "github.com/dangazineu/ghaexec/internal/errors"
	"github.com/dangazineu/ghaexec/internal/interfaces"
)

// fakeRemote is a scripted interfaces.RemoteClient that records every call.
type fakeRemote struct {
	mu    sync.Mutex
	calls []string

	defaultBranch string
	headSHA       string
	runs          []interfaces.RunHandle
	statuses      []interfaces.RunStatus // returned in order; the last repeats
	jobs          []interfaces.JobSummary
	branches      []string

	errDefaultBranch error
	errHeadSHA       error
	errCreateBranch  error
	errPutFile       error
	errListRuns      error
	errGetRun        error
	errListJobs      error
	errDelete        error

	created   []string
	deleted   []string
	putPath   string
	putBranch string
	putBody   []byte
	getRuns   int
}

func newFakeRemote() *fakeRemote {
	now := time.Date(2024, 7, 26, 14, 30, 0, 0, time.UTC)
	return &fakeRemote{
		defaultBranch: "main",
		headSHA:       "abc123",
		runs:          []interfaces.RunHandle{{ID: 42, Status: "queued"}},
		statuses: []interfaces.RunStatus{
			{ID: 42, Status: "completed", Conclusion: "success", URL: "https://github.com/o/r/actions/runs/42", CreatedAt: now, UpdatedAt: now.Add(time.Minute)},
		},
		jobs: []interfaces.JobSummary{{Name: "build", Status: "completed", Conclusion: "success"}},
	}
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) GetDefaultBranch(ctx context.Context, repo interfaces.RepoRef) (string, error) {
	f.record("GetDefaultBranch")
	return f.defaultBranch, f.errDefaultBranch
}

func (f *fakeRemote) GetBranchHeadSHA(ctx context.Context, repo interfaces.RepoRef, branch string) (string, error) {
	f.record("GetBranchHeadSHA")
	return f.headSHA, f.errHeadSHA
}

func (f *fakeRemote) CreateBranch(ctx context.Context, repo interfaces.RepoRef, branch, fromSHA string) error {
	f.record("CreateBranch")
	if f.errCreateBranch != nil {
		return f.errCreateBranch
	}
	f.created = append(f.created, branch)
	return nil
}

func (f *fakeRemote) PutFile(ctx context.Context, repo interfaces.RepoRef, path string, content []byte, branch, message string) error {
	f.record("PutFile")
	f.putPath, f.putBranch, f.putBody = path, branch, content
	return f.errPutFile
}

func (f *fakeRemote) ListRunsForBranch(ctx context.Context, repo interfaces.RepoRef, branch string, limit int) ([]interfaces.RunHandle, error) {
	f.record("ListRunsForBranch")
	if f.errListRuns != nil {
		return nil, f.errListRuns
	}
	if len(f.runs) > limit {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeRemote) GetRun(ctx context.Context, repo interfaces.RepoRef, runID int64) (interfaces.RunStatus, error) {
	f.record("GetRun")
	if f.errGetRun != nil {
		return interfaces.RunStatus{}, f.errGetRun
	}
	i := f.getRuns
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.getRuns++
	return f.statuses[i], nil
}

func (f *fakeRemote) ListJobsForRun(ctx context.Context, repo interfaces.RepoRef, runID int64) ([]interfaces.JobSummary, error) {
	f.record("ListJobsForRun")
	return f.jobs, f.errListJobs
}

func (f *fakeRemote) DeleteBranch(ctx context.Context, repo interfaces.RepoRef, branch string) error {
	f.record("DeleteBranch")
	f.deleted = append(f.deleted, branch)
	return f.errDelete
}

func (f *fakeRemote) ListBranches(ctx context.Context, repo interfaces.RepoRef, prefix string) ([]string, error) {
	f.record("ListBranches")
	return f.branches, nil
}

func (f *fakeRemote) count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// recordingSleeper records requested durations without waiting.
type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func remoteErr(op string) error {
	return ghaerrors.RemoteAPI(op, 500, nil)
}

func pending(n int) []interfaces.RunStatus {
	out := make([]interfaces.RunStatus, n)
	for i := range out {
		out[i] = interfaces.RunStatus{ID: 42, Status: "in_progress"}
	}
	return out
}
