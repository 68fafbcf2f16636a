// Package remote implements the hosting-provider client on the GitHub REST API.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v63/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/dangazineu/ghaexec/internal/config"
	ghaerrors "github.com/dangazineu/ghaexec/internal/errors"
	"github.com/dangazineu/ghaexec/internal/interfaces"
)

const jobsPageSize = 100

// Options tunes the client.
type Options struct {
	// BaseURL overrides the API endpoint, e.g. for GitHub Enterprise.
	BaseURL string
	// RequestsPerSecond limits outgoing calls. Zero or less disables limiting.
	RequestsPerSecond float64
	// Burst is the limiter burst size.
	Burst int
}

// Client implements interfaces.RemoteClient and interfaces.BranchLister.
// Calls are not retried: a failed call is reported as an errors.CodeRemoteAPI
// error carrying the HTTP status.
type Client struct {
	gh      *github.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

var (
	_ interfaces.RemoteClient = (*Client)(nil)
	_ interfaces.BranchLister = (*Client)(nil)
)

// NewGitHubClient creates an authenticated client.
func NewGitHubClient(ctx context.Context, token config.Secret, opts Options, logger *zap.Logger) (*Client, error) {
	if !token.IsSet() {
		return nil, fmt.Errorf("GitHub token not set")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value()})
	gh := github.NewClient(oauth2.NewClient(ctx, ts))

	if opts.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", opts.BaseURL, err)
		}
		gh.BaseURL = base
	}

	return NewClient(gh, opts, logger), nil
}

// NewClient wraps an existing go-github client.
func NewClient(gh *github.Client, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{gh: gh, limiter: limiter, logger: logger}
}

// do waits for the limiter, runs call and maps its failure.
func (c *Client) do(ctx context.Context, op string, call func() (*github.Response, error)) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return ghaerrors.RemoteAPI(op, 0, err)
	}

	start := time.Now()
	resp, err := call()
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.logger.Debug("github api call",
		zap.String("op", op),
		zap.Int("status_code", status),
		zap.Duration("duration", time.Since(start)),
	)

	if err != nil {
		var errResp *github.ErrorResponse
		if status == 0 && errors.As(err, &errResp) && errResp.Response != nil {
			status = errResp.Response.StatusCode
		}
		return ghaerrors.RemoteAPI(op, status, err)
	}
	return nil
}

func (c *Client) GetDefaultBranch(ctx context.Context, repo interfaces.RepoRef) (string, error) {
	var r *github.Repository
	err := c.do(ctx, "get_repository", func() (resp *github.Response, err error) {
		r, resp, err = c.gh.Repositories.Get(ctx, repo.Owner, repo.Name)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	if r.GetDefaultBranch() == "" {
		return "", ghaerrors.RemoteAPI("get_repository", http.StatusOK, errors.New("repository has no default branch"))
	}
	return r.GetDefaultBranch(), nil
}

func (c *Client) GetBranchHeadSHA(ctx context.Context, repo interfaces.RepoRef, branch string) (string, error) {
	var ref *github.Reference
	err := c.do(ctx, "get_ref", func() (resp *github.Response, err error) {
		ref, resp, err = c.gh.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+branch)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return ref.GetObject().GetSHA(), nil
}

func (c *Client) CreateBranch(ctx context.Context, repo interfaces.RepoRef, branch, fromSHA string) error {
	ref := &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.String(fromSHA)},
	}
	err := c.do(ctx, "create_ref", func() (resp *github.Response, err error) {
		_, resp, err = c.gh.Git.CreateRef(ctx, repo.Owner, repo.Name, ref)
		return resp, err
	})

	var apiErr *ghaerrors.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity &&
		strings.Contains(strings.ToLower(apiErr.Err.Error()), "already exists") {
		return ghaerrors.BranchAlreadyExists(branch, apiErr.Err)
	}
	return err
}

// PutFile creates the file, or updates it if it already exists on branch.
// go-github base64-encodes content on the wire.
func (c *Client) PutFile(ctx context.Context, repo interfaces.RepoRef, path string, content []byte, branch, message string) error {
	var existing *github.RepositoryContent
	err := c.do(ctx, "get_contents", func() (resp *github.Response, err error) {
		existing, _, resp, err = c.gh.Repositories.GetContents(ctx, repo.Owner, repo.Name, path,
			&github.RepositoryContentGetOptions{Ref: branch})
		return resp, err
	})

	var apiErr *ghaerrors.Error
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		existing = nil
	case err != nil:
		return err
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(branch),
	}
	if existing != nil {
		opts.SHA = existing.SHA
		return c.do(ctx, "update_file", func() (resp *github.Response, err error) {
			_, resp, err = c.gh.Repositories.UpdateFile(ctx, repo.Owner, repo.Name, path, opts)
			return resp, err
		})
	}
	return c.do(ctx, "create_file", func() (resp *github.Response, err error) {
		_, resp, err = c.gh.Repositories.CreateFile(ctx, repo.Owner, repo.Name, path, opts)
		return resp, err
	})
}

func (c *Client) ListRunsForBranch(ctx context.Context, repo interfaces.RepoRef, branch string, limit int) ([]interfaces.RunHandle, error) {
	if limit < 1 {
		limit = 1
	}
	var runs *github.WorkflowRuns
	err := c.do(ctx, "list_runs", func() (resp *github.Response, err error) {
		runs, resp, err = c.gh.Actions.ListRepositoryWorkflowRuns(ctx, repo.Owner, repo.Name,
			&github.ListWorkflowRunsOptions{
				Branch:      branch,
				ListOptions: github.ListOptions{PerPage: limit},
			})
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	handles := make([]interfaces.RunHandle, 0, limit)
	for _, run := range runs.WorkflowRuns {
		if len(handles) == limit {
			break
		}
		handles = append(handles, interfaces.RunHandle{
			ID:         run.GetID(),
			Status:     run.GetStatus(),
			Conclusion: run.GetConclusion(),
		})
	}
	return handles, nil
}

func (c *Client) GetRun(ctx context.Context, repo interfaces.RepoRef, runID int64) (interfaces.RunStatus, error) {
	var run *github.WorkflowRun
	err := c.do(ctx, "get_run", func() (resp *github.Response, err error) {
		run, resp, err = c.gh.Actions.GetWorkflowRunByID(ctx, repo.Owner, repo.Name, runID)
		return resp, err
	})
	if err != nil {
		return interfaces.RunStatus{}, err
	}

	return interfaces.RunStatus{
		ID:         run.GetID(),
		Status:     run.GetStatus(),
		Conclusion: run.GetConclusion(),
		URL:        run.GetHTMLURL(),
		CreatedAt:  run.GetCreatedAt().Time,
		UpdatedAt:  run.GetUpdatedAt().Time,
	}, nil
}

// ListJobsForRun follows pagination until every job has been read.
func (c *Client) ListJobsForRun(ctx context.Context, repo interfaces.RepoRef, runID int64) ([]interfaces.JobSummary, error) {
	opts := &github.ListWorkflowJobsOptions{ListOptions: github.ListOptions{PerPage: jobsPageSize}}

	var summaries []interfaces.JobSummary
	for {
		var jobs *github.Jobs
		var next int
		err := c.do(ctx, "list_jobs", func() (resp *github.Response, err error) {
			jobs, resp, err = c.gh.Actions.ListWorkflowJobs(ctx, repo.Owner, repo.Name, runID, opts)
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, job := range jobs.Jobs {
			summaries = append(summaries, interfaces.JobSummary{
				Name:        job.GetName(),
				Status:      job.GetStatus(),
				Conclusion:  job.GetConclusion(),
				StartedAt:   timestamp(job.StartedAt),
				CompletedAt: timestamp(job.CompletedAt),
				URL:         job.GetHTMLURL(),
			})
		}

		if next == 0 {
			return summaries, nil
		}
		opts.Page = next
	}
}

func (c *Client) DeleteBranch(ctx context.Context, repo interfaces.RepoRef, branch string) error {
	return c.do(ctx, "delete_ref", func() (*github.Response, error) {
		return c.gh.Git.DeleteRef(ctx, repo.Owner, repo.Name, "heads/"+branch)
	})
}

// ListBranches returns branch names starting with prefix.
func (c *Client) ListBranches(ctx context.Context, repo interfaces.RepoRef, prefix string) ([]string, error) {
	opts := &github.ReferenceListOptions{
		Ref:         "heads/" + prefix,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var names []string
	for {
		var refs []*github.Reference
		var next int
		err := c.do(ctx, "list_refs", func() (resp *github.Response, err error) {
			refs, resp, err = c.gh.Git.ListMatchingRefs(ctx, repo.Owner, repo.Name, opts)
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, ref := range refs {
			if name, ok := strings.CutPrefix(ref.GetRef(), "refs/heads/"); ok {
				names = append(names, name)
			}
		}

		if next == 0 {
			return names, nil
		}
		opts.Page = next
	}
}

func timestamp(ts *github.Timestamp) *time.Time {
	if ts == nil {
		return nil
	}
	t := ts.Time
	return &t
}
