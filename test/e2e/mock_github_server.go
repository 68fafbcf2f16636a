package e2e

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// MockOptions controls how the mock reacts to a staged workflow.
type MockOptions struct {
	// PollsUntilComplete is the number of run fetches after which a run
	// reports "completed". Zero completes on the first fetch.
	PollsUntilComplete int
	// Conclusion is reported for completed runs. Defaults to "success".
	Conclusion string
	// Jobs is the number of jobs per run. Defaults to 1.
	Jobs int
	// JobsPageSize caps jobs per page regardless of per_page. Zero means no cap.
	JobsPageSize int
	// NoRuns suppresses run creation when a workflow file is committed.
	NoRuns bool
	// FailDeletes makes every ref deletion fail with a 500.
	FailDeletes bool
}

// MockGitHubServer provides a mock implementation of the GitHub REST API
// subset used to stage and observe workflow runs.
type MockGitHubServer struct {
	server *http.Server
	opts   MockOptions

	mu       sync.RWMutex
	repos    map[string]*mockRepo
	runSeq   int64
	commitNo int
	deletes  []string
}

type mockRepo struct {
	defaultBranch string
	refs          map[string]string            // branch -> sha
	files         map[string]map[string][]byte // branch -> path -> content
	runs          []*WorkflowRun
}

// WorkflowRun represents a mock workflow run.
type WorkflowRun struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	HeadBranch string    `json:"head_branch"`
	HeadSHA    string    `json:"head_sha"`
	Event      string    `json:"event"`
	Status     string    `json:"status"`
	Conclusion *string   `json:"conclusion"`
	HTMLURL    string    `json:"html_url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	fetches int
	jobs    []WorkflowJob
}

// WorkflowJob represents a mock job of a run.
type WorkflowJob struct {
	ID          int64      `json:"id"`
	RunID       int64      `json:"run_id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Conclusion  *string    `json:"conclusion"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	HTMLURL     string     `json:"html_url"`
}

type gitRef struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA  string `json:"sha"`
		Type string `json:"type"`
	} `json:"object"`
}

// NewMockGitHubServer creates a new mock GitHub API server.
func NewMockGitHubServer(opts MockOptions) *MockGitHubServer {
	if opts.Conclusion == "" {
		opts.Conclusion = "success"
	}
	if opts.Jobs == 0 {
		opts.Jobs = 1
	}
	return &MockGitHubServer{
		opts:   opts,
		repos:  make(map[string]*mockRepo),
		runSeq: 1000,
	}
}

// Handler returns the API router. Use it with httptest.NewServer.
func (m *MockGitHubServer) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/repos/{owner}/{repo}", m.handleGetRepo).Methods("GET")
	router.HandleFunc("/repos/{owner}/{repo}/git/ref/{ref:.+}", m.handleGetRef).Methods("GET")
	router.HandleFunc("/repos/{owner}/{repo}/git/refs", m.handleCreateRef).Methods("POST")
	router.HandleFunc("/repos/{owner}/{repo}/git/refs/{ref:.+}", m.handleDeleteRef).Methods("DELETE")
	router.HandleFunc("/repos/{owner}/{repo}/git/matching-refs/{ref:.*}", m.handleMatchingRefs).Methods("GET")
	router.HandleFunc("/repos/{owner}/{repo}/contents/{path:.+}", m.handleGetContents).Methods("GET")
	router.HandleFunc("/repos/{owner}/{repo}/contents/{path:.+}", m.handlePutContents).Methods("PUT")
	router.HandleFunc("/repos/{owner}/{repo}/actions/runs", m.handleListRuns).Methods("GET")
	router.HandleFunc("/repos/{owner}/{repo}/actions/runs/{id:[0-9]+}", m.handleGetRun).Methods("GET")
	router.HandleFunc("/repos/{owner}/{repo}/actions/runs/{id:[0-9]+}/jobs", m.handleListJobs).Methods("GET")

	return router
}

// Start starts the mock server on the specified port.
func (m *MockGitHubServer) Start(port int) error {
	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return m.server.ListenAndServe()
}

// Stop stops the mock server.
func (m *MockGitHubServer) Stop() error {
	if m.server != nil {
		return m.server.Close()
	}
	return nil
}

// AddBranch creates branch on owner/repo pointing at a fresh commit.
func (m *MockGitHubServer) AddBranch(owner, repo, branch string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	sha := m.nextSHA()
	m.repo(owner, repo).refs[branch] = sha
	return sha
}

// Branches returns the branch names of owner/repo, sorted.
func (m *MockGitHubServer) Branches(owner, repo string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.repos[owner+"/"+repo]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(r.refs))
	for name := range r.refs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// File returns the content committed at path on branch, if any.
func (m *MockGitHubServer) File(owner, repo, branch, path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.repos[owner+"/"+repo]
	if !ok {
		return nil, false
	}
	content, ok := r.files[branch][path]
	return content, ok
}

// Deletes returns every branch deletion attempted, in order.
func (m *MockGitHubServer) Deletes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deletes...)
}

// repo returns the state of owner/name, creating it with a main branch. The
// caller must hold m.mu.
func (m *MockGitHubServer) repo(owner, name string) *mockRepo {
	key := owner + "/" + name
	r, ok := m.repos[key]
	if !ok {
		r = &mockRepo{
			defaultBranch: "main",
			refs:          map[string]string{"main": m.nextSHA()},
			files:         make(map[string]map[string][]byte),
		}
		m.repos[key] = r
	}
	return r
}

func (m *MockGitHubServer) nextSHA() string {
	m.commitNo++
	sum := sha1.Sum([]byte(strconv.Itoa(m.commitNo)))
	return hex.EncodeToString(sum[:])
}

func (m *MockGitHubServer) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	m.mu.Lock()
	repo := m.repo(vars["owner"], vars["repo"])
	body := map[string]any{
		"name":           vars["repo"],
		"full_name":      vars["owner"] + "/" + vars["repo"],
		"default_branch": repo.defaultBranch,
	}
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, body)
}

func (m *MockGitHubServer) handleGetRef(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	branch, ok := strings.CutPrefix(vars["ref"], "heads/")
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	m.mu.Lock()
	sha, exists := m.repo(vars["owner"], vars["repo"]).refs[branch]
	m.mu.Unlock()

	if !exists {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, newGitRef(branch, sha))
}

func (m *MockGitHubServer) handleCreateRef(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	branch, ok := strings.CutPrefix(req.Ref, "refs/heads/")
	if !ok || req.SHA == "" {
		writeError(w, http.StatusUnprocessableEntity, "Reference name must start with 'refs/'")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repo := m.repo(vars["owner"], vars["repo"])
	if _, exists := repo.refs[branch]; exists {
		writeError(w, http.StatusUnprocessableEntity, "Reference already exists")
		return
	}
	repo.refs[branch] = req.SHA
	writeJSON(w, http.StatusCreated, newGitRef(branch, req.SHA))
}

func (m *MockGitHubServer) handleDeleteRef(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	branch := strings.TrimPrefix(vars["ref"], "heads/")

	m.mu.Lock()
	defer m.mu.Unlock()

	m.deletes = append(m.deletes, branch)
	if m.opts.FailDeletes {
		writeError(w, http.StatusInternalServerError, "Server Error")
		return
	}

	repo := m.repo(vars["owner"], vars["repo"])
	if _, exists := repo.refs[branch]; !exists {
		writeError(w, http.StatusUnprocessableEntity, "Reference does not exist")
		return
	}
	delete(repo.refs, branch)
	delete(repo.files, branch)
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockGitHubServer) handleMatchingRefs(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	prefix, _ := strings.CutPrefix(vars["ref"], "heads/")

	m.mu.Lock()
	repo := m.repo(vars["owner"], vars["repo"])
	refs := []gitRef{}
	for branch, sha := range repo.refs {
		if strings.HasPrefix(branch, prefix) {
			refs = append(refs, newGitRef(branch, sha))
		}
	}
	m.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].Ref < refs[j].Ref })
	writeJSON(w, http.StatusOK, refs)
}

func (m *MockGitHubServer) handleGetContents(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	path := vars["path"]

	m.mu.Lock()
	repo := m.repo(vars["owner"], vars["repo"])
	branch := r.URL.Query().Get("ref")
	if branch == "" {
		branch = repo.defaultBranch
	}
	content, exists := repo.files[branch][path]
	m.mu.Unlock()

	if !exists {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"type":     "file",
		"encoding": "base64",
		"path":     path,
		"sha":      blobSHA(content),
		"content":  content,
	})
}

func (m *MockGitHubServer) handlePutContents(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	path := vars["path"]

	var req struct {
		Message string  `json:"message"`
		Content []byte  `json:"content"`
		Branch  string  `json:"branch"`
		SHA     *string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repo := m.repo(vars["owner"], vars["repo"])
	if _, exists := repo.refs[req.Branch]; !exists {
		writeError(w, http.StatusNotFound, "Branch not found")
		return
	}

	existing, exists := repo.files[req.Branch][path]
	switch {
	case exists && (req.SHA == nil || *req.SHA != blobSHA(existing)):
		writeError(w, http.StatusConflict, fmt.Sprintf("%s does not match", blobSHA(existing)))
		return
	case !exists && req.SHA != nil:
		writeError(w, http.StatusUnprocessableEntity, "sha wasn't supplied")
		return
	}

	if repo.files[req.Branch] == nil {
		repo.files[req.Branch] = make(map[string][]byte)
	}
	repo.files[req.Branch][path] = req.Content
	commit := m.nextSHA()
	repo.refs[req.Branch] = commit

	if !m.opts.NoRuns && strings.HasPrefix(path, ".github/workflows/") {
		m.startRun(vars["owner"], vars["repo"], repo, req.Branch, commit)
	}

	status := http.StatusCreated
	if exists {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"content": map[string]any{"path": path, "sha": blobSHA(req.Content)},
		"commit":  map[string]any{"sha": commit, "message": req.Message},
	})
}

// startRun queues a push run for branch. The caller must hold m.mu.
func (m *MockGitHubServer) startRun(owner, name string, repo *mockRepo, branch, sha string) {
	m.runSeq++
	now := time.Now().UTC().Truncate(time.Second)
	run := &WorkflowRun{
		ID:         m.runSeq,
		Name:       "ghaexec",
		HeadBranch: branch,
		HeadSHA:    sha,
		Event:      "push",
		Status:     "queued",
		HTMLURL:    fmt.Sprintf("https://github.com/%s/%s/actions/runs/%d", owner, name, m.runSeq),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i := 0; i < m.opts.Jobs; i++ {
		run.jobs = append(run.jobs, WorkflowJob{
			ID:      run.ID*100 + int64(i),
			RunID:   run.ID,
			Name:    fmt.Sprintf("job-%d", i+1),
			Status:  "queued",
			HTMLURL: fmt.Sprintf("%s/job/%d", run.HTMLURL, run.ID*100+int64(i)),
		})
	}
	repo.runs = append(repo.runs, run)
}

// advance moves run one step towards completion. The caller must hold m.mu.
func (m *MockGitHubServer) advance(run *WorkflowRun) {
	if run.Status == "completed" {
		return
	}
	run.fetches++
	run.UpdatedAt = run.CreatedAt.Add(time.Duration(run.fetches) * time.Second)
	if run.fetches <= m.opts.PollsUntilComplete {
		run.Status = "in_progress"
		return
	}

	conclusion := m.opts.Conclusion
	run.Status = "completed"
	run.Conclusion = &conclusion
	started := run.CreatedAt
	for i := range run.jobs {
		completed := run.UpdatedAt
		run.jobs[i].Status = "completed"
		run.jobs[i].Conclusion = &conclusion
		run.jobs[i].StartedAt = &started
		run.jobs[i].CompletedAt = &completed
	}
}

func (m *MockGitHubServer) findRun(owner, name, id string) *WorkflowRun {
	runID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}
	for _, run := range m.repo(owner, name).runs {
		if run.ID == runID {
			return run
		}
	}
	return nil
}

func (m *MockGitHubServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	query := r.URL.Query()
	branch := query.Get("branch")
	perPage, _ := strconv.Atoi(query.Get("per_page"))
	if perPage <= 0 {
		perPage = 30
	}

	m.mu.Lock()
	repo := m.repo(vars["owner"], vars["repo"])
	runs := []WorkflowRun{}
	for i := len(repo.runs) - 1; i >= 0 && len(runs) < perPage; i-- {
		if branch == "" || repo.runs[i].HeadBranch == branch {
			runs = append(runs, *repo.runs[i])
		}
	}
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"total_count":   len(runs),
		"workflow_runs": runs,
	})
}

func (m *MockGitHubServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	m.mu.Lock()
	run := m.findRun(vars["owner"], vars["repo"], vars["id"])
	var body WorkflowRun
	if run != nil {
		m.advance(run)
		body = *run
	}
	m.mu.Unlock()

	if run == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (m *MockGitHubServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(query.Get("per_page"))
	if perPage <= 0 {
		perPage = 30
	}
	if m.opts.JobsPageSize > 0 && perPage > m.opts.JobsPageSize {
		perPage = m.opts.JobsPageSize
	}

	m.mu.Lock()
	run := m.findRun(vars["owner"], vars["repo"], vars["id"])
	var jobs []WorkflowJob
	if run != nil {
		jobs = append(jobs, run.jobs...)
	}
	m.mu.Unlock()

	if run == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	start := (page - 1) * perPage
	if start > len(jobs) {
		start = len(jobs)
	}
	end := start + perPage
	if end > len(jobs) {
		end = len(jobs)
	}
	if end < len(jobs) {
		next := fmt.Sprintf("http://%s%s?page=%d&per_page=%d", r.Host, r.URL.Path, page+1, perPage)
		w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_count": len(jobs),
		"jobs":        jobs[start:end],
	})
}

func newGitRef(branch, sha string) gitRef {
	ref := gitRef{Ref: "refs/heads/" + branch}
	ref.Object.SHA = sha
	ref.Object.Type = "commit"
	return ref
}

func blobSHA(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"message":           message,
		"documentation_url": "https://docs.github.com/rest",
	})
}
