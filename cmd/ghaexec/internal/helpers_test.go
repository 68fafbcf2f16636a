package internal

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/dangazineu/ghaexec/test/e2e"
)

const (
	testOwner = "my-org"
	testRepo  = "my-repo"

	validWorkflow = `name: T
on: workflow_dispatch
jobs:
  t:
    runs-on: ubuntu-latest
    steps:
      - run: echo hi
`
)

// withMockGitHub points the configuration at a fresh mock server and
// removes every delay.
func withMockGitHub(t *testing.T, opts e2e.MockOptions) *e2e.MockGitHubServer {
	t.Helper()
	mock := e2e.NewMockGitHubServer(opts)
	server := httptest.NewServer(mock.Handler())
	t.Cleanup(server.Close)

	t.Setenv("GITHUB_OWNER", testOwner)
	t.Setenv("GITHUB_REPO", testRepo)
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GHAEXEC_GITHUB_API_URL", server.URL)
	t.Setenv("GHAEXEC_EXEC_SETTLE_DELAY", "0s")
	t.Setenv("GHAEXEC_POLL_INTERVAL", "0s")
	t.Setenv("GHAEXEC_POLL_MAX_TICKS", "5")
	return mock
}

// withoutGitHub clears the repository settings a developer may have exported.
func withoutGitHub(t *testing.T) {
	t.Helper()
	for _, v := range []string{"GITHUB_OWNER", "GITHUB_REPO", "GITHUB_TOKEN", "GITHUB_PERSONAL_ACCESS_TOKEN"} {
		t.Setenv(v, "")
	}
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
