package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv(EnvOwner, "my-org")
	t.Setenv(EnvRepo, "my-repo")
	t.Setenv(EnvToken, "ghp_secret")
	t.Setenv(EnvTokenFallback, "")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ghaexec.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "my-org", cfg.GitHub.Owner)
	assert.Equal(t, "my-repo", cfg.GitHub.Repo)
	assert.Equal(t, "ghp_secret", cfg.GitHub.Token.Value())
	assert.Equal(t, 10*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 60, cfg.Poll.MaxTicks)
	assert.Equal(t, 5*time.Second, cfg.Exec.SettleDelay)
	assert.Equal(t, ".github/workflows/ghaexec.yml", cfg.Exec.WorkflowPath)
	assert.Equal(t, "ghaexec", cfg.Exec.BranchPrefix)
	assert.Equal(t, 24*time.Hour, cfg.Janitor.MaxAge)
	assert.Equal(t, 10.0, cfg.GitHub.RequestsPerSecond)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoadMissingRequired(t *testing.T) {
	testCases := []struct {
		name    string
		env     map[string]string
		missing []string
	}{
		{
			name:    "nothing set",
			env:     map[string]string{},
			missing: []string{EnvOwner, EnvRepo, EnvToken},
		},
		{
			name:    "token missing",
			env:     map[string]string{EnvOwner: "o", EnvRepo: "r"},
			missing: []string{EnvToken},
		},
		{
			name:    "repo missing",
			env:     map[string]string{EnvOwner: "o", EnvToken: "t"},
			missing: []string{EnvRepo},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, name := range []string{EnvOwner, EnvRepo, EnvToken, EnvTokenFallback} {
				t.Setenv(name, "")
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			require.Error(t, err)

			var missingErr *MissingError
			require.True(t, errors.As(err, &missingErr), "expected MissingError, got %v", err)
			assert.Equal(t, tc.missing, missingErr.Vars)
			for _, name := range tc.missing {
				assert.Contains(t, err.Error(), name)
			}
		})
	}
}

func TestLoadTokenFallback(t *testing.T) {
	setRequired(t)
	t.Setenv(EnvToken, "")
	t.Setenv(EnvTokenFallback, "ghp_fallback")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ghp_fallback", cfg.GitHub.Token.Value())
}

func TestLoadTokenPrecedence(t *testing.T) {
	setRequired(t)
	t.Setenv(EnvTokenFallback, "ghp_fallback")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ghp_secret", cfg.GitHub.Token.Value())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	setRequired(t)
	path := writeConfig(t, `
poll:
  interval: 2s
  max_ticks: 5
exec:
  branch_prefix: ci-run
log:
  format: console
policy:
  rules:
    - name: has-jobs
      expr: "has(doc.jobs)"
      message: workflow must declare jobs
`)
	t.Setenv("GHAEXEC_POLL_MAX_TICKS", "7")
	t.Setenv("GHAEXEC_JANITOR_MAX_AGE", "1h")
	t.Setenv("GHAEXEC_GITHUB_API_URL", "http://localhost:8080")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 7, cfg.Poll.MaxTicks)
	assert.Equal(t, "ci-run", cfg.Exec.BranchPrefix)
	assert.Equal(t, time.Hour, cfg.Janitor.MaxAge)
	assert.Equal(t, "http://localhost:8080", cfg.GitHub.APIURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	require.Len(t, cfg.Policy.Rules, 1)
	assert.Equal(t, PolicyRule{Name: "has-jobs", Expr: "has(doc.jobs)", Message: "workflow must declare jobs"}, cfg.Policy.Rules[0])
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "zero ticks", content: "poll:\n  max_ticks: 0\n"},
		{name: "negative interval", content: "poll:\n  interval: -1s\n"},
		{name: "workflow outside workflows dir", content: "exec:\n  workflow_path: ci.yml\n"},
		{name: "prefix with slash", content: "exec:\n  branch_prefix: ghaexec/\n"},
		{name: "bad format", content: "log:\n  format: xml\n"},
		{name: "rule without expr", content: "policy:\n  rules:\n    - name: x\n"},
		{name: "not yaml", content: "poll: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	setRequired(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestValidateLocalIgnoresRequired(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.ValidateLocal())
	assert.Error(t, cfg.Validate())
}

func TestEnvKey(t *testing.T) {
	testCases := map[string]string{
		"GITHUB_OWNER":                       "github.owner",
		"GITHUB_REPO":                        "github.repo",
		"GITHUB_TOKEN":                       "github.token",
		"LOG_LEVEL":                          "log.level",
		"GHAEXEC_POLL_INTERVAL":              "poll.interval",
		"GHAEXEC_EXEC_SETTLE_DELAY":          "exec.settle_delay",
		"GHAEXEC_GITHUB_REQUESTS_PER_SECOND": "github.requests_per_second",
		"GHAEXEC_METRICS":                    "",
		"GITHUB_ACTIONS":                     "",
		"HOME":                               "",
	}
	for in, want := range testCases {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("ghp_secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "ghp_secret", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(struct{ Token Secret }{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Token":"[REDACTED]"}`, string(data))

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}
