package e2e

import (
	"fmt"
	"os"

	"github.com/dangazineu/ghaexec/internal/config"
	"github.com/dangazineu/ghaexec/internal/interfaces"
)

// Environment variables that select a real repository for live tests.
const (
	EnvLiveOwner = "GHAEXEC_E2E_OWNER"
	EnvLiveRepo  = "GHAEXEC_E2E_REPO"
)

// LiveRepo returns the repository and token for tests against github.com.
// The repository must have Actions enabled.
func LiveRepo() (interfaces.RepoRef, config.Secret, error) {
	token := os.Getenv(config.EnvTokenFallback)
	if token == "" {
		return interfaces.RepoRef{}, "", fmt.Errorf("%s is not set", config.EnvTokenFallback)
	}
	repo := interfaces.RepoRef{Owner: os.Getenv(EnvLiveOwner), Name: os.Getenv(EnvLiveRepo)}
	if repo.Owner == "" || repo.Name == "" {
		return interfaces.RepoRef{}, "", fmt.Errorf("%s and %s must be set", EnvLiveOwner, EnvLiveRepo)
	}
	return repo, config.Secret(token), nil
}
