package scm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	gitlab "github.com/xanzy/go-gitlab"

	relerrors "relesia/internal/errors"
)

const defaultGitLabBaseURL = "https://gitlab.com"

// RepositoryLocator resolves a hosted project reference to a clone URL.
type RepositoryLocator interface {
	CloneURL(ctx context.Context, project string, preferSSH bool) (string, error)
}

// GitLabLocator looks projects up through the GitLab API so manifests can
// name a project ("group/name") instead of spelling out its clone URL.
type GitLabLocator struct {
	client *gitlab.Client
}

// NewGitLabLocator creates a locator for the GitLab instance at baseURL. An
// empty baseURL means gitlab.com; an empty token means anonymous access,
// which only sees public projects.
func NewGitLabLocator(baseURL, token string) (*GitLabLocator, error) {
	if baseURL == "" {
		baseURL = defaultGitLabBaseURL
	}
	apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"

	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
	if err != nil {
		return nil, relerrors.NewInvalidArgumentError(
			"Failed to create GitLab client",
			fmt.Sprintf("%q is not a usable GitLab URL", baseURL),
			"Set gitlab.baseUrl to the root URL of your GitLab instance",
			err)
	}

	return &GitLabLocator{client: client}, nil
}

// CloneURL returns the HTTP (or SSH when preferSSH is set) clone URL of the
// project at path "namespace/name".
func (l *GitLabLocator) CloneURL(ctx context.Context, project string, preferSSH bool) (string, error) {
	project = strings.Trim(project, "/")
	if project == "" || !strings.Contains(project, "/") {
		return "", relerrors.NewInvalidArgumentError(
			"Failed to locate GitLab project",
			fmt.Sprintf("%q is not a namespace/name project path", project),
			"Use the full project path, for example group/subgroup/repo",
			errors.New("gitlab: invalid project path"))
	}

	slog.Info("Looking up GitLab project", "project", project)
	found, resp, err := l.client.Projects.GetProject(project, nil, gitlab.WithContext(ctx))
	if err != nil {
		return "", classifyGitLabError(project, resp, err)
	}

	cloneURL := found.HTTPURLToRepo
	if preferSSH && found.SSHURLToRepo != "" {
		cloneURL = found.SSHURLToRepo
	}
	slog.Info("GitLab project located", "project", project, "id", found.ID, "url", cloneURL)
	return cloneURL, nil
}

func classifyGitLabError(project string, resp *gitlab.Response, err error) error {
	msg := fmt.Sprintf("Failed to locate GitLab project %s", project)
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return relerrors.NewAuthenticationError(msg,
				"GitLab rejected the access token",
				"Check the token referenced by gitlab.tokenEnv",
				err)
		case http.StatusNotFound:
			return relerrors.NewNetworkError(msg,
				"the project does not exist or is not visible with this token",
				"Check the project path and token scopes",
				err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return relerrors.NewNetworkError(msg, "the lookup was cancelled or timed out", "", err)
	}
	return relerrors.NewNetworkError(msg, "the GitLab API could not be reached", "Check the GitLab URL and your network connection", err)
}
