package parser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	relerrors "relesia/internal/errors"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	filePath := filepath.Join(t.TempDir(), "relesia.yaml")
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return filePath
}

func TestParse_ValidWorkspace(t *testing.T) {
	validYaml := `apiVersion: v1
kind: Workspace
metadata:
  name: release-train
  description: Repositories cut together for a release
  labels:
    team: platform
spec:
  author:
    name: Release Bot
    email: release-bot@example.com
  repositories:
    - name: api
      scm: git
      url: https://bitbucket.org/acme/api.git
      destination: ./checkouts/api
      revision: release/2.4
      credentials:
        usernameEnv: BITBUCKET_USER
        passwordEnv: BITBUCKET_APP_PASSWORD
      overlay:
        source: ./templates/api
        message: Apply release overlay
    - name: web
      scm: Git
      gitlab:
        baseUrl: https://gitlab.example.com
        project: frontend/web
        preferSsh: true
      destination: /srv/checkouts/web
      credentials:
        tokenEnv: GITLAB_TOKEN
        sshKeyPath: /home/bot/.ssh/id_ed25519
`

	filePath := writeManifest(t, validYaml)
	ws, err := Parse(filePath)
	if err != nil {
		t.Fatalf("Expected successful parsing, got error: %v", err)
	}

	if ws.APIVersion != "v1" {
		t.Errorf("Expected APIVersion 'v1', got '%s'", ws.APIVersion)
	}
	if ws.Kind != "Workspace" {
		t.Errorf("Expected Kind 'Workspace', got '%s'", ws.Kind)
	}
	if ws.Metadata.Name != "release-train" {
		t.Errorf("Expected Name 'release-train', got '%s'", ws.Metadata.Name)
	}
	if ws.Metadata.Labels["team"] != "platform" {
		t.Errorf("Expected label team=platform, got %v", ws.Metadata.Labels)
	}
	if ws.Spec.Author.Email != "release-bot@example.com" {
		t.Errorf("Expected author email, got '%s'", ws.Spec.Author.Email)
	}
	if len(ws.Spec.Repositories) != 2 {
		t.Fatalf("Expected 2 repositories, got %d", len(ws.Spec.Repositories))
	}

	api := ws.Spec.Repositories[0]
	baseDir := filepath.Dir(filePath)
	if api.Destination != filepath.Join(baseDir, "checkouts", "api") {
		t.Errorf("Expected destination resolved against manifest dir, got '%s'", api.Destination)
	}
	if api.Revision != "release/2.4" {
		t.Errorf("Expected revision 'release/2.4', got '%s'", api.Revision)
	}
	if api.Credentials.PasswordEnv != "BITBUCKET_APP_PASSWORD" {
		t.Errorf("Expected passwordEnv, got '%s'", api.Credentials.PasswordEnv)
	}
	if api.Overlay == nil || api.Overlay.Source != filepath.Join(baseDir, "templates", "api") {
		t.Errorf("Expected overlay source resolved against manifest dir, got %+v", api.Overlay)
	}

	web := ws.Spec.Repositories[1]
	if web.GitLab == nil || web.GitLab.Project != "frontend/web" || !web.GitLab.PreferSSH {
		t.Errorf("Expected GitLab source, got %+v", web.GitLab)
	}
	if web.GitLab != nil && web.GitLab.BaseURL != "https://gitlab.example.com" {
		t.Errorf("Expected GitLab base URL, got '%s'", web.GitLab.BaseURL)
	}
	if web.Destination != "/srv/checkouts/web" {
		t.Errorf("Expected absolute destination unchanged, got '%s'", web.Destination)
	}
	if web.Credentials.SSHKeyPath != "/home/bot/.ssh/id_ed25519" {
		t.Errorf("Expected sshKeyPath, got '%s'", web.Credentials.SSHKeyPath)
	}
	if web.Overlay != nil {
		t.Errorf("Expected no overlay, got %+v", web.Overlay)
	}
}

func TestParse_FileNotFound(t *testing.T) {
	_, err := Parse("nonexistent-file.yaml")
	if err == nil {
		t.Fatal("Expected error for non-existent file, got nil")
	}
	if !errors.Is(err, relerrors.ErrManifestNotFound) {
		t.Errorf("Expected manifest not found error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "workspace manifest not found") {
		t.Errorf("Expected 'not found' message, got: %v", err)
	}
}

func TestParse_MalformedYAML(t *testing.T) {
	malformedYaml := `apiVersion: v1
kind: Workspace
metadata:
  name: test
  description: "unclosed quote
spec:
  invalid yaml structure
`

	_, err := Parse(writeManifest(t, malformedYaml))
	if err == nil {
		t.Fatal("Expected error for malformed YAML, got nil")
	}
	if !errors.Is(err, relerrors.ErrManifestInvalid) {
		t.Errorf("Expected manifest invalid error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "failed to read workspace manifest") {
		t.Errorf("Expected 'failed to read workspace manifest' error, got: %v", err)
	}
}

func TestParse_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name          string
		yaml          string
		expectedError string
	}{
		{
			name: "missing apiVersion",
			yaml: `kind: Workspace
metadata:
  name: test
spec:
  repositories:
    - name: api
      scm: git
      url: https://example.com/api.git
      destination: ./api
`,
			expectedError: "field 'APIVersion' is required but missing",
		},
		{
			name: "wrong kind value",
			yaml: `apiVersion: v1
kind: Blueprint
metadata:
  name: test
spec:
  repositories:
    - name: api
      scm: git
      url: https://example.com/api.git
      destination: ./api
`,
			expectedError: "field 'Kind' must be 'Workspace'",
		},
		{
			name: "missing metadata name",
			yaml: `apiVersion: v1
kind: Workspace
metadata:
  description: test
spec:
  repositories:
    - name: api
      scm: git
      url: https://example.com/api.git
      destination: ./api
`,
			expectedError: "field 'Metadata.Name' is required but missing",
		},
		{
			name: "no repositories",
			yaml: `apiVersion: v1
kind: Workspace
metadata:
  name: test
spec:
  repositories: []
`,
			expectedError: "field 'Spec.Repositories'",
		},
		{
			name: "missing scm kind",
			yaml: `apiVersion: v1
kind: Workspace
metadata:
  name: test
spec:
  repositories:
    - name: api
      url: https://example.com/api.git
      destination: ./api
`,
			expectedError: "field 'Spec.Repositories[0].SCM' is required but missing",
		},
		{
			name: "neither url nor gitlab",
			yaml: `apiVersion: v1
kind: Workspace
metadata:
  name: test
spec:
  repositories:
    - name: api
      scm: git
      destination: ./api
`,
			expectedError: "field 'Spec.Repositories[0].URL' is required when 'GitLab' is not set",
		},
		{
			name: "both url and gitlab",
			yaml: `apiVersion: v1
kind: Workspace
metadata:
  name: test
spec:
  repositories:
    - name: api
      scm: git
      url: https://example.com/api.git
      gitlab:
        project: group/api
      destination: ./api
`,
			expectedError: "field 'Spec.Repositories[0].URL' cannot be combined with 'GitLab'",
		},
		{
			name: "duplicate repository names",
			yaml: `apiVersion: v1
kind: Workspace
metadata:
  name: test
spec:
  repositories:
    - name: api
      scm: git
      url: https://example.com/api.git
      destination: ./api
    - name: api
      scm: git
      url: https://example.com/api-fork.git
      destination: ./api-fork
`,
			expectedError: "field 'Spec.Repositories' has duplicate Name values",
		},
		{
			name: "overlay without message",
			yaml: `apiVersion: v1
kind: Workspace
metadata:
  name: test
spec:
  repositories:
    - name: api
      scm: git
      url: https://example.com/api.git
      destination: ./api
      overlay:
        source: ./templates
`,
			expectedError: "field 'Spec.Repositories[0].Overlay.Message' is required but missing",
		},
		{
			name: "invalid gitlab base URL",
			yaml: `apiVersion: v1
kind: Workspace
metadata:
  name: test
spec:
  repositories:
    - name: api
      scm: git
      gitlab:
        baseUrl: not-a-url
        project: group/api
      destination: ./api
`,
			expectedError: "field 'Spec.Repositories[0].GitLab.BaseURL' must be a valid URL",
		},
		{
			name: "invalid author email",
			yaml: `apiVersion: v1
kind: Workspace
metadata:
  name: test
spec:
  author:
    name: Bot
    email: not-an-email
  repositories:
    - name: api
      scm: git
      url: https://example.com/api.git
      destination: ./api
`,
			expectedError: "field 'Spec.Author.Email' must be a valid email address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(writeManifest(t, tt.yaml))
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !errors.Is(err, relerrors.ErrManifestInvalid) {
				t.Errorf("Expected manifest invalid error, got: %v", err)
			}
			if !strings.Contains(err.Error(), tt.expectedError) {
				t.Errorf("Expected error containing '%s', got: %v", tt.expectedError, err)
			}
		})
	}
}

func TestParse_UnknownSCMKindIsNotAManifestError(t *testing.T) {
	// Backend resolution happens at sync time so the manifest can name kinds
	// that a later build supports.
	yaml := `apiVersion: v1
kind: Workspace
metadata:
  name: test
spec:
  repositories:
    - name: legacy
      scm: svn
      url: https://svn.example.com/legacy
      destination: ./legacy
`
	ws, err := Parse(writeManifest(t, yaml))
	if err != nil {
		t.Fatalf("Expected successful parsing, got error: %v", err)
	}
	if ws.Spec.Repositories[0].SCM != "svn" {
		t.Errorf("Expected scm 'svn', got '%s'", ws.Spec.Repositories[0].SCM)
	}
}
