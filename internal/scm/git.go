package scm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	relerrors "relesia/internal/errors"
)

// defaultTokenUsername is sent with token credentials when no username is
// configured. GitLab and GitHub accept any non-empty user for tokens.
const defaultTokenUsername = "oauth2"

// sshAgentSocketEnv names the socket go-git's SSH agent auth connects to.
const sshAgentSocketEnv = "SSH_AUTH_SOCK"

// GitConnector implements Connector for git and git-compatible hosting
// (Bitbucket) using go-git. It keeps the credentials it was cloned or opened
// with and a cached handle to the last repository it touched.
type GitConnector struct {
	remoteName string
	creds      Credentials
	repo       *git.Repository
	repoPath   string
	now        func() time.Time
}

func NewGitConnector() *GitConnector {
	return &GitConnector{
		remoteName: git.DefaultRemoteName,
		now:        time.Now,
	}
}

func (g *GitConnector) Kind() BackendKind {
	return KindGit
}

// Clone clones sourceURL into destination. An empty or missing destination
// is cloned into; a destination that already holds a clone of the same
// remote is reused as-is; anything else is a path conflict.
func (g *GitConnector) Clone(ctx context.Context, sourceURL, destination string, creds Credentials) (*WorkingCopy, error) {
	if strings.TrimSpace(sourceURL) == "" || strings.TrimSpace(destination) == "" {
		return nil, relerrors.NewInvalidArgumentError(
			"Failed to clone repository",
			"both a source URL and a destination path are required",
			"",
			errors.New("clone: empty source URL or destination"))
	}
	if err := ctx.Err(); err != nil {
		return nil, classifyRemoteError("clone", sourceURL, err)
	}

	dest, err := filepath.Abs(destination)
	if err != nil {
		return nil, relerrors.NewInvalidArgumentError(
			"Failed to clone repository",
			fmt.Sprintf("destination %q cannot be made absolute", destination),
			"",
			err)
	}

	if wc, reused, err := g.reuseExistingClone(dest, sourceURL); err != nil || reused {
		if reused {
			g.creds = creds
		}
		return wc, err
	}

	auth, err := authMethod(sourceURL, creds)
	if err != nil {
		return nil, err
	}

	slog.Info("Cloning repository", "url", sourceURL, "destination", dest, "auth", creds)
	repo, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:        sourceURL,
		Auth:       auth,
		RemoteName: g.remoteName,
		Tags:       git.AllTags,
	})
	if err != nil {
		return nil, classifyRemoteError("clone", sourceURL, err)
	}

	g.creds = creds
	g.repo = repo
	g.repoPath = dest

	wc := &WorkingCopy{Path: dest, Kind: g.Kind(), Remote: sourceURL}
	wc.Branch = headBranch(repo)
	slog.Info("Repository cloned", "url", sourceURL, "destination", dest, "branch", wc.Branch)
	return wc, nil
}

// reuseExistingClone inspects dest before cloning. It returns reused=true
// with a working copy when dest is already a clone of sourceURL.
func (g *GitConnector) reuseExistingClone(dest, sourceURL string) (*WorkingCopy, bool, error) {
	info, err := os.Stat(dest)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, relerrors.NewFileSystemError(
			"Failed to clone repository",
			fmt.Sprintf("destination %s cannot be inspected", dest),
			"",
			err)
	}
	if !info.IsDir() {
		return nil, false, relerrors.NewPathConflictError(
			"Failed to clone repository",
			fmt.Sprintf("destination %s exists and is not a directory", dest),
			"Choose a different destination or remove the file",
			fmt.Errorf("clone: destination is a file: %s", dest))
	}

	entries, err := os.ReadDir(dest)
	if err != nil {
		return nil, false, relerrors.NewFileSystemError(
			"Failed to clone repository",
			fmt.Sprintf("destination %s cannot be read", dest),
			"",
			err)
	}
	if len(entries) == 0 {
		return nil, false, nil
	}

	repo, err := git.PlainOpen(dest)
	if err == nil && remoteURL(repo, g.remoteName) == sourceURL {
		slog.Info("Destination already holds a clone, reusing it", "url", sourceURL, "destination", dest)
		g.repo = repo
		g.repoPath = dest
		return &WorkingCopy{Path: dest, Kind: g.Kind(), Remote: sourceURL, Branch: headBranch(repo)}, true, nil
	}

	return nil, false, relerrors.NewPathConflictError(
		"Failed to clone repository",
		fmt.Sprintf("destination %s is not empty", dest),
		"Choose an empty destination or remove the existing files",
		fmt.Errorf("clone: destination not empty: %s", dest))
}

// Open attaches to an existing git working copy at path.
func (g *GitConnector) Open(ctx context.Context, path string, creds Credentials) (*WorkingCopy, error) {
	if err := ctx.Err(); err != nil {
		return nil, relerrors.NewOperationError("Failed to open working copy", "the operation was cancelled", "", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, relerrors.NewInvalidArgumentError(
			"Failed to open working copy",
			fmt.Sprintf("path %q cannot be made absolute", path),
			"",
			err)
	}

	wc := &WorkingCopy{Path: abs, Kind: g.Kind()}
	repo, err := g.repository(wc)
	if err != nil {
		return nil, err
	}

	g.creds = creds
	wc.Remote = remoteURL(repo, g.remoteName)
	wc.Branch = headBranch(repo)
	return wc, nil
}

// FetchChanges fetches the remote and reports the commits on the tracked
// upstream branch that HEAD does not contain. Nothing is merged.
func (g *GitConnector) FetchChanges(ctx context.Context, wc *WorkingCopy) (*ChangeSet, error) {
	repo, err := g.repository(wc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, classifyRemoteError("fetch", wc.Remote, err)
	}

	remote := remoteURL(repo, g.remoteName)
	auth, err := authMethod(remote, g.creds)
	if err != nil {
		return nil, err
	}

	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: g.remoteName,
		Auth:       auth,
		Tags:       git.AllTags,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, classifyRemoteError("fetch", remote, err)
	}

	changes, err := g.pendingChanges(repo, wc)
	if err != nil {
		return nil, err
	}
	slog.Info("Fetched upstream changes", "path", wc.Path, "ref", changes.Ref, "pending", len(changes.Changes))
	return changes, nil
}

func (g *GitConnector) pendingChanges(repo *git.Repository, wc *WorkingCopy) (*ChangeSet, error) {
	head, err := repo.Head()
	if err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, corruptError(wc.Path, err)
	}

	branch := wc.Branch
	if head != nil && head.Name().IsBranch() {
		branch = head.Name().Short()
	}
	if branch == "" {
		return &ChangeSet{}, nil
	}

	refName := plumbing.NewRemoteReferenceName(g.remoteName, branch)
	changes := &ChangeSet{Ref: refName.Short()}

	upstream, err := repo.Reference(refName, true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return changes, nil
	}
	if err != nil {
		return nil, corruptError(wc.Path, err)
	}
	if head != nil && upstream.Hash() == head.Hash() {
		return changes, nil
	}

	stop := map[plumbing.Hash]bool{}
	if head != nil {
		upstreamCommit, err := repo.CommitObject(upstream.Hash())
		if err != nil {
			return nil, corruptError(wc.Path, err)
		}
		headCommit, err := repo.CommitObject(head.Hash())
		if err != nil {
			return nil, corruptError(wc.Path, err)
		}
		bases, err := upstreamCommit.MergeBase(headCommit)
		if err != nil {
			return nil, corruptError(wc.Path, err)
		}
		for _, base := range bases {
			stop[base.Hash] = true
		}
	}

	iter, err := repo.Log(&git.LogOptions{From: upstream.Hash()})
	if err != nil {
		return nil, corruptError(wc.Path, err)
	}
	defer iter.Close()

	err = iter.ForEach(func(c *object.Commit) error {
		if stop[c.Hash] {
			return storer.ErrStop
		}
		changes.Changes = append(changes.Changes, Change{
			Revision: RevisionID(c.Hash.String()),
			Author:   Identity{Name: c.Author.Name, Email: c.Author.Email},
			Message:  c.Message,
			When:     c.Author.When,
		})
		return nil
	})
	if err != nil {
		return nil, corruptError(wc.Path, err)
	}
	return changes, nil
}

// Checkout moves the working copy to revision, trying in order a local
// branch, a remote branch (creating a local tracking branch), then any
// revision expression go-git can resolve: tags, full or abbreviated hashes,
// HEAD~n and so on.
func (g *GitConnector) Checkout(ctx context.Context, wc *WorkingCopy, revision string) error {
	revision = strings.TrimSpace(revision)
	if revision == "" {
		return relerrors.NewInvalidArgumentError(
			"Failed to check out revision",
			"no revision was given",
			"Pass a branch, tag or commit hash",
			errors.New("checkout: empty revision"))
	}

	repo, err := g.repository(wc)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return relerrors.NewOperationError("Failed to check out revision", "the operation was cancelled", "", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return corruptError(wc.Path, err)
	}

	opts, branch, err := g.checkoutOptions(repo, revision)
	if err != nil {
		return err
	}

	if err := worktree.Checkout(opts); err != nil {
		if errors.Is(err, git.ErrUnstagedChanges) {
			return relerrors.NewOperationError(
				fmt.Sprintf("Failed to check out %s", revision),
				"the working copy has uncommitted changes",
				"Commit or discard local changes before switching revisions",
				err)
		}
		return relerrors.NewOperationError(
			fmt.Sprintf("Failed to check out %s", revision),
			"git checkout failed",
			"",
			err)
	}

	if opts.Create {
		err := repo.CreateBranch(&config.Branch{
			Name:   branch,
			Remote: g.remoteName,
			Merge:  plumbing.NewBranchReferenceName(branch),
		})
		if err != nil && !errors.Is(err, git.ErrBranchExists) {
			slog.Warn("Failed to record upstream for branch", "branch", branch, "error", err)
		}
	}

	wc.Branch = branch
	slog.Info("Checked out revision", "path", wc.Path, "revision", revision, "branch", branch)
	return nil
}

func (g *GitConnector) checkoutOptions(repo *git.Repository, revision string) (*git.CheckoutOptions, string, error) {
	local := plumbing.NewBranchReferenceName(revision)
	if _, err := repo.Reference(local, true); err == nil {
		return &git.CheckoutOptions{Branch: local}, revision, nil
	}

	remote := plumbing.NewRemoteReferenceName(g.remoteName, revision)
	if ref, err := repo.Reference(remote, true); err == nil {
		return &git.CheckoutOptions{Branch: local, Hash: ref.Hash(), Create: true}, revision, nil
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return nil, "", relerrors.NewRevisionNotFoundError(
			fmt.Sprintf("Failed to check out %s", revision),
			fmt.Sprintf("'%s' is not a known branch, tag or commit", revision),
			"Fetch the latest changes or check the revision name",
			err)
	}
	return &git.CheckoutOptions{Hash: *hash}, "", nil
}

// Stage adds paths, relative to the working copy root, to the index.
// Deleted files are staged as removals. "." stages everything.
func (g *GitConnector) Stage(ctx context.Context, wc *WorkingCopy, paths ...string) error {
	if len(paths) == 0 {
		return relerrors.NewInvalidArgumentError(
			"Failed to stage changes",
			"no paths were given",
			"Pass the files to stage, or \".\" for everything",
			errors.New("stage: no paths"))
	}

	repo, err := g.repository(wc)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return relerrors.NewOperationError("Failed to stage changes", "the operation was cancelled", "", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return corruptError(wc.Path, err)
	}

	for _, path := range paths {
		clean := filepath.Clean(path)
		if !filepath.IsLocal(clean) && clean != "." {
			return relerrors.NewInvalidArgumentError(
				"Failed to stage changes",
				fmt.Sprintf("%q is outside the working copy", path),
				"",
				fmt.Errorf("stage: path escapes working copy: %s", path))
		}

		if clean == "." {
			err = worktree.AddWithOptions(&git.AddOptions{All: true})
		} else {
			_, err = worktree.Add(filepath.ToSlash(clean))
		}
		if errors.Is(err, index.ErrEntryNotFound) || os.IsNotExist(err) {
			return relerrors.NewInvalidArgumentError(
				"Failed to stage changes",
				fmt.Sprintf("%q does not exist in the working copy", path),
				"",
				err)
		}
		if err != nil {
			return relerrors.NewOperationError(
				"Failed to stage changes",
				fmt.Sprintf("git add %s failed", path),
				"",
				err)
		}
	}
	return nil
}

// Commit records the staged changes. Unstaged modifications are not
// included.
func (g *GitConnector) Commit(ctx context.Context, wc *WorkingCopy, message string, author Identity) (RevisionID, error) {
	if strings.TrimSpace(message) == "" {
		return "", relerrors.NewInvalidArgumentError(
			"Failed to commit",
			"the commit message is empty",
			"Provide a commit message",
			errors.New("commit: empty message"))
	}
	if author.Name == "" || author.Email == "" {
		return "", relerrors.NewInvalidArgumentError(
			"Failed to commit",
			"the author name and email are required",
			"Set the author in the workspace manifest or pass --author-name and --author-email",
			errors.New("commit: incomplete author identity"))
	}

	repo, err := g.repository(wc)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", relerrors.NewOperationError("Failed to commit", "the operation was cancelled", "", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", corruptError(wc.Path, err)
	}

	status, err := worktree.Status()
	if err != nil {
		return "", corruptError(wc.Path, err)
	}
	if !hasStagedChanges(status) {
		return "", nothingToCommit(wc.Path, nil)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author.Name,
			Email: author.Email,
			When:  g.now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		return "", nothingToCommit(wc.Path, err)
	}
	if err != nil {
		return "", relerrors.NewOperationError("Failed to commit", "git commit failed", "", err)
	}

	slog.Info("Created commit", "path", wc.Path, "revision", hash.String(), "author", author.Name)
	return RevisionID(hash.String()), nil
}

func hasStagedChanges(status git.Status) bool {
	for _, fs := range status {
		if fs.Staging != git.Unmodified && fs.Staging != git.Untracked {
			return true
		}
	}
	return false
}

func nothingToCommit(path string, err error) error {
	return relerrors.NewNothingToCommitError(
		"Failed to commit",
		fmt.Sprintf("no changes are staged in %s", path),
		"Stage the files to commit first",
		err)
}

// CurrentRevision returns the commit HEAD points at.
func (g *GitConnector) CurrentRevision(ctx context.Context, wc *WorkingCopy) (RevisionID, error) {
	repo, err := g.repository(wc)
	if err != nil {
		return "", err
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", relerrors.NewRevisionNotFoundError(
			"Failed to read current revision",
			fmt.Sprintf("%s has no commits yet", wc.Path),
			"",
			err)
	}
	if err != nil {
		return "", corruptError(wc.Path, err)
	}
	return RevisionID(head.Hash().String()), nil
}

func (g *GitConnector) Close() error {
	g.repo = nil
	g.repoPath = ""
	g.creds = Credentials{}
	return nil
}

// repository returns the go-git repository behind wc, reusing the cached
// handle when wc points at the same path.
func (g *GitConnector) repository(wc *WorkingCopy) (*git.Repository, error) {
	if wc == nil || wc.Path == "" {
		return nil, relerrors.NewInvalidArgumentError(
			"Invalid working copy",
			"no working copy was given",
			"",
			errors.New("nil working copy"))
	}
	if wc.Kind != "" && wc.Kind != KindGit {
		return nil, relerrors.NewInvalidArgumentError(
			"Invalid working copy",
			fmt.Sprintf("working copy %s belongs to the %s backend", wc.Path, wc.Kind),
			"Resolve a connector for the working copy's own backend",
			fmt.Errorf("git connector given %s working copy", wc.Kind))
	}

	if g.repo != nil && g.repoPath == wc.Path {
		return g.repo, nil
	}

	repo, err := git.PlainOpen(wc.Path)
	if err != nil {
		return nil, corruptError(wc.Path, err)
	}
	g.repo = repo
	g.repoPath = wc.Path
	return repo, nil
}

func corruptError(path string, err error) error {
	cause := fmt.Sprintf("%s cannot be read as a git working copy", path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		cause = fmt.Sprintf("%s is not a git working copy", path)
	}
	return relerrors.NewCorruptWorkingCopyError(
		"Failed to read working copy",
		cause,
		"Re-clone the repository into an empty directory",
		err)
}

func remoteURL(repo *git.Repository, name string) string {
	remote, err := repo.Remote(name)
	if err != nil {
		return ""
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}

func headBranch(repo *git.Repository) string {
	head, err := repo.Head()
	if err != nil || !head.Name().IsBranch() {
		return ""
	}
	return head.Name().Short()
}

// authMethod maps credentials onto the go-git auth method matching the
// URL's transport. HTTP remotes get basic auth; SSH remotes get a public key
// when a key path is set and fall back to the SSH agent otherwise. An SSH
// remote with neither a key nor a running agent cannot authenticate.
func authMethod(rawURL string, creds Credentials) (transport.AuthMethod, error) {
	if rawURL == "" {
		return nil, nil
	}

	endpoint, err := transport.NewEndpoint(rawURL)
	if err != nil {
		if creds.IsZero() {
			return nil, nil
		}
		return nil, relerrors.NewInvalidArgumentError(
			"Invalid repository URL",
			fmt.Sprintf("%q is not a valid git URL", rawURL),
			"",
			err)
	}

	if endpoint.Protocol == "ssh" && creds.SSHKeyPath == "" {
		if os.Getenv(sshAgentSocketEnv) == "" {
			return nil, relerrors.NewAuthenticationError(
				fmt.Sprintf("Failed to authenticate with %s", rawURL),
				"no SSH key is configured and no SSH agent is running",
				"Set an SSH key path for this repository or start ssh-agent",
				fmt.Errorf("ssh remote %s: no key and %s is not set", rawURL, sshAgentSocketEnv))
		}
		return nil, nil
	}
	if creds.IsZero() {
		return nil, nil
	}

	switch endpoint.Protocol {
	case "ssh":
		user := creds.Username
		if user == "" {
			user = endpoint.User
		}
		if user == "" {
			user = "git"
		}
		keys, err := gitssh.NewPublicKeysFromFile(user, creds.SSHKeyPath, creds.SSHPassphrase)
		if err != nil {
			return nil, relerrors.NewAuthenticationError(
				"Failed to load SSH key",
				fmt.Sprintf("the key at %s could not be read or decrypted", creds.SSHKeyPath),
				"Check the key path and passphrase",
				err)
		}
		return keys, nil
	case "http", "https":
		switch {
		case creds.Token != "":
			user := creds.Username
			if user == "" {
				user = defaultTokenUsername
			}
			return &http.BasicAuth{Username: user, Password: creds.Token}, nil
		case creds.Password != "":
			return &http.BasicAuth{Username: creds.Username, Password: creds.Password}, nil
		}
	}
	return nil, nil
}

// classifyRemoteError maps go-git transport failures onto the connector
// error kinds.
func classifyRemoteError(op, rawURL string, err error) error {
	msg := fmt.Sprintf("Failed to %s %s", op, rawURL)

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return relerrors.NewNetworkError(msg,
			"the operation was cancelled or timed out",
			"Retry with a longer timeout",
			err)
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod),
		strings.Contains(err.Error(), "unable to authenticate"),
		strings.Contains(err.Error(), "SSH agent"):
		return relerrors.NewAuthenticationError(msg,
			"the remote rejected the supplied credentials",
			"Check the username, token or SSH key for this repository",
			err)
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return relerrors.NewNetworkError(msg,
			"the remote repository was not found",
			"Check the repository URL and that your credentials can see it",
			err)
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		return relerrors.NewOperationError(msg,
			"the remote repository has no commits",
			"Push an initial commit before cloning",
			err)
	case errors.As(err, &netErr):
		return relerrors.NewNetworkError(msg,
			"the remote host could not be reached",
			"Check the repository URL and your network connection",
			err)
	default:
		return relerrors.NewOperationError(msg, "the git operation failed", "", err)
	}
}
