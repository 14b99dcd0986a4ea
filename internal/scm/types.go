package scm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// BackendKind identifies an SCM backend. Values are lower case; use
// NormalizeKind to turn user input into a BackendKind.
type BackendKind string

const (
	KindGit       BackendKind = "git"
	KindBitbucket BackendKind = "bitbucket"
	KindSVN       BackendKind = "svn"
	KindCVS       BackendKind = "cvs"
)

// NormalizeKind trims and case-folds kind text.
func NormalizeKind(text string) BackendKind {
	return BackendKind(strings.ToLower(strings.TrimSpace(text)))
}

func (k BackendKind) String() string {
	return string(k)
}

// RevisionID is an opaque backend-specific point in history.
type RevisionID string

func (r RevisionID) String() string {
	return string(r)
}

// Short returns the first seven characters of the revision, enough to show
// in console output.
func (r RevisionID) Short() string {
	if len(r) > 7 {
		return string(r[:7])
	}
	return string(r)
}

// Identity is the author recorded on a commit.
type Identity struct {
	Name  string
	Email string
}

func (i Identity) String() string {
	return fmt.Sprintf("%s <%s>", i.Name, i.Email)
}

// Credentials authenticate against a remote. Connectors read the fields they
// need; everything else treats the value as opaque. Its String and LogValue
// forms never reveal secrets.
type Credentials struct {
	Username      string
	Password      string
	Token         string
	SSHKeyPath    string
	SSHPassphrase string
}

// IsZero reports whether no credential material is set.
func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

func (c Credentials) method() string {
	switch {
	case c.SSHKeyPath != "":
		return "ssh-key"
	case c.Token != "":
		return "token"
	case c.Password != "":
		return "password"
	default:
		return "none"
	}
}

func (c Credentials) String() string {
	return "credentials(" + c.method() + ")"
}

func (c Credentials) GoString() string {
	return c.String()
}

func (c Credentials) LogValue() slog.Value {
	return slog.StringValue(c.method())
}

// WorkingCopy is a handle to a local checkout tracked against a remote.
type WorkingCopy struct {
	Path   string
	Kind   BackendKind
	Remote string
	Branch string
}

// Change is a single upstream revision not yet merged into a working copy.
type Change struct {
	Revision RevisionID
	Author   Identity
	Message  string
	When     time.Time
}

// Summary returns the short revision and the first line of the message.
func (c Change) Summary() string {
	subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return c.Revision.Short() + " " + subject
}

// ChangeSet lists the upstream changes on Ref that the working copy's HEAD
// does not contain, newest first.
type ChangeSet struct {
	Ref     string
	Changes []Change
}

// IsEmpty reports whether there are no pending upstream changes.
func (cs *ChangeSet) IsEmpty() bool {
	return cs == nil || len(cs.Changes) == 0
}

// Connector is the uniform contract every SCM backend implements. A single
// instance is not safe for concurrent use; callers needing parallelism
// resolve one connector each. Blocking operations honour ctx for deadlines
// and cancellation.
type Connector interface {
	// Kind returns the backend kind the connector implements.
	Kind() BackendKind
	// Clone materialises a working copy of sourceURL at destination.
	Clone(ctx context.Context, sourceURL, destination string, creds Credentials) (*WorkingCopy, error)
	// Open attaches to an existing working copy at path.
	Open(ctx context.Context, path string, creds Credentials) (*WorkingCopy, error)
	// FetchChanges retrieves upstream changes without merging them.
	FetchChanges(ctx context.Context, wc *WorkingCopy) (*ChangeSet, error)
	// Checkout moves the working copy to a branch, tag or revision.
	Checkout(ctx context.Context, wc *WorkingCopy, revision string) error
	// Stage marks paths, relative to the working copy root, for the next commit.
	Stage(ctx context.Context, wc *WorkingCopy, paths ...string) error
	// Commit records the staged changes as a new revision.
	Commit(ctx context.Context, wc *WorkingCopy, message string, author Identity) (RevisionID, error)
	// CurrentRevision returns the revision the working copy is at.
	CurrentRevision(ctx context.Context, wc *WorkingCopy) (RevisionID, error)
	// Close releases handles and forgets credentials.
	Close() error
}
