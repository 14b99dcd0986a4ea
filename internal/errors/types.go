package errors

import "errors"

var (
	ErrUnknownBackend     = errors.New("unknown SCM backend")
	ErrUnsupportedBackend = errors.New("unsupported SCM backend")
	ErrAuthentication     = errors.New("authentication failed")
	ErrNetwork            = errors.New("network operation failed")
	ErrPathConflict       = errors.New("destination path conflict")
	ErrRevisionNotFound   = errors.New("revision not found")
	ErrNothingToCommit    = errors.New("nothing to commit")
	ErrCorruptWorkingCopy = errors.New("working copy is corrupt")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("SCM operation failed")
	ErrManifestNotFound   = errors.New("workspace manifest not found")
	ErrManifestInvalid    = errors.New("workspace manifest invalid")
	ErrFileSystem         = errors.New("filesystem operation failed")
)

// ConnectorError is the structured error returned by every connector and
// workflow operation. Type is one of the sentinels above so callers can use
// errors.Is(err, ErrNetwork) regardless of how deeply the error was wrapped.
type ConnectorError struct {
	Type        error
	Context     string
	Cause       string
	Suggestion  string
	OriginalErr error
}

func (e *ConnectorError) Error() string {
	if e.OriginalErr == nil {
		return e.Type.Error()
	}
	return e.OriginalErr.Error()
}

func (e *ConnectorError) Unwrap() []error {
	if e.OriginalErr == nil {
		return []error{e.Type}
	}
	return []error{e.Type, e.OriginalErr}
}

func NewConnectorError(errorType error, context, cause, suggestion string, originalErr error) *ConnectorError {
	return &ConnectorError{
		Type:        errorType,
		Context:     context,
		Cause:       cause,
		Suggestion:  suggestion,
		OriginalErr: originalErr,
	}
}

// TypeOf returns the sentinel kind carried by err, or nil when err is not a
// ConnectorError.
func TypeOf(err error) error {
	var connErr *ConnectorError
	if errors.As(err, &connErr) {
		return connErr.Type
	}
	return nil
}

func NewUnknownBackendError(kind string) *ConnectorError {
	return NewConnectorError(ErrUnknownBackend,
		"Failed to resolve SCM connector",
		"'"+kind+"' is not a recognised SCM kind",
		"Check the scm setting for typos; known kinds are git, bitbucket, svn and cvs",
		errors.New("unknown SCM backend: "+kind))
}

func NewUnsupportedBackendError(kind string) *ConnectorError {
	return NewConnectorError(ErrUnsupportedBackend,
		"Failed to resolve SCM connector",
		"'"+kind+"' is recognised but no connector is implemented for it yet",
		"Use a git or bitbucket repository until this backend is available",
		errors.New("unsupported SCM backend: "+kind))
}

func NewAuthenticationError(context, cause, suggestion string, originalErr error) *ConnectorError {
	return NewConnectorError(ErrAuthentication, context, cause, suggestion, originalErr)
}

func NewNetworkError(context, cause, suggestion string, originalErr error) *ConnectorError {
	return NewConnectorError(ErrNetwork, context, cause, suggestion, originalErr)
}

func NewPathConflictError(context, cause, suggestion string, originalErr error) *ConnectorError {
	return NewConnectorError(ErrPathConflict, context, cause, suggestion, originalErr)
}

func NewRevisionNotFoundError(context, cause, suggestion string, originalErr error) *ConnectorError {
	return NewConnectorError(ErrRevisionNotFound, context, cause, suggestion, originalErr)
}

func NewNothingToCommitError(context, cause, suggestion string, originalErr error) *ConnectorError {
	return NewConnectorError(ErrNothingToCommit, context, cause, suggestion, originalErr)
}

func NewCorruptWorkingCopyError(context, cause, suggestion string, originalErr error) *ConnectorError {
	return NewConnectorError(ErrCorruptWorkingCopy, context, cause, suggestion, originalErr)
}

func NewInvalidArgumentError(context, cause, suggestion string, originalErr error) *ConnectorError {
	return NewConnectorError(ErrInvalidArgument, context, cause, suggestion, originalErr)
}

func NewOperationError(context, cause, suggestion string, originalErr error) *ConnectorError {
	return NewConnectorError(ErrOperationFailed, context, cause, suggestion, originalErr)
}

func NewManifestNotFoundError(context, cause, suggestion string, originalErr error) *ConnectorError {
	return NewConnectorError(ErrManifestNotFound, context, cause, suggestion, originalErr)
}

func NewManifestInvalidError(context, cause, suggestion string, originalErr error) *ConnectorError {
	return NewConnectorError(ErrManifestInvalid, context, cause, suggestion, originalErr)
}

func NewFileSystemError(context, cause, suggestion string, originalErr error) *ConnectorError {
	return NewConnectorError(ErrFileSystem, context, cause, suggestion, originalErr)
}
