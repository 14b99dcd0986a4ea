package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/natefinch/lumberjack.v2"

	"relesia/internal/ui"
)

const (
	logFileName       = "relesia.log"
	logMaxSizeMB      = 10
	logMaxBackups     = 5
	logMaxAgeDays     = 30
	logDirEnvKey      = "RELESIA_LOG_DIR"
	writeTestFileName = ".test_write"
)

type ErrorHandler struct {
	logger  *slog.Logger
	console *ui.Console
	writer  io.WriteCloser
}

func NewErrorHandler() (*ErrorHandler, error) {
	logWriter, err := createLogWriter()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	return &ErrorHandler{
		logger:  logger,
		console: ui.NewConsole(),
		writer:  logWriter,
	}, nil
}

// Close flushes and closes the underlying log file.
func (h *ErrorHandler) Close() error {
	if h.writer == nil {
		return nil
	}
	return h.writer.Close()
}

// getOSStandardLogDir returns the OS-standard log directory path
func getOSStandardLogDir() (string, error) {
	if customLogDir := os.Getenv(logDirEnvKey); customLogDir != "" {
		return customLogDir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		// macOS: ~/Library/Logs/Relesia/
		return filepath.Join(homeDir, "Library", "Logs", "Relesia"), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		// XDG: ~/.local/share/relesia/logs/
		return filepath.Join(homeDir, ".local", "share", "relesia", "logs"), nil
	case "windows":
		appDataDir := os.Getenv("APPDATA")
		if appDataDir == "" {
			return filepath.Join(homeDir, "AppData", "Roaming", "Relesia", "logs"), nil
		}
		return filepath.Join(appDataDir, "Relesia", "logs"), nil
	default:
		return filepath.Join(homeDir, ".relesia", "logs"), nil
	}
}

// isWritableDir reports whether a file can be created inside dir.
func isWritableDir(dir string) bool {
	testFile := filepath.Join(dir, writeTestFileName)
	f, err := os.Create(testFile)
	if err != nil {
		return false
	}
	if err := f.Close(); err != nil {
		slog.Warn("Failed to close test file", "path", testFile, "error", err)
	}
	if err := os.Remove(testFile); err != nil {
		slog.Warn("Failed to remove test file", "path", testFile, "error", err)
	}
	return true
}

// createLogDirectoryWithFallback creates the log directory, falling back to the
// current directory when the OS-standard location is not writable.
func createLogDirectoryWithFallback() (string, bool, error) {
	logDir, err := getOSStandardLogDir()
	if err == nil {
		if mkErr := os.MkdirAll(logDir, 0750); mkErr == nil && isWritableDir(logDir) {
			return logDir, false, nil
		}
		err = fmt.Errorf("log directory %s is not writable", logDir)
	}

	currentDir, cwdErr := os.Getwd()
	if cwdErr != nil {
		return "", false, fmt.Errorf("failed to get current directory: %w", cwdErr)
	}
	if !isWritableDir(currentDir) {
		return "", false, fmt.Errorf("no writable log directory: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Warning: %s. Falling back to current directory for logging.\n", err)
	return currentDir, true, nil
}

func createLogWriter() (io.WriteCloser, error) {
	logDir, _, err := createLogDirectoryWithFallback()
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   filepath.Join(logDir, logFileName),
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
	}, nil
}

func (h *ErrorHandler) Handle(err error) {
	if err == nil {
		return
	}

	var connErr *ConnectorError
	if errors.As(err, &connErr) {
		h.handleConnectorError(connErr)
	} else {
		h.handleGenericError(err)
	}
}

func (h *ErrorHandler) handleConnectorError(err *ConnectorError) {
	h.logStructuredError(err)

	message := h.console.FormatErrorMessage(err.Context, err.Cause, err.Suggestion)
	h.console.PrintError(message)
}

func (h *ErrorHandler) handleGenericError(err error) {
	h.logger.Error("Unhandled error occurred",
		"error", err.Error(),
		"type", "generic",
	)

	h.console.PrintError(err.Error())
}

func (h *ErrorHandler) logStructuredError(err *ConnectorError) {
	logAttrs := []slog.Attr{
		slog.String("error", err.Error()),
		slog.String("type", getErrorTypeName(err)),
		slog.String("context", err.Context),
	}

	if err.Cause != "" {
		logAttrs = append(logAttrs, slog.String("cause", err.Cause))
	}

	if err.Suggestion != "" {
		logAttrs = append(logAttrs, slog.String("suggestion", err.Suggestion))
	}

	h.logger.LogAttrs(context.TODO(), slog.LevelError, "Relesia error occurred", logAttrs...)
}

// getErrorTypeName names the kind of err for logs. err may be a sentinel or
// any error wrapping a ConnectorError.
func getErrorTypeName(err error) string {
	errType := err
	if kind := TypeOf(err); kind != nil {
		errType = kind
	}

	switch errType {
	case ErrUnknownBackend:
		return "unknown_backend"
	case ErrUnsupportedBackend:
		return "unsupported_backend"
	case ErrAuthentication:
		return "authentication"
	case ErrNetwork:
		return "network"
	case ErrPathConflict:
		return "path_conflict"
	case ErrRevisionNotFound:
		return "revision_not_found"
	case ErrNothingToCommit:
		return "nothing_to_commit"
	case ErrCorruptWorkingCopy:
		return "corrupt_working_copy"
	case ErrInvalidArgument:
		return "invalid_argument"
	case ErrOperationFailed:
		return "operation_failed"
	case ErrManifestNotFound:
		return "manifest_not_found"
	case ErrManifestInvalid:
		return "manifest_invalid"
	case ErrFileSystem:
		return "filesystem"
	default:
		return "unknown"
	}
}
