// Package overlay copies a template directory over a working copy so the
// result can be staged and committed.
package overlay

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	relerrors "relesia/internal/errors"
)

// gitDirName is never copied out of a template.
const gitDirName = ".git"

// Plan lists the files Apply would write, relative to the working copy root,
// without touching the file system.
func Plan(source string) ([]string, error) {
	if err := checkSource(source); err != nil {
		return nil, err
	}

	var files []string
	err := walkTemplate(source, func(relPath string, d fs.DirEntry) error {
		if !d.IsDir() {
			files = append(files, relPath)
		}
		return nil
	})
	if err != nil {
		return nil, relerrors.NewFileSystemError(
			"Failed to read overlay",
			fmt.Sprintf("the template at %s could not be walked", source),
			"",
			fmt.Errorf("failed to walk overlay source: %w", err))
	}
	return files, nil
}

// Apply copies every file under source into dest, creating directories as
// needed and overwriting existing files. It returns the paths written,
// relative to dest.
func Apply(source, dest string) ([]string, error) {
	if err := checkSource(source); err != nil {
		return nil, err
	}
	if info, err := os.Stat(dest); err != nil || !info.IsDir() {
		return nil, relerrors.NewFileSystemError(
			"Failed to apply overlay",
			fmt.Sprintf("the working copy %s does not exist", dest),
			"Clone the repository before applying an overlay",
			fmt.Errorf("overlay destination not found: %s", dest))
	}

	var written []string
	err := walkTemplate(source, func(relPath string, d fs.DirEntry) error {
		destPath := filepath.Join(dest, relPath)
		if d.IsDir() {
			return os.MkdirAll(destPath, 0750)
		}
		if err := copyFile(filepath.Join(source, relPath), destPath); err != nil {
			return err
		}
		written = append(written, relPath)
		return nil
	})
	if err != nil {
		return nil, relerrors.NewFileSystemError(
			"Failed to apply overlay",
			fmt.Sprintf("copying %s into %s failed", source, dest),
			"Check permissions on the working copy",
			fmt.Errorf("failed to copy overlay: %w", err))
	}

	slog.Info("Overlay applied", "source", source, "destination", dest, "files", len(written))
	return written, nil
}

func checkSource(source string) error {
	info, err := os.Stat(source)
	if err == nil && info.IsDir() {
		return nil
	}
	if err == nil {
		err = errors.New("not a directory")
	}
	return relerrors.NewFileSystemError(
		"Failed to read overlay",
		fmt.Sprintf("the overlay source %s is not a readable directory", source),
		"Check overlay.source in the workspace manifest",
		fmt.Errorf("overlay source directory not found: %s: %w", source, err))
}

// walkTemplate calls fn for every directory and regular file below source,
// skipping .git directories and anything that is not a plain file.
func walkTemplate(source string, fn func(relPath string, d fs.DirEntry) error) error {
	return filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		if d.IsDir() && d.Name() == gitDirName {
			return filepath.SkipDir
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			slog.Warn("Skipping non-regular file in overlay", "path", path)
			return nil
		}
		return fn(relPath, d)
	})
}

// copyFile copies a single file from src to dst, keeping its permissions.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to get source file info: %w", err)
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dst, err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("failed to copy file content: %w", err)
	}
	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("failed to write destination file %s: %w", dst, err)
	}

	return os.Chmod(dst, srcInfo.Mode().Perm())
}
