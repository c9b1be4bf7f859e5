// Package gitsource mirrors remote git repositories holding markdown decks
// into a local directory.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// IsRemote reports whether source names a git repository rather than a
// local directory: an http(s) URL or an scp-style "user@host:path" address.
func IsRemote(source string) bool {
	if u, err := url.Parse(source); err == nil && (u.Scheme == "https" || u.Scheme == "http") {
		return true
	}
	_, _, ok := splitSCP(source)
	return ok
}

// splitSCP parses "git@github.com:owner/repo.git" into host and path.
func splitSCP(source string) (host, path string, ok bool) {
	userHost, path, found := strings.Cut(source, ":")
	if !found || strings.Contains(path, ":") {
		return "", "", false
	}
	_, host, found = strings.Cut(userHost, "@")
	if !found || host == "" || path == "" {
		return "", "", false
	}
	return host, path, true
}

// LocalPath is where the repository at repoURL is mirrored under baseDir:
// baseDir/host/owner/repo.
func LocalPath(baseDir, repoURL string) (string, error) {
	if u, err := url.Parse(repoURL); err == nil && (u.Scheme == "https" || u.Scheme == "http") {
		return filepath.Join(baseDir, u.Host, strings.TrimSuffix(u.Path, ".git")), nil
	}
	if host, path, ok := splitSCP(repoURL); ok {
		return filepath.Join(baseDir, host, strings.TrimSuffix(path, ".git")), nil
	}
	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}

// Sync clones repoURL into localPath, or pulls if a clone is already there.
// Progress output goes to progress when it is non-nil.
func Sync(ctx context.Context, repoURL, localPath string, progress io.Writer) error {
	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Info("cloning repository", "url", repoURL, "path", localPath)
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
			URL:      repoURL,
			Progress: progress,
		})
		if err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", repoURL, err)
		}
	case err == nil:
		slog.Info("pulling repository", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{
			RemoteName: "origin",
			Progress:   progress,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}
	return nil
}

// Resolve returns a local directory for source, mirroring it under reposDir
// first when it is a remote repository.
func Resolve(ctx context.Context, source, reposDir string, progress io.Writer) (string, error) {
	if !IsRemote(source) {
		return source, nil
	}
	local, err := LocalPath(reposDir, source)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", fmt.Errorf("failed to create repos directory: %w", err)
	}
	if err := Sync(ctx, source, local, progress); err != nil {
		return "", err
	}
	return local, nil
}
