// Package vcs is the version-control boundary of the update engine: firmware
// revisions are git commits in the install directory's working tree.
package vcs

import (
	"context"
	"fmt"

	"github.com/coldsentry-io/coldsentry/internal/runner"
	"github.com/coldsentry-io/coldsentry/pkg/log"
)

// VersionControl exposes the revision operations the update engine needs.
type VersionControl interface {
	Fetch(ctx context.Context, remote string) error
	CurrentRevision(ctx context.Context) (string, error)
	RemoteRevision(ctx context.Context, remote, branch string) (string, error)
	ResetHard(ctx context.Context, revision string) error
}

// Git runs the git CLI against a fixed working tree.
type Git struct {
	run runner.Runner
	dir string

	// RepositoryURL is used to initialize the working tree on first boot.
	RepositoryURL string
	Branch        string
}

var _ VersionControl = (*Git)(nil)

func NewGit(run runner.Runner, dir string) *Git {
	return &Git{
		run:    run,
		dir:    dir,
		Branch: "main",
	}
}

func (g *Git) git(ctx context.Context, args ...string) (runner.Result, error) {
	return g.run.Run(ctx, "git", append([]string{"-C", g.dir}, args...)...)
}

func (g *Git) Fetch(ctx context.Context, remote string) error {
	_, err := g.git(ctx, "fetch", remote)
	return err
}

func (g *Git) CurrentRevision(ctx context.Context) (string, error) {
	res, err := g.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func (g *Git) RemoteRevision(ctx context.Context, remote, branch string) (string, error) {
	if branch == "" {
		branch = g.Branch
	}
	res, err := g.git(ctx, "rev-parse", fmt.Sprintf("%s/%s", remote, branch))
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func (g *Git) ResetHard(ctx context.Context, revision string) error {
	_, err := g.git(ctx, "reset", "--hard", revision)
	return err
}

// EnsureRepository initializes the working tree on a freshly imaged device
// whose install directory was shipped without git metadata.
func (g *Git) EnsureRepository(ctx context.Context) error {
	if res, err := g.run.Probe(ctx, "git", "-C", g.dir, "rev-parse", "--git-dir"); err == nil && res.ExitCode == 0 {
		return nil
	}

	log.Info("initializing firmware repository", "dir", g.dir, "url", g.RepositoryURL)

	steps := [][]string{
		{"init"},
		{"remote", "add", "origin", g.RepositoryURL},
		{"fetch"},
		{"checkout", "-f", g.Branch},
	}
	for _, args := range steps {
		if _, err := g.git(ctx, args...); err != nil {
			return fmt.Errorf("init repository: %w", err)
		}
	}
	return nil
}
