// Package checkout provides the `checkout` runner, which puts the project
// sources into the job workspace.
package checkout

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/vk/mvnflow/internal/ctxlog"
	"github.com/vk/mvnflow/internal/fsutil"
	"github.com/vk/mvnflow/internal/registry"
	"github.com/vk/mvnflow/internal/workspace"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the checkout runner.
type Input struct {
	// Repository is a directory or a git URL. Defaults to the run's source.
	Repository string `hcl:"repository,optional"`
	// Ref is a branch, tag or commit. Only used when cloning.
	Ref string `hcl:"ref,optional"`
	// Path is where to put the sources, relative to the job workspace.
	Path string `hcl:"path,optional"`
}

// Run copies or clones the sources.
func Run(ctx context.Context, ws *workspace.Workspace, in *Input) (map[string]string, error) {
	src := in.Repository
	if src == "" {
		src = ws.Source
	}
	if src == "" {
		return nil, fmt.Errorf("no source to check out")
	}
	logger := ctxlog.FromContext(ctx).With("source", src)

	target, err := securejoin.SecureJoin(ws.Dir, in.Path)
	if err != nil {
		return nil, fmt.Errorf("checkout path %q: %w", in.Path, err)
	}

	if isRemote(src) || in.Ref != "" {
		commit, err := clone(ctx, src, in.Ref, target)
		if err != nil {
			return nil, err
		}
		logger.Info("Cloned repository.", "ref", in.Ref, "commit", commit)
		return map[string]string{"commit": commit, "path": target}, nil
	}

	src, err = filepath.Abs(src)
	if err != nil {
		return nil, err
	}
	stats, err := fsutil.CopyTree(ctx, src, target, func(rel string, d fs.DirEntry) bool {
		return d.IsDir() && rel == ".git"
	})
	if err != nil {
		return nil, err
	}
	commit := headCommit(src)
	logger.Info("Copied sources into workspace.", "files", stats.Files, "bytes", stats.Bytes, "commit", commit)
	return map[string]string{"commit": commit, "path": target}, nil
}

func isRemote(src string) bool {
	return strings.Contains(src, "://") || strings.HasPrefix(src, "git@")
}

func clone(ctx context.Context, url, ref, target string) (string, error) {
	opts := &git.CloneOptions{URL: url}
	if ref == "" {
		opts.Depth = 1
		opts.SingleBranch = true
	}
	repo, err := git.PlainCloneContext(ctx, target, false, opts)
	if err != nil {
		return "", fmt.Errorf("clone %s: %w", url, err)
	}
	if ref != "" {
		hash, err := resolveRef(repo, ref)
		if err != nil {
			return "", err
		}
		wt, err := repo.Worktree()
		if err != nil {
			return "", err
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
			return "", fmt.Errorf("checkout %s: %w", ref, err)
		}
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

func resolveRef(repo *git.Repository, ref string) (plumbing.Hash, error) {
	for _, rev := range []string{ref, "refs/remotes/origin/" + ref, "refs/tags/" + ref} {
		if hash, err := repo.ResolveRevision(plumbing.Revision(rev)); err == nil {
			return *hash, nil
		}
	}
	return plumbing.ZeroHash, fmt.Errorf("ref %q not found", ref)
}

// headCommit returns the HEAD commit of the repository containing dir, or
// the empty string when dir is not inside a git repository.
func headCommit(dir string) string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("checkout", registry.Typed(Run))
}
