package gitrepo

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.buildorch.dev/go/ratelimit"
	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/config"
	"gopkg.in/src-d/go-git.v4/plumbing"
)

// defaultProgressInterval is the 5s rate-limit interval named in spec
// §4.2 ("wrapped by a Rate Limiter (default 5s)").
const defaultProgressInterval = 5 * time.Second

// ProgressFunc receives raw progress text reported by the underlying git
// transport (object counts, byte counts), already rate-limited.
type ProgressFunc func(text string)

// Gateway is the handle returned by Open/Clone: every further operation
// (§4.2) is a method on it.
type Gateway struct {
	repo        *git.Repository
	remoteName  string
	githubToken string
	progress    ProgressFunc
	limiter     *ratelimit.Limiter
}

type progressWriter struct {
	cb      ProgressFunc
	limiter *ratelimit.Limiter
}

func (w *progressWriter) Write(p []byte) (int, error) {
	if w.cb != nil && w.limiter.Check() {
		w.cb(string(p))
	}
	return len(p), nil
}

func (g *Gateway) progressWriterOrNil() io.Writer {
	if g.progress == nil {
		return nil
	}
	return &progressWriter{cb: g.progress, limiter: g.limiter}
}

// Open opens an already-cloned repository at path, failing with
// ErrNotARepo if it is not one.
func Open(path, remoteName, githubToken string, progress ProgressFunc) (*Gateway, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, wrap("Open", ErrNotARepo)
		}
		return nil, wrap("Open", err)
	}
	return &Gateway{
		repo:        repo,
		remoteName:  remoteName,
		githubToken: githubToken,
		progress:    progress,
		limiter:     ratelimit.New(defaultProgressInterval),
	}, nil
}

// Clone performs a full, optionally shallow, clone of url at branch into
// dest, then updates submodules.
func Clone(url, branch string, depth int, dest, githubToken string, progress ProgressFunc) (*Gateway, error) {
	g := &Gateway{
		remoteName:  "origin",
		githubToken: githubToken,
		progress:    progress,
		limiter:     ratelimit.New(defaultProgressInterval),
	}
	opts := &git.CloneOptions{
		URL:               url,
		Auth:              selectAuth(url, githubToken),
		ReferenceName:     plumbing.NewBranchReferenceName(branch),
		SingleBranch:      true,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
		Progress:          g.progressWriterOrNil(),
	}
	if depth > 0 {
		opts.Depth = depth
	}
	repo, err := git.PlainClone(dest, false, opts)
	if err != nil {
		return nil, wrap("Clone", err)
	}
	g.repo = repo
	return g, nil
}

// GetRemoteURL returns the configured URL of the gateway's remote.
func (g *Gateway) GetRemoteURL() (string, error) {
	remote, err := g.repo.Remote(g.remoteName)
	if err != nil {
		return "", wrap("GetRemoteURL", err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", wrap("GetRemoteURL", fmt.Errorf("remote %q has no URL", g.remoteName))
	}
	return urls[0], nil
}

// GetBranchName returns the short name of the currently checked-out
// branch.
func (g *Gateway) GetBranchName() (string, error) {
	head, err := g.repo.Head()
	if err != nil {
		return "", wrap("GetBranchName", err)
	}
	if !head.Name().IsBranch() {
		return "", wrap("GetBranchName", fmt.Errorf("HEAD is detached"))
	}
	return head.Name().Short(), nil
}

// FetchBranch fetches refs/heads/{branch}:refs/remotes/{remote}/{branch},
// populating the remote-tracking ref (and FETCH_HEAD).
func (g *Gateway) FetchBranch(branch string) error {
	refspec := config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/remotes/%s/%s", branch, g.remoteName, branch))
	err := g.repo.Fetch(&git.FetchOptions{
		RemoteName: g.remoteName,
		RefSpecs:   []config.RefSpec{refspec},
		Auth:       selectAuth(g.urlOrEmpty(), g.githubToken),
		Progress:   g.progressWriterOrNil(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return wrap("FetchBranch", err)
	}
	return nil
}

func (g *Gateway) urlOrEmpty() string {
	u, err := g.GetRemoteURL()
	if err != nil {
		return ""
	}
	return u
}

func (g *Gateway) remoteRef(branch string) (*plumbing.Reference, error) {
	return g.repo.Reference(plumbing.NewRemoteReferenceName(g.remoteName, branch), true)
}

func (g *Gateway) localRefName(branch string) plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(branch)
}

// CheckoutBranch checks out branch, preferring an existing local ref; if
// absent, it fetches and creates the local branch from the remote-tracking
// ref first.
func (g *Gateway) CheckoutBranch(branch string) error {
	localName := g.localRefName(branch)
	if _, err := g.repo.Reference(localName, false); err != nil {
		if err := g.FetchBranch(branch); err != nil {
			return err
		}
		remote, err := g.remoteRef(branch)
		if err != nil {
			return wrap("CheckoutBranch", err)
		}
		if err := g.repo.Storer.SetReference(plumbing.NewHashReference(localName, remote.Hash())); err != nil {
			return wrap("CheckoutBranch", err)
		}
	}

	wt, err := g.repo.Worktree()
	if err != nil {
		return wrap("CheckoutBranch", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: localName}); err != nil {
		return wrap("CheckoutBranch", err)
	}
	return nil
}

// FastForward fetches the current branch and, if the remote-tracking ref
// is a fast-forward ancestor-descendant of the local ref, force-checks
// out the new tree, advances the local ref, re-points HEAD if needed, and
// recursively updates submodules.
func (g *Gateway) FastForward() error {
	branch, err := g.GetBranchName()
	if err != nil {
		return err
	}
	if err := g.FetchBranch(branch); err != nil {
		return err
	}

	localName := g.localRefName(branch)
	localRef, err := g.repo.Reference(localName, true)
	if err != nil {
		return wrap("FastForward", err)
	}
	remoteRef, err := g.remoteRef(branch)
	if err != nil {
		return wrap("FastForward", err)
	}
	if localRef.Hash() == remoteRef.Hash() {
		return g.UpdateModules()
	}

	localCommit, err := g.repo.CommitObject(localRef.Hash())
	if err != nil {
		return wrap("FastForward", err)
	}
	remoteCommit, err := g.repo.CommitObject(remoteRef.Hash())
	if err != nil {
		return wrap("FastForward", err)
	}
	isFF, err := localCommit.IsAncestor(remoteCommit)
	if err != nil {
		return wrap("FastForward", err)
	}
	if !isFF {
		return wrap("FastForward", fmt.Errorf("local ref %s is not an ancestor of %s/%s; not a fast-forward", localRef.Hash(), g.remoteName, branch))
	}

	wt, err := g.repo.Worktree()
	if err != nil {
		return wrap("FastForward", err)
	}
	// Remove all untracked files and directories before force-checking out the new tree.
	_ = wt.Clean(&git.CleanOptions{Dir: true})
	if err := wt.Checkout(&git.CheckoutOptions{Hash: remoteRef.Hash(), Force: true}); err != nil {
		return wrap("FastForward", err)
	}
	if err := g.repo.Storer.SetReference(plumbing.NewHashReference(localName, remoteRef.Hash())); err != nil {
		return wrap("FastForward", err)
	}

	// HEAD is already a symbolic ref to localName, which was just
	// advanced above; re-pointing it to a direct hash here would detach
	// it for no benefit.

	return g.UpdateModules()
}

// CmpHeadWithRemoteBranch reports whether local HEAD's commit is
// identical to the remote-tracking ref for branch.
func (g *Gateway) CmpHeadWithRemoteBranch(branch string) (bool, error) {
	head, err := g.repo.Head()
	if err != nil {
		return false, wrap("CmpHeadWithRemoteBranch", err)
	}
	remote, err := g.remoteRef(branch)
	if err != nil {
		return false, wrap("CmpHeadWithRemoteBranch", err)
	}
	return head.Hash() == remote.Hash(), nil
}

// UpdateModules performs a one-shot recursive submodule update.
func (g *Gateway) UpdateModules() error {
	wt, err := g.repo.Worktree()
	if err != nil {
		return wrap("UpdateModules", err)
	}
	subs, err := wt.Submodules()
	if err != nil {
		return wrap("UpdateModules", err)
	}
	for _, sub := range subs {
		if err := sub.Update(&git.SubmoduleUpdateOptions{
			Init:              true,
			RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
		}); err != nil {
			return wrap("UpdateModules", fmt.Errorf("submodule %s: %w", sub.Config().Name, err))
		}
	}
	return nil
}
