package rombuild

import (
	"errors"

	"go.buildorch.dev/go/gitrepo"
)

// SourceReconciler reconciles a work_dir against a desired (url, branch)
// using the same open-or-clone-or-checkout-then-fast-forward rule as the
// kernel engine (spec §4.7 step 6c). It is pluggable so engine tests
// never need a real git remote.
type SourceReconciler interface {
	Reconcile(url, branch, workDir, githubToken string, progress gitrepo.ProgressFunc) error
}

// GitReconciler is the production SourceReconciler, backed by the Git
// Gateway.
type GitReconciler struct{}

func (GitReconciler) Reconcile(url, branch, workDir, githubToken string, progress gitrepo.ProgressFunc) error {
	gw, err := gitrepo.Open(workDir, "origin", githubToken, progress)
	if err == nil {
		remoteURL, err := gw.GetRemoteURL()
		if err != nil {
			return err
		}
		if remoteURL == url {
			return gw.FastForward()
		}
		if err := gw.CheckoutBranch(branch); err != nil {
			return err
		}
		return gw.FastForward()
	}
	if !errors.Is(err, gitrepo.ErrNotARepo) {
		return err
	}

	_, err = gitrepo.Clone(url, branch, 0, workDir, githubToken, progress)
	return err
}
