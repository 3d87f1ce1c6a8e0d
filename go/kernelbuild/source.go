package kernelbuild

import (
	"errors"

	"go.buildorch.dev/go/configstore"
	"go.buildorch.dev/go/gitrepo"
)

// SourceReconciler resolves a kernel config's work_dir against its repo
// (spec §4.6 step 6): open-or-clone, then checkout/fast-forward. It
// mirrors the Process Supervisor's pluggable-contract pattern (spec
// §4.4) so engine tests never need a real git remote.
type SourceReconciler interface {
	Reconcile(cfg configstore.KernelConfig, workDir, githubToken string, progress gitrepo.ProgressFunc) error
}

// GitReconciler is the production SourceReconciler, backed by the Git
// Gateway.
type GitReconciler struct{}

func (GitReconciler) Reconcile(cfg configstore.KernelConfig, workDir, githubToken string, progress gitrepo.ProgressFunc) error {
	gw, err := gitrepo.Open(workDir, "origin", githubToken, progress)
	if err == nil {
		remoteURL, err := gw.GetRemoteURL()
		if err != nil {
			return err
		}
		if remoteURL == cfg.Repo.URL {
			return gw.FastForward()
		}
		if err := gw.CheckoutBranch(cfg.Repo.Branch); err != nil {
			return err
		}
		return gw.FastForward()
	}
	if !errors.Is(err, gitrepo.ErrNotARepo) {
		return err
	}

	_, err = gitrepo.Clone(cfg.Repo.URL, cfg.Repo.Branch, 0, workDir, githubToken, progress)
	return err
}
