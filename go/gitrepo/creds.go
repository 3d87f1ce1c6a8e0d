package gitrepo

import (
	"context"
	"net/url"
	"os/exec"
	"strings"

	"go.buildorch.dev/go/buildlog"
	"gopkg.in/src-d/go-git.v4/plumbing/transport"
	"gopkg.in/src-d/go-git.v4/plumbing/transport/http"
	"gopkg.in/src-d/go-git.v4/plumbing/transport/ssh"
)

// selectAuth implements spec §4.2's credential selection order:
//
//  1. ssh:// URL           -> SSH agent, for the URL's username (or "git")
//  2. github.com + token   -> userpass(token, "")
//  3. otherwise            -> the host's credential helper
//  4. helper failure       -> no-op (nil) auth
func selectAuth(rawURL, githubToken string) transport.AuthMethod {
	u, err := url.Parse(rawURL)
	if err != nil {
		buildlog.Warningf("gitrepo: could not parse remote URL %q for credential selection: %s", rawURL, err)
		return nil
	}

	if u.Scheme == "ssh" {
		user := u.User.Username()
		if user == "" {
			user = "git"
		}
		auth, err := ssh.NewSSHAgentAuth(user)
		if err != nil {
			buildlog.Warningf("gitrepo: ssh-agent auth unavailable for %q: %s", rawURL, err)
			return nil
		}
		return auth
	}

	if strings.Contains(u.Hostname(), "github.com") && githubToken != "" {
		return &http.BasicAuth{Username: githubToken, Password: ""}
	}

	if auth := credentialHelperAuth(rawURL); auth != nil {
		return auth
	}
	return nil
}

// credentialHelperAuth shells out to `git credential fill`, the portable
// way to invoke whatever credential helper the host has configured,
// since go-git has no native helper support. Returns nil (the no-op
// default) if the helper is unavailable or declines to answer.
func credentialHelperAuth(rawURL string) transport.AuthMethod {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	input := "protocol=" + u.Scheme + "\nhost=" + u.Host + "\n\n"
	cmd := exec.CommandContext(context.Background(), "git", "credential", "fill")
	cmd.Stdin = strings.NewReader(input)
	out, err := cmd.Output()
	if err != nil {
		buildlog.Warningf("gitrepo: credential helper failed for %s: %s", u.Host, err)
		return nil
	}
	var username, password string
	for _, line := range strings.Split(string(out), "\n") {
		switch {
		case strings.HasPrefix(line, "username="):
			username = strings.TrimPrefix(line, "username=")
		case strings.HasPrefix(line, "password="):
			password = strings.TrimPrefix(line, "password=")
		}
	}
	if username == "" && password == "" {
		return nil
	}
	return &http.BasicAuth{Username: username, Password: password}
}
