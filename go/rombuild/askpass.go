package rombuild

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// writeAskpass implements spec §4.7 step 5 (SUPPLEMENTED FEATURE #6): a
// short script that echoes the $TOKEN environment variable back to
// repo/git when prompted for credentials. The caller passes the actual
// token value to the child process via a TOKEN env var, not by baking
// it into the script.
func writeAskpass(fs afero.Fs, workDir string) (string, error) {
	path := filepath.Join(workDir, "git-askpass.sh")
	script := "#!/bin/sh\necho \"$TOKEN\"\n"
	if err := afero.WriteFile(fs, path, []byte(script), 0o700); err != nil {
		return "", err
	}
	return path, nil
}
