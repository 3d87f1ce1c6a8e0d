package toolchain

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"go.buildorch.dev/go/procexec"
)

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o755,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestProvisionSkipsInstallWhenAlreadyPresent(t *testing.T) {
	fs := afero.NewMemMapFs()
	mock := procexec.NewMock(procexec.Scripted{
		Success:     true,
		StdoutLines: []string{"clang version 17.0.0"},
	})
	p := New(fs, "/out", mock)

	version, err := p.Provision(context.Background(), Toolchain{Name: "clang-arm64", Compiler: Clang, Source: SourceTarball, URL: "http://unused"}, nil)
	require.NoError(t, err)
	require.Equal(t, "clang version 17.0.0", version)
	require.Len(t, mock.Calls(), 1, "only the detection probe should run, no install")
}

func TestProvisionInstallsTarballWhenMissing(t *testing.T) {
	payload := buildTarGz(t, map[string]string{"bin/clang": "#!/bin/sh\necho clang version 1.0.0\n"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	mock := procexec.NewMock(
		procexec.Scripted{Success: false}, // first probe: not installed
		procexec.Scripted{Success: true, StdoutLines: []string{"clang version 1.0.0"}}, // post-install probe
	)
	p := New(fs, "/out", mock)

	var progressMsgs []string
	version, err := p.Provision(context.Background(), Toolchain{
		Name:     "clang-tar",
		Compiler: Clang,
		Source:   SourceTarball,
		URL:      server.URL,
	}, func(msg string) { progressMsgs = append(progressMsgs, msg) })

	require.NoError(t, err)
	require.Equal(t, "clang version 1.0.0", version)
	require.NotEmpty(t, progressMsgs, "first chunk should always report progress")

	exists, err := afero.Exists(fs, "/out/clang-tar/bin/clang")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestProvisionFailsWhenStillUnusableAfterInstall(t *testing.T) {
	payload := buildTarGz(t, map[string]string{"README": "no compiler here"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	mock := procexec.NewMock(
		procexec.Scripted{Success: false},
		procexec.Scripted{Success: false},
	)
	p := New(fs, "/out", mock)

	_, err := p.Provision(context.Background(), Toolchain{
		Name:     "broken",
		Compiler: Clang,
		Source:   SourceTarball,
		URL:      server.URL,
	}, nil)
	require.Error(t, err)
}
