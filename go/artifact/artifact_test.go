package artifact

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"go.buildorch.dev/go/configstore"
	"go.buildorch.dev/go/jobregistry"
	"go.buildorch.dev/go/procexec"
	"go.buildorch.dev/go/rombuild"
)

type stubUploader struct {
	url string
	err error
}

func (s stubUploader) Upload(ctx context.Context, localPath string) (string, error) {
	return s.url, s.err
}

func newTestEngine(t *testing.T) *rombuild.Engine {
	t.Helper()
	store := configstore.NewROMConfigStore()
	store.Targets["dev"] = configstore.Target{Codename: "dev"}
	store.ROMs["lineage"] = configstore.ROMEntry{
		Name:            "lineage",
		Link:            "https://example.com/lineage.git",
		MakeTarget:      "bacon",
		ArtifactMatcher: configstore.ArtifactMatcher{Kind: configstore.MatchZipPrefix, Value: "lineage-"},
		Branches:        []configstore.Branch{{AndroidVersion: "21", ManifestBranch: "lineage-21.0"}},
	}
	store.ManifestEntries["lineage-dev"] = configstore.ManifestEntry{
		Name:          "lineage-dev",
		LocalManifest: configstore.Repo{URL: "https://example.com/local.git", Branch: "main"},
		Branches:      []configstore.Branch{{TargetROM: "lineage", AndroidVersion: "21", Device: "dev"}},
	}
	fs := afero.NewMemMapFs()
	return rombuild.New(store, procexec.NewMock(procexec.Scripted{Success: true}), fs, "/tmp", "/out", jobregistry.NewROMRegistry())
}

func startAndFinishBuild(t *testing.T, e *rombuild.Engine, method rombuild.UploadMethod) string {
	t.Helper()
	req := rombuild.BuildRequest{ConfigName: "lineage-dev", RomName: "lineage", RomAndroidVersion: "21", TargetDevice: "dev", UploadMethod: method}
	started := e.StartBuild(context.Background(), req)
	require.True(t, started.Accepted)

	ch, unsub, ok := e.StreamLogs(started.BuildID)
	require.True(t, ok)
	defer unsub()
	for l := range ch {
		if l.IsFinished {
			break
		}
	}
	return started.BuildID
}

func TestGetBuildResultUnknownIDFails(t *testing.T) {
	e := newTestEngine(t)
	d := New(e, stubUploader{})
	_, err := d.GetBuildResult(context.Background(), "build-bogus")
	require.Error(t, err)
}

func TestGetBuildResultOnArtifactNotFoundYieldsFailedFrame(t *testing.T) {
	e := newTestEngine(t)
	id := startAndFinishBuild(t, e, rombuild.UploadLocalFile)

	d := New(e, stubUploader{})
	ch, err := d.GetBuildResult(context.Background(), id)
	require.NoError(t, err)

	var frames []Result
	for r := range ch {
		frames = append(frames, r)
	}
	require.Len(t, frames, 1)
	require.Equal(t, ResultFailed, frames[0].Kind)
}

func TestGetBuildResultLocalFile(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Fs.MkdirAll("/out/out/target/product/dev", 0o755))
	require.NoError(t, afero.WriteFile(e.Fs, "/out/out/target/product/dev/lineage-21.0-dev.zip", []byte("zip"), 0o644))
	id := startAndFinishBuild(t, e, rombuild.UploadLocalFile)

	d := New(e, stubUploader{})
	ch, err := d.GetBuildResult(context.Background(), id)
	require.NoError(t, err)

	var frames []Result
	for r := range ch {
		frames = append(frames, r)
	}
	require.Len(t, frames, 1)
	require.Equal(t, ResultLocalPath, frames[0].Kind)
	require.Contains(t, frames[0].Path, "lineage-21.0-dev.zip")
}

func TestGetBuildResultGofileUpload(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Fs.MkdirAll("/out/out/target/product/dev", 0o755))
	require.NoError(t, afero.WriteFile(e.Fs, "/out/out/target/product/dev/lineage-21.0-dev.zip", []byte("zip"), 0o644))
	id := startAndFinishBuild(t, e, rombuild.UploadGofile)

	d := New(e, stubUploader{url: "https://gofile.example/abc"})
	ch, err := d.GetBuildResult(context.Background(), id)
	require.NoError(t, err)

	var frames []Result
	for r := range ch {
		frames = append(frames, r)
	}
	require.Len(t, frames, 1)
	require.Equal(t, ResultUploadedURL, frames[0].Kind)
	require.Equal(t, "https://gofile.example/abc", frames[0].URL)
}

func TestGetBuildResultGofileUploadFailureIsInternal(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Fs.MkdirAll("/out/out/target/product/dev", 0o755))
	require.NoError(t, afero.WriteFile(e.Fs, "/out/out/target/product/dev/lineage-21.0-dev.zip", []byte("zip"), 0o644))
	id := startAndFinishBuild(t, e, rombuild.UploadGofile)

	d := New(e, stubUploader{err: errors.New("network down")})
	ch, err := d.GetBuildResult(context.Background(), id)
	require.NoError(t, err)

	var frames []Result
	for r := range ch {
		frames = append(frames, r)
	}
	require.Len(t, frames, 1)
	require.Equal(t, ResultFailed, frames[0].Kind)
	require.Contains(t, frames[0].ErrorMessage, "Internal")
	require.Contains(t, frames[0].ErrorMessage, "network down")
}

func TestGetBuildResultStreamSendsMetaThenChunks(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Fs.MkdirAll("/out/out/target/product/dev", 0o755))
	require.NoError(t, afero.WriteFile(e.Fs, "/out/out/target/product/dev/lineage-21.0-dev.zip", []byte("zip-bytes"), 0o644))
	id := startAndFinishBuild(t, e, rombuild.UploadStream)

	d := New(e, stubUploader{})
	ch, err := d.GetBuildResult(context.Background(), id)
	require.NoError(t, err)

	var frames []Result
	for r := range ch {
		frames = append(frames, r)
	}
	require.NotEmpty(t, frames)
	require.Equal(t, ResultStreamMeta, frames[0].Kind)
	require.Equal(t, "lineage-21.0-dev.zip", frames[0].FileName)

	var data []byte
	for _, f := range frames[1:] {
		require.Equal(t, ResultStreamChunk, f.Kind)
		data = append(data, f.Chunk...)
	}
	require.Equal(t, "zip-bytes", string(data))
}
