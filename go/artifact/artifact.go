// Package artifact implements the Artifact Dispatcher (spec §4.9):
// given a finished ROM build id, it streams back either an error frame,
// a local file path, an uploaded URL, or the artifact's own bytes,
// depending on the build's requested upload method.
package artifact

import (
	"context"
	"errors"
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"go.buildorch.dev/go/buildtypes"
	"go.buildorch.dev/go/jobregistry"
	"go.buildorch.dev/go/rombuild"
)

// streamChunkSize is the 64 KiB bound named in spec §4.9 for the
// `stream` upload method, distinct from GetArtifact's 8 KiB kernel
// chunk size since the two RPCs stream different things to different
// clients.
const streamChunkSize = 64 * 1024

// Uploader is the opaque external collaborator that turns a local
// artifact path into a durable download URL (the `gofile` method). Its
// implementation is outside this module's scope (spec §1, §4.9): no
// concrete uploader is wired here.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (downloadURL string, err error)
}

// Result is one frame of GetBuildResult. Exactly one payload field is
// meaningful per Kind.
type Result struct {
	Kind         ResultKind
	ErrorMessage string
	Path         string
	URL          string
	FileName     string
	Chunk        []byte
}

// ResultKind tags which field of Result is populated.
type ResultKind int

const (
	ResultFailed ResultKind = iota
	ResultLocalPath
	ResultUploadedURL
	ResultStreamMeta
	ResultStreamChunk
)

// Dispatcher implements GetBuildResult against a ROM engine's
// bookkeeping (spec §4.9). It never mutates engine state: dispatching
// is read-only over whatever StartBuild already recorded.
type Dispatcher struct {
	Engine   *rombuild.Engine
	Fs       afero.Fs
	Uploader Uploader
}

// New returns a Dispatcher wired to engine's filesystem.
func New(engine *rombuild.Engine, uploader Uploader) *Dispatcher {
	return &Dispatcher{Engine: engine, Fs: engine.Fs, Uploader: uploader}
}

// GetBuildResult implements spec §4.9's GetBuildResult: unknown id fails
// NotFound; a known-but-unsuccessful build yields one Failed frame; a
// successful build's frames depend on its recorded UploadMethod.
func (d *Dispatcher) GetBuildResult(ctx context.Context, id string) (<-chan Result, error) {
	entry, ok := d.Engine.GetBuildEntry(id)
	if !ok {
		return nil, buildtypes.NotFound("artifact: unknown build id %s", id)
	}
	status, err := d.Engine.GetStatus(id)
	if err != nil {
		return nil, err
	}
	if !status.Finished {
		return nil, buildtypes.FailedPrecondition("artifact: build %s not finished", id)
	}

	out := make(chan Result, 4)
	go d.dispatch(ctx, entry, status, out)
	return out, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, entry rombuild.BuildEntry, status jobregistry.Status, out chan<- Result) {
	defer close(out)

	if !status.Succeeded {
		out <- Result{Kind: ResultFailed, ErrorMessage: entry.ErrorMessage}
		return
	}

	switch entry.UploadMethod {
	case rombuild.UploadGofile:
		url, err := d.Uploader.Upload(ctx, entry.ArtifactPath)
		if err != nil {
			out <- Result{Kind: ResultFailed, ErrorMessage: buildtypes.Internal("upload: %s", err).Error()}
			return
		}
		out <- Result{Kind: ResultUploadedURL, URL: url}

	case rombuild.UploadStream:
		d.streamFile(entry.ArtifactPath, out)

	case rombuild.UploadLocalFile, rombuild.UploadNone:
		fallthrough
	default:
		out <- Result{Kind: ResultLocalPath, Path: entry.ArtifactPath}
	}
}

// streamFile implements the `stream` upload method (spec §4.9): the
// first frame carries the file name, every subsequent frame up to 64
// KiB of file bytes. A read error mid-stream emits one failed frame and
// closes instead of a partial chunk.
func (d *Dispatcher) streamFile(path string, out chan<- Result) {
	out <- Result{Kind: ResultStreamMeta, FileName: filepath.Base(path)}

	f, err := d.Fs.Open(path)
	if err != nil {
		out <- Result{Kind: ResultFailed, ErrorMessage: "stream open: " + err.Error()}
		return
	}
	defer f.Close()

	buf := make([]byte, streamChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			out <- Result{Kind: ResultStreamChunk, Chunk: chunk}
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			out <- Result{Kind: ResultFailed, ErrorMessage: "stream read: " + err.Error()}
			return
		}
	}
}
