package kernelbuild

import (
	"path/filepath"

	"go.buildorch.dev/go/buildtypes"
)

// chunkSize is the 8 KiB bound named in spec §4.6 GetArtifact.
const chunkSize = 8 * 1024

// ArtifactFrame is one frame of the GetArtifact stream: exactly one of
// Metadata or Data is set.
type ArtifactFrame struct {
	Metadata *ArtifactMetadata
	Data     []byte
}

// ArtifactMetadata is the first frame of GetArtifact.
type ArtifactMetadata struct {
	Filename  string
	TotalSize int64
}

// GetArtifact streams the finished build's artifact: one metadata frame
// followed by up-to-8KiB data frames (spec §4.6).
func (e *Engine) GetArtifact(id int64) (<-chan ArtifactFrame, error) {
	bc, ok := e.get(id)
	if !ok {
		return nil, buildtypes.NotFound("kernelbuild: unknown build id %d", id)
	}
	finished, err := e.Jobs.IsFinished(id)
	if err != nil {
		return nil, err
	}
	if !finished {
		return nil, buildtypes.FailedPrecondition("kernelbuild: build %d not finished", id)
	}
	if bc.artifactPath == "" {
		return nil, buildtypes.NotFound("kernelbuild: build %d has no artifact", id)
	}

	info, err := e.Fs.Stat(bc.artifactPath)
	if err != nil {
		return nil, buildtypes.Internal("kernelbuild: stat artifact: %s", err)
	}

	out := make(chan ArtifactFrame, 4)
	go e.streamArtifact(bc.artifactPath, info.Size(), out)
	return out, nil
}

func (e *Engine) streamArtifact(path string, size int64, out chan<- ArtifactFrame) {
	defer close(out)
	out <- ArtifactFrame{Metadata: &ArtifactMetadata{Filename: filepath.Base(path), TotalSize: size}}

	f, err := e.Fs.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			out <- ArtifactFrame{Data: chunk}
		}
		if err != nil {
			return
		}
	}
}
