package kernelbuild

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// packageArtifact implements spec §4.6 step 5: when the config carries
// an enabled AnyKernel overlay, the built image is dropped into it and
// zipped (omitting zero-length and dot-prefixed files); otherwise the
// raw image path is the artifact.
func (e *Engine) packageArtifact(bc *buildContext, imagePath string) (string, error) {
	ak := bc.config.AnyKernel
	if ak == nil || !ak.Enabled || ak.Location == "" {
		return imagePath, nil
	}

	overlayDir := filepath.Join(bc.workDir, ak.Location)
	imageDest := filepath.Join(overlayDir, filepath.Base(imagePath))
	if err := copyFile(e.Fs, imagePath, imageDest); err != nil {
		return "", fmt.Errorf("kernelbuild: copying image into overlay: %w", err)
	}
	defer e.Fs.Remove(imageDest)

	zipName := fmt.Sprintf("%s_%s-%s.zip", bc.config.Name, bc.device, time.Now().Format("2006-01-02_15-04-05"))
	zipPath := filepath.Join(bc.workDir, zipName)
	if err := zipOverlay(e.Fs, overlayDir, zipPath); err != nil {
		return "", fmt.Errorf("kernelbuild: zipping anykernel overlay: %w", err)
	}
	return zipPath, nil
}

func copyFile(fs afero.Fs, src, dst string) error {
	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := fs.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// zipOverlay writes every non-hidden, non-empty file under dir (recursing
// into subdirectories) into a zip archive at zipPath, with paths stored
// relative to dir (spec §4.6 step 5, §8 boundary: "zero-length files are
// omitted... hidden (dot-prefixed) files are omitted"). A real AnyKernel3
// overlay has subdirectories (tools/, META-INF/, ramdisk/, ...), so this
// walks the whole tree rather than just its top level.
func zipOverlay(fs afero.Fs, dir, zipPath string) error {
	out, err := fs.Create(zipPath)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	walkErr := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") || info.Size() == 0 {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		return addZipEntry(zw, fs, path, filepath.ToSlash(rel))
	})
	if walkErr != nil {
		zw.Close()
		return walkErr
	}
	return zw.Close()
}

func addZipEntry(zw *zip.Writer, fs afero.Fs, path, relName string) error {
	w, err := zw.Create(relName)
	if err != nil {
		return err
	}
	f, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
