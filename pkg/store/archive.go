package store

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
)

// PackZstd writes a tar archive of relFiles (paths relative to srcDir,
// already timestamp-normalized) into destPath, compressed as a single
// zstd frame. Entries store paths relative to the pack root; symlinks
// are never followed.
func PackZstd(srcDir string, relFiles []string, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create archive directory", err)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create archive file", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create zstd writer", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	for _, rel := range relFiles {
		full := filepath.Join(srcDir, rel)
		info, err := os.Lstat(full)
		if err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "stat archive member", err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			// Symlink following is disabled during packing; skip entirely.
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "build tar header", err)
		}
		header.Name = filepath.ToSlash(rel)
		header.ModTime = epoch
		header.AccessTime = epoch
		header.ChangeTime = epoch

		if err := tw.WriteHeader(header); err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "write tar header", err)
		}

		file, err := os.Open(full)
		if err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "open archive member", err)
		}
		_, err = io.Copy(tw, file)
		file.Close()
		if err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "write archive member", err)
		}
	}
	return nil
}

// UnpackZstd extracts a zstd-compressed tar archive into destDir,
// guarding against directory traversal, then normalizes timestamps on
// every extracted file.
func UnpackZstd(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "open archive", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create zstd reader", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create destination directory", err)
	}

	tr := tar.NewReader(zr)
	cleanDest := filepath.Clean(destDir)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "read tar header", err)
		}

		target := filepath.Join(destDir, header.Name)
		if !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) && target != cleanDest {
			return vorpalerrors.Newf(vorpalerrors.ErrCodeInternal, "invalid archive entry path: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create directory from archive", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create parent directory from archive", err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create file from archive", err)
			}
			_, err = io.Copy(out, tr)
			out.Close()
			if err != nil {
				return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "write file from archive", err)
			}
		default:
			// No symlinks or special files are ever packed; skip anything
			// unexpected rather than fail the whole extraction.
			continue
		}
	}

	return NormalizeTree(destDir)
}
