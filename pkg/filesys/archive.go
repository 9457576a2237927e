package filesys

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Limit extracted file size to prevent decompression bombs.
const maxFileSize = 512 << 20 // 512 MB

func sanitizeAndValidatePath(dest string, src string) (string, error) {
	// Sanitize the file name and remove any dangerous characters
	filePath := filepath.Join(dest, filepath.Clean(src))

	// Ensure file paths don't escape the target directory using filepath.Rel for strict comparison
	relPath, err := filepath.Rel(dest, filePath)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return "", fmt.Errorf("invalid file path: %s", filePath)
	}
	return filePath, nil
}

// SecureUntarGz extracts a gzip-compressed tarball under dest, preserving
// regular file permission bits. Entries other than files and directories
// (symlinks, devices) are skipped.
func SecureUntarGz(src string, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open tarball: %w", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip stream %s: %w", src, err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		fPath, err := sanitizeAndValidatePath(dest, header.Name)
		if err != nil {
			return fmt.Errorf("sanitize file path: %w", err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(fPath, os.ModePerm); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
		case tar.TypeReg:
			if header.Size > maxFileSize {
				return fmt.Errorf("file too large: %s", header.Name)
			}

			if err := os.MkdirAll(filepath.Dir(fPath), os.ModePerm); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}

			mode := fs.FileMode(header.Mode).Perm()
			if mode == 0 {
				mode = 0644
			}

			destFile, err := os.OpenFile(fPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
			if err != nil {
				return fmt.Errorf("create file: %w", err)
			}

			if _, err := io.CopyN(destFile, tr, maxFileSize); err != nil && err != io.EOF {
				destFile.Close()
				return fmt.Errorf("copy file: %w", err)
			}
			if err := destFile.Close(); err != nil {
				return fmt.Errorf("close file: %w", err)
			}
		}
	}
	return nil
}
