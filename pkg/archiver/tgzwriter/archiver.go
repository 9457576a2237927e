package tgzwriter

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/npmsnap/npmsnap/pkg/archiver"
)

var _ archiver.Archiver = (*tarWriter)(nil)

// tarWriter produces deterministic gzip tarballs: entries are emitted in
// sorted path order with a fixed timestamp, so repackaging the same tree
// twice yields identical bytes.
type tarWriter struct {
	archive *os.File
	gw      *gzip.Writer
	tw      *tar.Writer
}

var epoch = time.Unix(0, 0).UTC()

func New() *tarWriter {
	return &tarWriter{}
}

func (wr *tarWriter) Close() error {
	if err := wr.tw.Close(); err != nil {
		return err
	}
	if err := wr.gw.Close(); err != nil {
		return err
	}
	return wr.archive.Close()
}

func (wr *tarWriter) Init(destination string) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(destination), os.ModePerm); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	archive, err := os.Create(destination)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	wr.archive = archive
	wr.gw = gzip.NewWriter(wr.archive)
	wr.tw = tar.NewWriter(wr.gw)

	return wr, nil
}

func (wr *tarWriter) WriteFile(baseDir string, fName string) error {
	filePath := filepath.Join(baseDir, fName)
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("get file info: %w", err)
	}

	header := &tar.Header{
		Name:     filepath.ToSlash(fName),
		Size:     fileInfo.Size(),
		Mode:     int64(fileInfo.Mode().Perm()),
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
	}

	if err := wr.tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write file header: %w", err)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", fName, err)
	}
	defer f.Close()

	if _, err := io.Copy(wr.tw, f); err != nil {
		return fmt.Errorf("write file content: %w", err)
	}

	return nil
}

func (wr *tarWriter) WriteBytes(fName string, buf []byte) error {
	header := &tar.Header{
		Name:     filepath.ToSlash(fName),
		Size:     int64(len(buf)),
		Mode:     0644,
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
	}

	if err := wr.tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write file header: %w", err)
	}

	if _, err := wr.tw.Write(buf); err != nil {
		return fmt.Errorf("write file content: %w", err)
	}
	return nil
}

// WriteDirectory archives every file under baseDir, placing entries under
// prefix inside the archive. Directory entries are omitted; package manager
// clients create directories implicitly on unpack.
func (wr *tarWriter) WriteDirectory(baseDir string, prefix string, excludeFn func(fsPath string, d os.DirEntry) error) error {
	baseDir = filepath.ToSlash(baseDir)
	if !strings.HasSuffix(baseDir, "/") {
		baseDir += "/"
	}

	var files []string
	if err := filepath.WalkDir(baseDir, func(fsPath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if excludeFn != nil {
			switch err := excludeFn(fsPath, d); {
			case err == archiver.SkipDir:
				return filepath.SkipDir
			case err == archiver.SkipFile:
				return nil
			case err != nil:
				return err
			}
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(baseDir, fsPath)
		if err != nil {
			return fmt.Errorf("get relative path: %w", err)
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	}); err != nil {
		return fmt.Errorf("walk directory %s: %w", baseDir, err)
	}

	sort.Strings(files)
	for _, rel := range files {
		name := rel
		if prefix != "" {
			name = prefix + "/" + rel
		}
		filePath := filepath.Join(baseDir, filepath.FromSlash(rel))
		fileInfo, err := os.Stat(filePath)
		if err != nil {
			return fmt.Errorf("get file info: %w", err)
		}

		header := &tar.Header{
			Name:     name,
			Size:     fileInfo.Size(),
			Mode:     int64(fileInfo.Mode().Perm()),
			ModTime:  epoch,
			Typeflag: tar.TypeReg,
		}
		if err := wr.tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write file header: %w", err)
		}

		f, err := os.Open(filePath)
		if err != nil {
			return fmt.Errorf("open %s: %w", filePath, err)
		}
		if _, err := io.Copy(wr.tw, f); err != nil {
			f.Close()
			return fmt.Errorf("write file content: %w", err)
		}
		f.Close()
	}
	return nil
}
