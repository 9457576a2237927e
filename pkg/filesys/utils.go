package filesys

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	AppEnvironVar = "NPMSNAP_ROOT"
	AppUserDir    = ".npmsnap"
)

func GetRootDir() (string, error) {
	rootDir := os.Getenv(AppEnvironVar)
	if rootDir == "" {
		userDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		rootDir = filepath.Join(userDir, AppUserDir)
	}
	if _, err := os.Stat(rootDir); err != nil {
		if err := os.MkdirAll(rootDir, 0755); err != nil {
			return "", fmt.Errorf("create root dir: %w", err)
		}
	}
	return rootDir, nil
}

// GetArtifactsCacheDir returns the directory holding repackaged tarballs.
func GetArtifactsCacheDir() (string, error) {
	rootDir, err := GetRootDir()
	if err != nil {
		return "", fmt.Errorf("get root dir: %w", err)
	}
	cacheDir := filepath.Join(rootDir, "artifacts")
	if _, err := os.Stat(cacheDir); err != nil {
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			return "", fmt.Errorf("create artifacts cache dir: %w", err)
		}
	}
	return cacheDir, nil
}

// ReplaceWithMove moves src over dst, removing any previous dst first.
func ReplaceWithMove(src string, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("remove %s: %w", dst, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), os.ModePerm); err != nil {
		return fmt.Errorf("create parent of %s: %w", dst, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("move %s to %s: %w", src, dst, err)
	}
	return nil
}
