package command

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const (
	workingDirFlag = "working-dir"
)

// Lock file names recognized when no explicit paths are given, in lookup
// order. npm-shrinkwrap.json takes precedence over package-lock.json, as it
// does for npm itself.
var lockFileNames = []string{"npm-shrinkwrap.json", "package-lock.json"}

func AddWorkDirFlag(cmd *cobra.Command) {
	cwd, _ := os.Getwd()

	cmd.PersistentFlags().StringP(workingDirFlag, "w", cwd, "define working directory")
}

func GetWorkingDir(cmd *cobra.Command) (string, error) {
	baseDir, err := cmd.Flags().GetString(workingDirFlag)
	if err != nil {
		return "", fmt.Errorf("get working-dir flag: %w", err)
	}
	return baseDir, nil
}

// FindLockFile locates a lock document under baseDir. Absence is a
// configuration error the caller reports before doing any work.
func FindLockFile(baseDir string) (string, error) {
	for _, name := range lockFileNames {
		path := filepath.Join(baseDir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no usable lock file (%v) found in %s", lockFileNames, baseDir)
}
