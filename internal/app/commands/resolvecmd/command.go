package resolvecmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/npmsnap/npmsnap/internal/app/command"
	"github.com/npmsnap/npmsnap/pkg/closure"
	"github.com/npmsnap/npmsnap/pkg/fetcher"
	"github.com/npmsnap/npmsnap/pkg/lockfile"
	"github.com/npmsnap/npmsnap/pkg/snapshot"
)

const (
	manifestFlag   = "manifest"
	outFlag        = "out"
	snapshotFlag   = "snapshot"
	nameFlag       = "name"
	pkgVersionFlag = "pkg-version"
)

func New(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [lockfile...]",
		Short: "compute the dependency closure of lock files and build a verified snapshot",
		Args:  cobra.MinimumNArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			lockFiles, err := collectLockFiles(cmd, args)
			if err != nil {
				return command.WrapError(err)
			}

			snapshotPath, err := cmd.Flags().GetString(snapshotFlag)
			if err != nil {
				return fmt.Errorf("get snapshot flag: %w", err)
			}
			outDir, err := cmd.Flags().GetString(outFlag)
			if err != nil {
				return fmt.Errorf("get out flag: %w", err)
			}
			name, err := cmd.Flags().GetString(nameFlag)
			if err != nil {
				return fmt.Errorf("get name flag: %w", err)
			}
			version, err := cmd.Flags().GetString(pkgVersionFlag)
			if err != nil {
				return fmt.Errorf("get pkg-version flag: %w", err)
			}

			return command.WrapError(resolve(ctx, lockFiles, resolveOptions{
				snapshotPath: snapshotPath,
				outDir:       outDir,
				name:         name,
				version:      version,
			}))
		},
	}

	cmd.Flags().StringP(manifestFlag, "m", "", "YAML manifest listing lock files in merge order")
	cmd.Flags().StringP(outFlag, "o", "", "directory for repackaged tarballs (default: user cache)")
	cmd.Flags().StringP(snapshotFlag, "s", "snapshot.json", "path of the snapshot file to write")
	cmd.Flags().String(nameFlag, "", "override the top-level package name")
	cmd.Flags().String(pkgVersionFlag, "", "override the top-level package version")

	return cmd
}

type resolveOptions struct {
	snapshotPath string
	outDir       string
	name         string
	version      string
}

// collectLockFiles determines the ordered lock file list: explicit args win,
// then the manifest, then discovery in the working directory.
func collectLockFiles(cmd *cobra.Command, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}

	manifestPath, err := cmd.Flags().GetString(manifestFlag)
	if err != nil {
		return nil, fmt.Errorf("get manifest flag: %w", err)
	}
	if manifestPath != "" {
		m, err := command.LoadManifest(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("load manifest: %w", err)
		}
		return m.LockFiles, nil
	}

	baseDir, err := command.GetWorkingDir(cmd)
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	lockFile, err := command.FindLockFile(baseDir)
	if err != nil {
		return nil, err
	}
	return []string{lockFile}, nil
}

func resolve(ctx context.Context, lockFiles []string, opts resolveOptions) error {
	var fetcherOpts []fetcher.Option
	if opts.outDir != "" {
		fetcherOpts = append(fetcherOpts, fetcher.WithCacheDir(opts.outDir))
	}
	f, err := fetcher.New(fetcherOpts...)
	if err != nil {
		return fmt.Errorf("initialize fetcher: %w", err)
	}

	var parseOpts []lockfile.Option
	if opts.name != "" {
		parseOpts = append(parseOpts, lockfile.WithName(opts.name))
	}
	if opts.version != "" {
		parseOpts = append(parseOpts, lockfile.WithVersion(opts.version))
	}

	// Lock files fold in argument order; the later file wins on collision.
	snap := snapshot.New()
	for _, lockPath := range lockFiles {
		root, err := lockfile.Parse(lockPath, parseOpts...)
		if err != nil {
			return err
		}

		members := closure.Compute(root)
		slog.Info("Resolved lock file",
			slog.String("lock_file", lockPath),
			slog.Int("closure_size", len(members)),
		)

		entries, err := f.Resolve(ctx, members)
		if err != nil {
			return fmt.Errorf("lock file %s: %w", lockPath, err)
		}
		snap.Add(entries)
	}

	if err := snap.Save(opts.snapshotPath); err != nil {
		return err
	}

	slog.Info("Snapshot written",
		slog.String("snapshot", opts.snapshotPath),
		slog.Int("packages", len(snap)),
	)
	return nil
}
