package servecmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/npmsnap/npmsnap/internal/app/command"
	"github.com/npmsnap/npmsnap/pkg/registry"
	"github.com/npmsnap/npmsnap/pkg/snapshot"
)

const (
	snapshotFlag = "snapshot"
	portFileFlag = "port-file"

	shutdownTimeout = 10 * time.Second
)

func New(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve a snapshot as a local package registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snapshotPath, err := cmd.Flags().GetString(snapshotFlag)
			if err != nil {
				return fmt.Errorf("get snapshot flag: %w", err)
			}
			portFile, err := cmd.Flags().GetString(portFileFlag)
			if err != nil {
				return fmt.Errorf("get port-file flag: %w", err)
			}

			return command.WrapError(serve(ctx, snapshotPath, portFile))
		},
	}

	cmd.Flags().StringP(snapshotFlag, "s", "", "path of the snapshot file to serve")
	cmd.Flags().StringP(portFileFlag, "p", "", "file to write the bound port to once serving")
	_ = cmd.MarkFlagRequired(snapshotFlag)
	_ = cmd.MarkFlagRequired(portFileFlag)

	return cmd
}

// serve loads the snapshot and runs the registry until the surrounding
// process is told to stop. A snapshot load failure exits before the port
// file exists, so a waiting orchestrator observes the failure instead of
// hanging on the handshake.
func serve(ctx context.Context, snapshotPath string, portFile string) error {
	snap, err := snapshot.Load(snapshotPath)
	if err != nil {
		return err
	}

	srv := registry.New(snap, portFile)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start registry: %w", err)
	}

	<-ctx.Done()
	slog.Info("Shutting down registry")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown registry: %w", err)
	}
	return nil
}
