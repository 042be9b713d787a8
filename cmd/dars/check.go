package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ligustah/dars/internal/progress"
	"github.com/ligustah/dars/internal/store"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check name...",
		Short: "Report whether archives exist locally and in the object store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			out := cmd.OutOrStdout()
			for _, name := range args {
				local := "missing"
				if info, err := os.Stat(filepath.Join(a.cfg.DownloadDir, name)); err == nil {
					local = progress.FormatBytes(info.Size())
				}

				remote := "-"
				if st != nil {
					size, err := st.Size(ctx, st.Key(name))
					switch {
					case err == nil:
						remote = progress.FormatBytes(size)
					case errors.Is(err, store.ErrNotFound):
						remote = "missing"
					default:
						return exitWith(ExitStorageError, err)
					}
				}

				fmt.Fprintf(out, "%s\tlocal=%s\tremote=%s\n", name, local, remote)
			}
			return nil
		},
	}
}
