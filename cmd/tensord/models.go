package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tensord/internal/registry"
)

func newModelsCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "models",
		Short:   "List model artifacts in the model cache directory",
		Example: "  tensord models --model-dir ~/models",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			arts, err := registry.Discover(o.cfg.ModelCacheDirectory)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVERSION\tTYPE\tSIZE\tPATH")
			for _, a := range arts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.Name, a.Version, a.Type, humanize.IBytes(a.SizeBytes), a.Path)
			}
			return tw.Flush()
		},
	}
}
