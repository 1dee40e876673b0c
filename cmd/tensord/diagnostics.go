package main

import (
	"encoding/json"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tensord/internal/manager"
	"tensord/internal/native"
)

type diagnosticsReport struct {
	native.Diagnostics
	Sanity  manager.SanityReport    `json:"sanity"`
	Devices []native.DeviceSnapshot `json:"devices,omitempty"`
}

func newDiagnosticsCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "diagnostics",
		Short:   "Probe for the native library and print the search report as JSON",
		Example: "  tensord diagnostics --native-library /opt/lib/libtensor_ops.so",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mc, err := managerConfig(o.cfg, &o.log)
			if err != nil {
				return err
			}
			mgr, err := manager.NewWithConfig(mc)
			if err != nil {
				return err
			}
			defer mgr.Close()

			rep := diagnosticsReport{Diagnostics: mgr.Diagnostics(), Sanity: mgr.SanityCheck()}
			for id := 0; id < mgr.DeviceCount(); id++ {
				s, err := mgr.DeviceSnapshot(id)
				if err != nil {
					o.log.Warn().Err(err).Int("device", id).Msg("device snapshot")
					continue
				}
				o.log.Debug().Int("device", id).Str("free", humanize.IBytes(s.FreeMemoryBytes)).Msg("device snapshot")
				rep.Devices = append(rep.Devices, s)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
}
