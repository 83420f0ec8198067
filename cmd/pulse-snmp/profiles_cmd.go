package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rcourtman/pulse-snmp-profiles/internal/snmpconfig"
)

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List SNMP profiles in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := snmpconfig.Load(cfg.ProfilesFile)
			if err != nil {
				return err
			}
			return printProfiles(cmd.OutOrStdout(), cat.Profiles)
		},
	}
}

func printProfiles(out io.Writer, list []snmpconfig.Profile) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(out, "No SNMP profiles configured")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRIORITY\tLABEL\tVERSION\tFILTER")
	for i, p := range list {
		version := p.Version
		if version == "" {
			version = "-"
		}
		filter := p.FilterExpression
		if filter == "" {
			filter = "(any)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, p.Label, version, filter)
	}
	return w.Flush()
}
