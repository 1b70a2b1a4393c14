package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/airlocator/airlocator/pkg/beacon"
	"github.com/airlocator/airlocator/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version",
		Annotations: localOnly,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewBeaconsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "beacons [uuid [major [minor]]]",
		Short:   "List beacons in range",
		GroupID: gBasic,
		Long: `List beacons in range, nearest first, grouped by proximity.

Without arguments the proximity UUIDs from the daemon config are ranged.`,
		Args: cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var region *beacon.Region
			if len(args) > 0 {
				r, err := parseRegionArgs(args)
				if err != nil {
					return err
				}
				region = &r
			}

			visible, err := apiClient.GetBeacons(region)
			if err != nil {
				return fmt.Errorf("failed to list beacons: %w", err)
			}

			if asJSON {
				b, err := json.MarshalIndent(visible, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			total := 0
			for _, p := range beacon.Proximities {
				list := visible[p]
				if len(list) == 0 {
					continue
				}
				total += len(list)
				cmd.Printf("%s\n", proximityColor(p))
				for _, obs := range list {
					acc := "unknown"
					if obs.Accuracy >= 0 {
						acc = fmt.Sprintf("%.2f m", obs.Accuracy)
					}
					cmd.Printf("  %s  rssi %s dBm  power %d dBm  ~%s\n",
						obs.Identity.String(), bold("%d", obs.RSSI), obs.MeasuredPower, acc)
				}
			}
			if total == 0 {
				cmd.Println("No beacons in range.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}
