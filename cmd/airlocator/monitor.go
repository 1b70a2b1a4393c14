package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/airlocator/airlocator/pkg/client"
	"github.com/airlocator/airlocator/pkg/events"
	"github.com/airlocator/airlocator/pkg/ranging"
	"github.com/airlocator/airlocator/pkg/utils/ptr"
)

func NewMonitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Report when beacon regions come into or go out of range",
		Long: `Report when beacon regions come into or go out of range.

A region is inside as soon as one of its beacons is ranged, and outside once
none has been seen for two ranging intervals. Monitored regions are kept in
memory by the daemon.`,
		GroupID: gBasic,
	}

	var noEntry, noExit bool
	startCmd := &cobra.Command{
		Use:   "start uuid [major [minor]]",
		Short: "Start monitoring a region",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			region, err := parseRegionArgs(args)
			if err != nil {
				return err
			}
			regions, err := apiClient.SetMonitoring(client.Monitoring{
				Region:        region,
				NotifyOnEntry: ptr.To(!noEntry),
				NotifyOnExit:  ptr.To(!noExit),
				Enabled:       true,
			})
			if err != nil {
				return fmt.Errorf("failed to start monitoring: %w", err)
			}
			printRegions(cmd, regions)
			return nil
		},
	}
	startCmd.Flags().BoolVar(&noEntry, "no-entry", false, "do not report entering the region")
	startCmd.Flags().BoolVar(&noExit, "no-exit", false, "do not report leaving the region")

	stopCmd := &cobra.Command{
		Use:   "stop uuid [major [minor]]",
		Short: "Stop monitoring a region",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			region, err := parseRegionArgs(args)
			if err != nil {
				return err
			}
			regions, err := apiClient.SetMonitoring(client.Monitoring{Region: region})
			if errors.Is(err, client.ErrNotFound) {
				return fmt.Errorf("region %s is not monitored", region.Key())
			}
			if err != nil {
				return fmt.Errorf("failed to stop monitoring: %w", err)
			}
			printRegions(cmd, regions)
			return nil
		},
	}

	var asJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show monitored regions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			regions, err := apiClient.GetMonitoring()
			if err != nil {
				return fmt.Errorf("failed to get monitored regions: %w", err)
			}
			if asJSON {
				b, err := json.MarshalIndent(regions, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}
			printRegions(cmd, regions)
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Print region entries and exits until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for ev := range apiClient.SubscribeEvents(ctx) {
				if ev.Name != events.RegionState {
					continue
				}
				st, err := events.DecodeAs[events.RegionStateEvent](ev)
				if err != nil {
					continue
				}
				cmd.Println(formatRegionEvent(st))
			}
			return nil
		},
	}

	cmd.AddCommand(startCmd, stopCmd, statusCmd, watchCmd)

	return cmd
}

func printRegions(cmd *cobra.Command, regions []ranging.RegionStatus) {
	if len(regions) == 0 {
		cmd.Println("No regions monitored.")
		return
	}
	for _, r := range regions {
		cmd.Printf("%s %s (entry %s, exit %s)\n", bold("%s", r.Key), regionStateColor(r.State),
			onOff(r.NotifyOnEntry), onOff(r.NotifyOnExit))
	}
}

func formatRegionEvent(ev events.RegionStateEvent) string {
	verb := color.YellowString("left")
	if ev.State == string(ranging.RegionInside) {
		verb = color.GreenString("entered")
	}
	when := time.Unix(ev.Ts, 0).Local().Format(time.Kitchen)
	return fmt.Sprintf("%s %s %s", when, verb, ev.Region)
}

func regionStateColor(s ranging.RegionState) string {
	switch s {
	case ranging.RegionInside:
		return color.GreenString(string(s))
	case ranging.RegionOutside:
		return color.YellowString(string(s))
	default:
		return color.New(color.Faint).Sprint(s)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
