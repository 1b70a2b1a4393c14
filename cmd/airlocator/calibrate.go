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

	"github.com/airlocator/airlocator/pkg/calibration"
	"github.com/airlocator/airlocator/pkg/events"
)

func NewCalibrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibrate",
		Aliases: []string{"calibration", "cali"},
		Short:   "Measure the power of a beacon at 1 meter",
		Long: `Measure the power of a beacon at 1 meter.

Hold the beacon 1 meter away from this machine while the calibration runs.
The measured power is the trimmed mean of the RSSI readings collected.`,
		GroupID: gBasic,
	}

	var noWait bool
	startCmd := &cobra.Command{
		Use:   "start uuid [major [minor]]",
		Short: "Start a calibration and follow its progress",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			region, err := parseRegionArgs(args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var evCh <-chan events.Event
			if !noWait {
				// Subscribe first so the result cannot be missed.
				streamCtx, cancelStream := context.WithCancel(context.Background())
				defer cancelStream()
				evCh = apiClient.SubscribeEvents(streamCtx)
			}

			ret, err := apiClient.StartCalibration(region)
			if err != nil {
				return fmt.Errorf("failed to start calibration: %w", err)
			}
			cmd.Println(ret)
			if noWait {
				return nil
			}

			return followCalibration(ctx, cmd, region.Key(), evCh)
		},
	}
	startCmd.Flags().BoolVar(&noWait, "no-wait", false, "return once the calibration started")

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the calibration in progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ret, err := apiClient.CancelCalibration()
			if err != nil {
				return fmt.Errorf("failed to cancel calibration: %w", err)
			}
			cmd.Println(ret)
			return nil
		},
	}

	var asJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show calibration status and recent results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetCalibrationStatus()
			if err != nil {
				return fmt.Errorf("failed to get calibration status: %w", err)
			}
			if asJSON {
				b, err := json.MarshalIndent(st, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			cmd.Printf("State: %s\n", bold("%s", st.State))
			if st.State == calibration.StateRunning || st.State == calibration.StateFinishing {
				cmd.Printf("Region: %s\n", st.Region)
				cmd.Printf("Progress: %s\n", progressBar(st.PercentComplete, 30))
				cmd.Printf("Started: %s\n", st.StartedAt.Local().Format(time.Kitchen))
			}
			if st.Last != nil {
				cmd.Printf("Last result: %s\n", formatOutcome(*st.Last))
			}
			if len(st.History) > 1 {
				cmd.Println("History:")
				for i := len(st.History) - 1; i >= 0; i-- {
					cmd.Printf("  %s\n", formatOutcome(st.History[i]))
				}
			}
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	cmd.AddCommand(startCmd, cancelCmd, statusCmd)

	return cmd
}

// followCalibration prints progress until the result for region arrives.
// Interrupting cancels the calibration and waits for the cancelled result.
func followCalibration(ctx context.Context, cmd *cobra.Command, region string, evCh <-chan events.Event) error {
	interrupted := false
	for {
		select {
		case <-ctx.Done():
			if !interrupted {
				interrupted = true
				cmd.Println()
				if _, err := apiClient.CancelCalibration(); err != nil {
					return fmt.Errorf("failed to cancel calibration: %w", err)
				}
			}
			// Stop selecting on the closed context.
			ctx = context.Background()
		case ev, ok := <-evCh:
			if !ok {
				return errors.New("event stream closed before the calibration finished")
			}
			switch ev.Name {
			case events.CalibrationProgress:
				p, err := events.DecodeAs[events.CalibrationProgressEvent](ev)
				if err != nil || p.Region != region {
					continue
				}
				cmd.Printf("\r%s", progressBar(p.PercentComplete, 30))
			case events.CalibrationResult:
				res, err := events.DecodeAs[events.CalibrationResultEvent](ev)
				if err != nil || res.Region != region {
					continue
				}
				cmd.Println()
				if res.Error != "" {
					return fmt.Errorf("calibration failed: %s", res.Error)
				}
				cmd.Printf("Measured power: %s (%d samples)\n",
					color.New(color.Bold, color.FgGreen).Sprintf("%d dBm", res.MeasuredPower), res.Samples)
				return nil
			}
		}
	}
}

func formatOutcome(o calibration.Outcome) string {
	when := o.FinishedAt.Local().Format(time.Kitchen)
	if o.Error != "" {
		return fmt.Sprintf("%s %s %s", when, o.Region, color.RedString(o.Error))
	}
	return fmt.Sprintf("%s %s %s (%d samples)", when, o.Region,
		color.New(color.Bold, color.FgGreen).Sprintf("%d dBm", o.MeasuredPower), o.Samples)
}
