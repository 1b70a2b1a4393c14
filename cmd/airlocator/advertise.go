package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/airlocator/airlocator/pkg/client"
)

func NewAdvertiseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "advertise",
		Short:   "Advertise this machine as a beacon",
		GroupID: gBasic,
	}

	var (
		major uint16
		minor uint16
		power int
	)
	startCmd := &cobra.Command{
		Use:   "start uuid",
		Short: "Start advertising",
		Long: `Start advertising this machine as a beacon.

The measured power defaults to the daemon config. A positive value is taken
as its negative, so 59 and -59 are equivalent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid uuid %q: %w", args[0], err)
			}
			st, err := apiClient.SetAdvertising(client.Advertising{
				Enabled:       true,
				UUID:          u.String(),
				Major:         major,
				Minor:         minor,
				MeasuredPower: power,
			})
			if err != nil {
				return err
			}
			printAdvertising(cmd, st)
			return nil
		},
	}
	startCmd.Flags().Uint16Var(&major, "major", 0, "major value")
	startCmd.Flags().Uint16Var(&minor, "minor", 0, "minor value")
	startCmd.Flags().IntVar(&power, "power", 0, "measured power in dBm")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop advertising",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.SetAdvertising(client.Advertising{Enabled: false})
			if err != nil {
				return err
			}
			printAdvertising(cmd, st)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show what is being advertised",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetAdvertising()
			if err != nil {
				return err
			}
			printAdvertising(cmd, st)
			return nil
		},
	}

	cmd.AddCommand(startCmd, stopCmd, statusCmd)

	return cmd
}

func printAdvertising(cmd *cobra.Command, st *client.Advertising) {
	if !st.Enabled {
		cmd.Println("Not advertising.")
		return
	}
	cmd.Printf("Advertising %s major %d minor %d, measured power %s\n",
		bold("%s", st.UUID), st.Major, st.Minor, bold("%d dBm", st.MeasuredPower))
}
