package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/airlocator/airlocator/pkg/config"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Manage the daemon config file",
		GroupID: gAdvanced,
	}

	var (
		force        bool
		dwellSeconds int
		trimFraction float64
		power        int
	)
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a config file with every default filled in",
		Annotations: localOnly,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite it", configPath)
			}

			conf := config.NewFileFromConfig(config.DefaultRawFileConfig(), configPath)
			if dwellSeconds < 1 {
				return fmt.Errorf("dwell must be at least 1 second, got %d", dwellSeconds)
			}
			if trimFraction < 0 || trimFraction > config.MaxTrimFraction {
				return fmt.Errorf("trim fraction must be between 0 and %v, got %v", config.MaxTrimFraction, trimFraction)
			}
			conf.SetDwell(time.Duration(dwellSeconds) * time.Second)
			conf.SetTrimFraction(trimFraction)
			conf.SetDefaultMeasuredPower(power)

			if err := conf.Validate(); err != nil {
				return err
			}
			if err := conf.Save(); err != nil {
				return err
			}

			cmd.Printf("wrote %s\n", configPath)
			cmd.Println("Send SIGHUP to a running daemon to reload it.")
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	initCmd.Flags().IntVar(&dwellSeconds, "dwell", 20, "calibration dwell in seconds")
	initCmd.Flags().Float64Var(&trimFraction, "trim", 0.1, "fraction of samples trimmed from each end")
	initCmd.Flags().IntVar(&power, "power", -59, "default measured power in dBm")

	cmd.AddCommand(initCmd)

	return cmd
}
