package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/airlocator/airlocator/pkg/beacon"
)

// parseRegionArgs reads "UUID [major [minor]]".
func parseRegionArgs(args []string) (beacon.Region, error) {
	if len(args) < 1 || len(args) > 3 {
		return beacon.Region{}, fmt.Errorf("invalid number of arguments")
	}
	var major, minor string
	if len(args) > 1 {
		major = args[1]
	}
	if len(args) > 2 {
		minor = args[2]
	}
	r, err := beacon.ParseRegion(args[0], major, minor)
	if err != nil {
		return beacon.Region{}, fmt.Errorf("invalid region: %w", err)
	}
	return r, nil
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func proximityColor(p beacon.Proximity) string {
	switch p {
	case beacon.ProximityImmediate:
		return color.New(color.Bold, color.FgGreen).Sprint(p)
	case beacon.ProximityNear:
		return color.GreenString(string(p))
	case beacon.ProximityFar:
		return color.YellowString(string(p))
	default:
		return color.RedString(string(p))
	}
}

// progressBar renders percent in [0,1] as a bar of width cells.
func progressBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 1 {
		percent = 1
	}
	filled := int(percent * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]" +
		fmt.Sprintf(" %3.0f%%", percent*100)
}
