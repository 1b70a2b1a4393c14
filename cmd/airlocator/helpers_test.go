package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/airlocator/airlocator/pkg/config"
	"github.com/airlocator/airlocator/pkg/events"
	"github.com/airlocator/airlocator/pkg/ranging"
)

func TestParseRegionArgs(t *testing.T) {
	r, err := parseRegionArgs([]string{"b9407f30-f5f8-466e-aff9-25556b57fe6d", "1", "2"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Key() != "B9407F30-F5F8-466E-AFF9-25556B57FE6D/1/2" {
		t.Fatalf("unexpected key %q", r.Key())
	}

	for _, args := range [][]string{
		nil,
		{"not-a-uuid"},
		{"b9407f30-f5f8-466e-aff9-25556b57fe6d", "70000"},
		{"b9407f30-f5f8-466e-aff9-25556b57fe6d", "1", "2", "3"},
	} {
		if _, err := parseRegionArgs(args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		percent float64
		want    string
	}{
		{0, "[----------]   0%"},
		{0.5, "[#####-----]  50%"},
		{1, "[##########] 100%"},
		{1.5, "[##########] 100%"},
		{-1, "[----------]   0%"},
	}
	for _, tt := range tests {
		if got := progressBar(tt.percent, 10); got != tt.want {
			t.Fatalf("progressBar(%v) = %q, want %q", tt.percent, got, tt.want)
		}
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	run := func(args ...string) error {
		cmd := NewCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append([]string{"--config", path, "config", "init"}, args...))
		return cmd.Execute()
	}

	if err := run("--dwell", "30", "--power", "61"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	conf, err := config.NewFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if conf.Dwell().Seconds() != 30 || conf.DefaultMeasuredPower() != -61 {
		t.Fatalf("unexpected config: %v %v", conf.Dwell(), conf.DefaultMeasuredPower())
	}

	if err := run(); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected refusal to overwrite, got %v", err)
	}
	if err := run("--force", "--trim", "0.7"); err == nil {
		t.Fatalf("expected invalid trim to fail")
	}
}

func TestMonitorOutput(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	cmd := NewMonitorCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	printRegions(cmd, nil)
	if !strings.Contains(out.String(), "No regions monitored") {
		t.Fatalf("unexpected output %q", out.String())
	}

	out.Reset()
	printRegions(cmd, []ranging.RegionStatus{{
		Key:            "B9407F30-F5F8-466E-AFF9-25556B57FE6D/1",
		MonitorOptions: ranging.MonitorOptions{NotifyOnEntry: true},
		State:          ranging.RegionInside,
	}})
	for _, want := range []string{"B9407F30-F5F8-466E-AFF9-25556B57FE6D/1", "inside", "entry on", "exit off"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output %q lacks %q", out.String(), want)
		}
	}

	line := formatRegionEvent(events.RegionStateEvent{Region: "R", State: "outside", Ts: 1700000000})
	if !strings.Contains(line, "left R") {
		t.Fatalf("unexpected event line %q", line)
	}
	line = formatRegionEvent(events.RegionStateEvent{Region: "R", State: "inside", Ts: 1700000000})
	if !strings.Contains(line, "entered R") {
		t.Fatalf("unexpected event line %q", line)
	}
}
