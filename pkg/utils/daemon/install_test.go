package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderUnit(t *testing.T) {
	unit := RenderUnit("/usr/local/bin/airlocator", "/etc/airlocator/config.json", "/run/airlocator.sock")

	for _, want := range []string{
		"ExecStart=/usr/local/bin/airlocator daemon --config=/etc/airlocator/config.json --daemon-socket=/run/airlocator.sock",
		"After=bluetooth.target",
		"WantedBy=multi-user.target",
	} {
		if !strings.Contains(unit, want) {
			t.Fatalf("unit is missing %q:\n%s", want, unit)
		}
	}
	if strings.Contains(unit, "/path/to") {
		t.Fatalf("unit still has placeholders:\n%s", unit)
	}
}

func TestInstallUninstall(t *testing.T) {
	prevPath, prevCtl := unitPath, systemctl
	t.Cleanup(func() { unitPath, systemctl = prevPath, prevCtl })

	unitPath = filepath.Join(t.TempDir(), "systemd", unitName)
	var calls []string
	systemctl = func(args ...string) error {
		calls = append(calls, strings.Join(args, " "))
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		t.Skipf("no executable path: %v", err)
	}
	if err := os.Chmod(exe, 0755); err != nil {
		t.Skipf("cannot chmod test binary: %v", err)
	}

	if err := Install("/etc/airlocator/config.json", "/run/airlocator.sock"); err != nil {
		t.Fatalf("install: %v", err)
	}
	b, err := os.ReadFile(unitPath)
	if err != nil {
		t.Fatalf("unit not written: %v", err)
	}
	if !strings.Contains(string(b), "daemon --config=/etc/airlocator/config.json") {
		t.Fatalf("unexpected unit:\n%s", b)
	}

	if err := Uninstall(); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if _, err := os.Stat(unitPath); !os.IsNotExist(err) {
		t.Fatalf("unit should be removed, stat err: %v", err)
	}

	want := []string{"daemon-reload", "enable --now airlocator.service", "disable --now airlocator.service", "daemon-reload"}
	if strings.Join(calls, ";") != strings.Join(want, ";") {
		t.Fatalf("unexpected systemctl calls: %v", calls)
	}
}
