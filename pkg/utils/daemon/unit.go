package daemon

import "strings"

const unitTemplate = `[Unit]
Description=airlocator beacon daemon
After=bluetooth.target
Wants=bluetooth.target

[Service]
Type=simple
ExecStart=/path/to/airlocator daemon --config=/path/to/config.json --daemon-socket=/path/to/socket
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

var (
	unitName = "airlocator.service"
	unitPath = "/etc/systemd/system/" + unitName
)

// RenderUnit returns the systemd unit running exePath as the daemon.
func RenderUnit(exePath, configPath, socketPath string) string {
	return strings.NewReplacer(
		"/path/to/airlocator", exePath,
		"/path/to/config.json", configPath,
		"/path/to/socket", socketPath,
	).Replace(unitTemplate)
}
