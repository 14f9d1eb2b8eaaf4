// Package platform turns a schedule into OS-native recurring jobs.
//
// Three adapters implement Adapter:
//
//   - launchd: one LaunchDaemon per entry plus a wake-arming daemon (macOS)
//   - systemd: a oneshot service and a timer with one OnCalendar line per entry,
//     activated over D-Bus; cron is the fallback when systemd is not running
//   - taskscheduler: one scheduled task per entry, wrapped through WSL (Windows)
//
// Every adapter stages its descriptors before touching the host, removes the
// jobs of a previous registration before installing new ones, and rolls back
// what it installed if a later step fails. Host commands go through Runner and
// files through afero.Fs so tests never touch the machine.
package platform
