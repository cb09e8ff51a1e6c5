package metrics

import (
	"fmt"
	"time"
)

var (
	ScansTotal      = Collector.Counter("chatmark_scans_total", "Completed page scans", "")
	ScanNodeErrors  = Collector.Counter("chatmark_scan_node_errors_total", "Message nodes skipped because extraction failed", "")
	MessagesTracked = Collector.Counter("chatmark_messages_tracked_total", "Messages newly tracked by scanners", "")
	SnapshotsPushed = Collector.Counter("chatmark_snapshots_pushed_total", "Chat snapshots sent to the coordinator", "")
	ActiveTrackers  = Collector.Gauge("chatmark_active_trackers", "Trackers currently attached to a page", "")
	PanelClients    = Collector.Gauge("chatmark_panel_clients", "Connected panel websocket clients", "")
	PanelThrottled  = Collector.Counter("chatmark_panel_throttled_total", "Panel requests rejected by the rate limiter", "")

	ScanLatency = Collector.Histogram("chatmark_scan_seconds", "Scan duration in seconds", "",
		[]float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5})
)

var commandBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// ObserveCommand records one handled command.
func ObserveCommand(action string, success bool, elapsed time.Duration) {
	labels := fmt.Sprintf("action=%q", action)
	Collector.Counter("chatmark_commands_total", "Commands handled by the coordinator", labels).Inc()
	if !success {
		Collector.Counter("chatmark_command_failures_total", "Commands answered with success=false", labels).Inc()
	}
	Collector.Histogram("chatmark_command_seconds", "Command latency in seconds", labels, commandBuckets).
		Observe(elapsed.Seconds())
}
