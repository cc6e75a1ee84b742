package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/rack-power/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string       `json:"event,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	State          string       `json:"state"`
	Target         string       `json:"target"`
	Pending        bool         `json:"pending"`
	InStateSeconds int64        `json:"in_state_seconds"`
	Switch         string       `json:"switch"`
	ShutdownAck    string       `json:"shutdown_ack"`
	Ready          bool         `json:"ready"`
	Outputs        OutputsJSON  `json:"outputs"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	StartTime      string       `json:"start_time"`
	Timestamp      string       `json:"timestamp"`
	MQTT           MQTTStatus   `json:"mqtt"`
	Counts         CountsJSON   `json:"event_counts"`
	Network        *NetworkJSON `json:"network,omitempty"`
	Config         ConfigJSON   `json:"config"`
}

// OutputsJSON reports each commanded output.
type OutputsJSON struct {
	Mixer      bool `json:"mixer"`
	Computer   bool `json:"computer"`
	Subwoofers bool `json:"subwoofers"`
	RunSignal  bool `json:"run_signal"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	PowerOn  int `json:"power_on"`
	PowerOff int `json:"power_off"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs              int64  `json:"poll_ms"`
	SignalSettleMs      int64  `json:"signal_settle_ms"`
	BootSettleMs        int64  `json:"boot_settle_ms"`
	StabilizeMs         int64  `json:"stabilize_ms"`
	ShutdownRetriggerMs int64  `json:"shutdown_retrigger_ms"`
	HeartbeatMs         int64  `json:"heartbeat_ms"`
	Broker              string `json:"broker"`
	HTTPAddr            string `json:"http_addr"`
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	r := snap.Rack
	return StatusInner{
		State:          orUnknown(string(r.State)),
		Target:         r.Target.String(),
		Pending:        r.Pending,
		InStateSeconds: int64(snap.InState().Truncate(time.Second).Seconds()),
		Switch:         orUnknown(string(r.Switch)),
		ShutdownAck:    orUnknown(string(r.Ack)),
		Ready:          r.Baselined,
		Outputs:        buildOutputs(r.Commands),
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			PowerOn:  r.Counts.PowerOn,
			PowerOff: r.Counts.PowerOff,
		},
		Config: ConfigJSON{
			PollMs:              snap.Config.PollMs,
			SignalSettleMs:      snap.Config.SignalSettleMs,
			BootSettleMs:        snap.Config.BootSettleMs,
			StabilizeMs:         snap.Config.StabilizeMs,
			ShutdownRetriggerMs: snap.Config.ShutdownRetriggerMs,
			HeartbeatMs:         snap.Config.HeartbeatMs,
			Broker:              snap.Config.Broker,
			HTTPAddr:            snap.Config.HTTPAddr,
		},
	}
}

func buildOutputs(c logic.RelayCommandSet) OutputsJSON {
	return OutputsJSON{
		Mixer:      c.Mixer,
		Computer:   c.Computer,
		Subwoofers: c.Subwoofers,
		RunSignal:  c.RunSignal,
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
