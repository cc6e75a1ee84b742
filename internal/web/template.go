package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/rack-power/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"duration": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"orUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
	"stateClass": func(s string) string {
		switch s {
		case "ON":
			return "on"
		case "OFF":
			return "off"
		case "":
			return "unknown"
		}
		return "busy"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Rack Power</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.busy { color: #c60; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Rack Power</h1>

<h2>State</h2>
<table>
<tr><th>State</th><td id="state" class="{{stateClass (printf "%s" .Rack.State)}}">{{orUnknown (printf "%s" .Rack.State)}}</td></tr>
<tr><th>In state</th><td>{{duration .InState}}</td></tr>
<tr><th>Target</th><td>{{.Rack.Target}}{{if .Rack.Pending}} (pending){{end}}</td></tr>
<tr><th>Switch</th><td>{{orUnknown (printf "%s" .Rack.Switch)}}</td></tr>
<tr><th>Shutdown ack</th><td>{{orUnknown (printf "%s" .Rack.Ack)}}</td></tr>
<tr><th>Ready</th><td>{{if .Rack.Baselined}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Outputs</h2>
<table>
<tr><th>Mixer</th><td class="{{stateClass (onOff .Rack.Commands.Mixer)}}">{{onOff .Rack.Commands.Mixer}}</td></tr>
<tr><th>Computer</th><td class="{{stateClass (onOff .Rack.Commands.Computer)}}">{{onOff .Rack.Commands.Computer}}</td></tr>
<tr><th>Subwoofers</th><td class="{{stateClass (onOff .Rack.Commands.Subwoofers)}}">{{onOff .Rack.Commands.Subwoofers}}</td></tr>
<tr><th>Run signal</th><td class="{{stateClass (onOff .Rack.Commands.RunSignal)}}">{{onOff .Rack.Commands.RunSignal}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}none{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}: {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Sequences</h2>
<table>
<tr><th>Powered on</th><td>{{.Rack.Counts.PowerOn}}</td></tr>
<tr><th>Powered off</th><td>{{.Rack.Counts.PowerOff}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{duration .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Signal settle</th><td>{{.Config.SignalSettleMs}}ms</td></tr>
<tr><th>Boot settle</th><td>{{.Config.BootSettleMs}}ms</td></tr>
<tr><th>Stabilize</th><td>{{.Config.StabilizeMs}}ms</td></tr>
<tr><th>Shutdown retrigger</th><td>{{if eq .Config.ShutdownRetriggerMs 0}}disabled{{else}}{{.Config.ShutdownRetriggerMs}}ms{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() and InState() methods but the template needs fields.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		InState time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		InState:  snap.InState(),
	}
	return indexTmpl.Execute(w, data)
}
