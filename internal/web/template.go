package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/greenhouse/internal/state"
	"github.com/sweeney/greenhouse/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
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
	"level": state.Level,
	"onoff": state.OnOff,
	"inc":   func(i int) int { return i + 1 },
	"fixed": func(v float64) string { return fmt.Sprintf("%.1f", v) },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="60">
<title>Greenhouse</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on, .high { color: green; font-weight: bold; }
.off, .low { color: #888; }
.night { color: navy; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Greenhouse{{if .Last.Command.Night}} <span class="night">(night)</span>{{end}}</h1>
{{if .Ready}}{{with .Last}}
<h2>Climate</h2>
<table>
<tr><th>Air</th><td>{{fixed .Readings.AirCelsius}} &deg;C (smoothed {{fixed .SmoothedCelsius}})</td></tr>
<tr><th>Humidity</th><td>{{fixed .Readings.HumidityPercent}} %</td></tr>
<tr><th>Pressure</th><td>{{fixed .Readings.PressureKPa}} kPa</td></tr>
<tr><th>CPU</th><td>{{fixed .Readings.CPUCelsius}} &deg;C</td></tr>
{{range $i, $ec := .Readings.Conductivity}}<tr><th>EC {{inc $i}}</th><td>{{fixed $ec}}</td></tr>
{{end}}</table>

<h2>Water</h2>
<table>
{{range $i, $l := .WaterLevel}}<tr><th>Level {{inc $i}}</th><td class="{{level $l}}">{{level $l}}</td></tr>
{{end}}{{range $i, $p := .Command.Pump}}<tr><th>Pump {{inc $i}}</th><td class="{{onoff $p}}">{{onoff $p}}</td></tr>
{{end}}</table>

<h2>Fans</h2>
<table>
<tr><th>Relay</th><td class="{{onoff .Command.FanRelay}}">{{onoff .Command.FanRelay}}</td></tr>
<tr><th>Duty</th><td>{{fixed .Command.DutyPercent}} %</td></tr>
{{range $i, $rpm := .FanRPM}}<tr><th>Fan {{inc $i}}</th><td>{{$rpm}} rpm</td></tr>
{{end}}</table>
<p>Last tick {{.Time.UTC.Format "2006-01-02T15:04:05Z"}}</p>
{{end}}{{else}}
<p>Waiting for the first control tick.</p>
{{end}}
<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Ticks</th><td>{{.Ticks}}</td></tr>
<tr><th>Board</th><td>{{.Config.Board}}</td></tr>
<tr><th>Tach window</th><td>{{.Config.TachWindow}} pulses</td></tr>
<tr><th>Fan ramp</th><td>{{fixed .Config.FanMinCelsius}}-{{fixed .Config.FanMaxCelsius}} &deg;C</td></tr>
<tr><th>CSV</th><td>{{.CSVPath}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
