// pkg/hub/stats.go
// Copyright(c) 2024-2025 simhub contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package hub

import (
	"fmt"
	gomath "math"
	"net/http"
	"runtime"
	"sort"
	"text/template"
	"time"

	"github.com/shirou/gopsutil/cpu"
)

///////////////////////////////////////////////////////////////////////////
// Status / statistics via HTTP...

type hubStats struct {
	Uptime        time.Duration
	Alloc         int64
	TotalAlloc    int64
	Sys           int64
	NumGC         uint32
	NumGoRoutines int
	CPUUsage      int

	Servers []serverStatus
}

type serverStatus struct {
	ID      string
	Name    string
	Clients int
}

func formatBytes(v int64) string {
	if v < 1024 {
		return fmt.Sprintf("%d B", v)
	} else if v < 1024*1024 {
		return fmt.Sprintf("%d KiB", v/1024)
	} else if v < 1024*1024*1024 {
		return fmt.Sprintf("%d MiB", v/1024/1024)
	} else {
		return fmt.Sprintf("%d GiB", v/1024/1024/1024)
	}
}

var statsTemplate = template.Must(template.New("sup").
	Funcs(template.FuncMap{"bytes": formatBytes}).Parse(`
<!DOCTYPE html>
<html>
<head><title>simhub</title>
<style>
body { font-family: monospace; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #bbb; padding: 4px 12px; text-align: left; }
tr:nth-child(even) { background-color: #f4f4f4; }
</style>
</head>
<body>
<h2>Hub</h2>
<table>
  <tr><td>Uptime</td><td>{{.Uptime}}</td></tr>
  <tr><td>CPU</td><td>{{.CPUUsage}}%</td></tr>
  <tr><td>Allocated</td><td>{{bytes .Alloc}}</td></tr>
  <tr><td>Total allocated</td><td>{{bytes .TotalAlloc}}</td></tr>
  <tr><td>System memory</td><td>{{bytes .Sys}}</td></tr>
  <tr><td>GC passes</td><td>{{.NumGC}}</td></tr>
  <tr><td>Goroutines</td><td>{{.NumGoRoutines}}</td></tr>
</table>

<h2>Servers ({{len .Servers}})</h2>
<table>
  <tr><th>Name</th><th>Id</th><th>Clients</th></tr>
{{range .Servers}}  <tr><td>{{.Name}}</td><td><tt>{{.ID}}</tt></td><td>{{.Clients}}</td></tr>
{{end}}</table>
</body>
</html>
`))

func (h *Hub) getServerStatus() []serverStatus {
	h.mu.Lock(h.lg)
	defer h.mu.Unlock(h.lg)

	var ss []serverStatus
	for id, rel := range h.servers {
		ss = append(ss, serverStatus{
			ID:      id.String(),
			Name:    rel.name,
			Clients: len(rel.clients),
		})
	}
	sort.Slice(ss, func(i, j int) bool { return ss[i].Name < ss[j].Name })
	return ss
}

func (h *Hub) statsHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := hubStats{
		Uptime:        time.Since(h.startTime).Round(time.Second),
		Alloc:         int64(m.Alloc),
		TotalAlloc:    int64(m.TotalAlloc),
		Sys:           int64(m.Sys),
		NumGC:         m.NumGC,
		NumGoRoutines: runtime.NumGoroutine(),
		Servers:       h.getServerStatus(),
	}
	if usage, _ := cpu.Percent(time.Second, false); len(usage) > 0 {
		stats.CPUUsage = int(gomath.Round(usage[0]))
	}

	statsTemplate.Execute(w, stats)
	h.lg.Infof("%s: served stats request", r.URL.String())
}
