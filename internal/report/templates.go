package report

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Name}} - Ride Load Test Report</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; margin: 0; background: #f5f6fa; color: #2d3436; }
        .container { max-width: 1200px; margin: 0 auto; padding: 24px; }
        .header { display: flex; justify-content: space-between; align-items: center; background: #fff; padding: 20px 24px; border-radius: 8px; }
        .header h1 { margin: 0 0 4px 0; font-size: 24px; }
        .meta { color: #636e72; font-size: 14px; }
        .status { padding: 8px 16px; border-radius: 6px; font-weight: 600; }
        .status.pass { background: #e6f9ee; color: #1e8449; }
        .status.fail { background: #fdecea; color: #c0392b; }
        .cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(170px, 1fr)); gap: 16px; margin: 20px 0; }
        .card { background: #fff; border-radius: 8px; padding: 16px; }
        .card .label { color: #636e72; font-size: 13px; }
        .card .value { font-size: 24px; font-weight: 600; margin-top: 6px; }
        .section { background: #fff; border-radius: 8px; padding: 20px 24px; margin-bottom: 20px; }
        .section h2 { margin-top: 0; font-size: 18px; }
        table { width: 100%; border-collapse: collapse; font-size: 14px; }
        th, td { text-align: right; padding: 8px; border-bottom: 1px solid #eee; }
        th:first-child, td:first-child { text-align: left; }
        .chart-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(480px, 1fr)); gap: 20px; }
        .chart-wrapper { position: relative; height: 260px; }
        .ok { color: #1e8449; }
        .bad { color: #c0392b; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <div>
            <h1>{{.Name}}</h1>
            <div class="meta">{{.Host}} &middot; {{.StartTime.Format "2006-01-02 15:04:05"}} &middot; {{formatDuration .Duration}}{{if .Interrupted}} &middot; interrupted{{end}}</div>
        </div>
        <div class="status {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}✓ PASSED{{else}}✗ FAILED{{end}}</div>
    </div>

    {{if .Metrics}}
    <div class="cards">
        <div class="card"><div class="label">Total Requests</div><div class="value">{{formatNumber .Metrics.TotalRequests}}</div></div>
        <div class="card"><div class="label">Throughput</div><div class="value">{{printf "%.1f" .Metrics.RPS}} req/s</div></div>
        <div class="card"><div class="label">Failure Rate</div><div class="value">{{percent .Metrics.ErrorRate}}</div></div>
        <div class="card"><div class="label">P95 Latency</div><div class="value">{{formatLatency .Metrics.Latency.P95}}</div></div>
        <div class="card"><div class="label">Follow-ups Cancelled</div><div class="value">{{.Shutdown.CancelledTasks}}</div></div>
    </div>
    {{end}}

    {{if .TimeSeries}}
    <div class="section">
        <h2>Over Time</h2>
        <div class="chart-grid">
            <div class="chart-wrapper"><canvas id="rpsChart"></canvas></div>
            <div class="chart-wrapper"><canvas id="latencyChart"></canvas></div>
            <div class="chart-wrapper"><canvas id="usersChart"></canvas></div>
            <div class="chart-wrapper"><canvas id="errorChart"></canvas></div>
        </div>
    </div>
    {{end}}

    {{if .Requests}}
    <div class="section">
        <h2>Requests</h2>
        <table>
            <tr><th>Name</th><th># Requests</th><th># Failures</th><th>Median</th><th>Average</th><th>P95</th><th>P99</th><th>Max</th><th>req/s</th></tr>
            {{range .Requests}}
            <tr>
                <td>{{.Name}}</td>
                <td>{{formatNumber .Requests}}</td>
                <td class="{{if .Failures}}bad{{else}}ok{{end}}">{{formatNumber .Failures}}</td>
                <td>{{formatLatency .Latency.P50}}</td>
                <td>{{formatLatency .Latency.Mean}}</td>
                <td>{{formatLatency .Latency.P95}}</td>
                <td>{{formatLatency .Latency.P99}}</td>
                <td>{{formatLatency .Latency.Max}}</td>
                <td>{{printf "%.2f" .RPS}}</td>
            </tr>
            {{end}}
        </table>
    </div>
    {{end}}

    {{if .Thresholds}}
    <div class="section">
        <h2>Thresholds</h2>
        <table>
            <tr><th>Metric</th><th>Expression</th><th>Actual</th><th>Result</th></tr>
            {{range .Thresholds}}
            <tr>
                <td>{{.Metric}}</td><td>{{.Expression}}</td><td>{{.Value}}</td>
                <td class="{{if .Passed}}ok{{else}}bad{{end}}">{{if .Passed}}✓{{else}}✗{{end}}</td>
            </tr>
            {{end}}
        </table>
    </div>
    {{end}}
</div>

<script>
const timeSeriesData = {{.TimeSeriesJSON}};
if (timeSeriesData.length > 0 && typeof Chart !== "undefined") {
    const labels = timeSeriesData.map(p => new Date(p.timestamp).toLocaleTimeString());
    const line = (id, title, datasets) => new Chart(document.getElementById(id), {
        type: "line",
        data: { labels: labels, datasets: datasets },
        options: { responsive: true, maintainAspectRatio: false, plugins: { title: { display: true, text: title } } }
    });
    line("rpsChart", "Requests per second", [{ label: "RPS", data: timeSeriesData.map(p => p.rps) }]);
    line("latencyChart", "Latency (ms)", [
        { label: "P50", data: timeSeriesData.map(p => p.latencyP50) },
        { label: "P95", data: timeSeriesData.map(p => p.latencyP95) },
        { label: "P99", data: timeSeriesData.map(p => p.latencyP99) }
    ]);
    line("usersChart", "Active users", [{ label: "Users", data: timeSeriesData.map(p => p.activeUsers) }]);
    line("errorChart", "Failure rate (%)", [{ label: "Failures", data: timeSeriesData.map(p => p.errorRate * 100) }]);
}
</script>
</body>
</html>
`
