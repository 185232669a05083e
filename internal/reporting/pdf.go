package reporting

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"time"
)

// PDFRenderer converts an HTML document into PDF bytes.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// ErrPDFUnavailable is returned when no renderer is configured.
var ErrPDFUnavailable = errors.New("reporting: pdf renderer not configured")

var monthlyLogTemplate = template.Must(template.New("monthly-log").Funcs(template.FuncMap{
	"stamp": func(t time.Time) string { return t.Format("2006-01-02 15:04") },
	"deref": func(v *int64) int64 { return *v },
}).Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Inventory Report - {{.Key}}</title>
<style>
body{font-family:sans-serif;font-size:12px}
table{border-collapse:collapse;width:100%}
th,td{border:1px solid #999;padding:4px;text-align:left}
td.num{text-align:right}
</style></head>
<body>
<h1>Inventory Report - {{.Key}}</h1>
<p>{{.Label}} &middot; generated {{stamp .Generated}}</p>
{{if .Logs}}
<table>
<thead><tr><th>Date</th><th>Product</th><th>Action</th><th>Quantity</th><th>Reference</th></tr></thead>
<tbody>
{{range .Logs}}<tr><td>{{stamp .CreatedAt}}</td><td>{{.ProductID}}</td><td>{{.ActionType}}</td><td class="num">{{.QuantityChanged}}</td><td>{{if .ReferenceID}}{{deref .ReferenceID}}{{end}}</td></tr>
{{end}}</tbody>
</table>
{{else}}
<p>No movements recorded.</p>
{{end}}
</body></html>`))

type monthlyLogView struct {
	Key       string
	Label     string
	Generated time.Time
	Logs      []LogEntry
}

// RenderMonthlyLogHTML renders the movement log of a month as an HTML table.
func RenderMonthlyLogHTML(period Period, logs []LogEntry, generated time.Time) (string, error) {
	loc := period.Start.Location()
	view := monthlyLogView{Key: period.Key(), Label: period.Label(), Generated: generated.In(loc)}
	for _, l := range logs {
		l.CreatedAt = l.CreatedAt.In(loc)
		view.Logs = append(view.Logs, l)
	}
	var buf bytes.Buffer
	if err := monthlyLogTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderMonthlyLogPDF renders the movement log of a month through renderer.
func RenderMonthlyLogPDF(ctx context.Context, renderer PDFRenderer, period Period, logs []LogEntry, generated time.Time) ([]byte, error) {
	if renderer == nil {
		return nil, ErrPDFUnavailable
	}
	html, err := RenderMonthlyLogHTML(period, logs, generated)
	if err != nil {
		return nil, err
	}
	return renderer.RenderHTML(ctx, html)
}
