// Package renderer renders aggregation results as markdown.
//
// Every report is a text/template assembly: a main template that includes
// partials, all embedded from the package's *.md files.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"
)

//go:embed *.md
var templates embed.FS

// reportPartials are the sections of a report, in order.
var reportPartials = []string{"report_title", "report_summary", "report_groups", "report_failures"}

// RenderReport renders the summary of an aggregation run.
func RenderReport(r *Report) string {
	return render("report", r, reportPartials...)
}

// RenderEvents renders a list of taxable events.
func RenderEvents(e *Events) string {
	return render("events", e)
}

// RenderLedger renders the parcels of a ledger.
func RenderLedger(l *Ledger) string {
	return render("ledger", l)
}

// render executes the template name.md with data, or describes why it
// could not.
func render(name string, data any, partials ...string) string {
	out, err := execute(name, data, partials...)
	if err != nil {
		return err.Error()
	}
	return out
}

// execute parses name.md and its partials, each partial p from p.md and
// available as {{template "p" .}}, then executes name with data.
func execute(name string, data any, partials ...string) (string, error) {
	tmpl := template.New(name)
	for _, t := range append([]string{name}, partials...) {
		content, err := fs.ReadFile(templates, t+".md")
		if err != nil {
			return "", fmt.Errorf("error reading template %q: %w", t, err)
		}
		if _, err := tmpl.New(t).Parse(string(content)); err != nil {
			return "", fmt.Errorf("error parsing template %q: %w", t, err)
		}
	}
	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("error executing template %q: %w", name, err)
	}
	return b.String(), nil
}
