package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

type pageData struct {
	Title   string
	Status  string
	Content template.HTML
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 72rem; padding: 0 1rem; color: #111827; }
        .status { display: inline-block; padding: 0.25rem 0.75rem; border-radius: 0.25rem; font-weight: 600; color: #fff; }
        .status.pass { background-color: #16a34a; }
        .status.fail { background-color: #dc2626; }
        table { width: 100%; border-collapse: collapse; margin-top: 1rem; }
        th, td { border: 1px solid #e5e7eb; padding: 0.5rem 1rem; text-align: left; vertical-align: top; }
        th { background-color: #f3f4f6; }
        code { background-color: #f3f4f6; padding: 0.125rem 0.25rem; border-radius: 0.25rem; }
    </style>
</head>
<body>
    <p><span class="status {{if eq .Status "PASS"}}pass{{else}}fail{{end}}">{{.Status}}</span></p>
    <article>
        {{.Content}}
    </article>
</body>
</html>
`

var page = template.Must(template.New("report").Parse(pageTemplate))

// Markdown renders the report as a Markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# To-do list E2E report\n\n")
	fmt.Fprintf(&b, "- **Run:** `%s`\n", r.RunID)
	fmt.Fprintf(&b, "- **Driver:** %s\n", r.Driver)
	fmt.Fprintf(&b, "- **Page:** `%s`\n", r.PageURL)
	fmt.Fprintf(&b, "- **Started:** %s\n", r.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Duration:** %s\n\n", FormatDuration(r.Duration()))
	fmt.Fprintf(&b, "**%s** (%d total)\n\n", r.Summary(), len(r.Cases))

	if len(r.Cases) == 0 {
		b.WriteString("No cases ran.\n")
		return b.String()
	}
	b.WriteString("| Case | Outcome | Duration | Message |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, c := range r.Cases {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			tableCell(c.Name), c.Outcome, FormatDuration(c.Duration), tableCell(c.Message))
	}
	return b.String()
}

// tableCell keeps page-derived text from breaking the table row.
func tableCell(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// HTML renders the report as a standalone, sanitized HTML page.
func (r *Report) HTML() ([]byte, error) {
	status := "PASS"
	if !r.OK() {
		status = "FAIL"
	}
	data := pageData{
		Title:   "To-do list E2E report " + r.RunID,
		Status:  status,
		Content: template.HTML(renderMarkdown([]byte(r.Markdown()))),
	}
	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// renderMarkdown converts markdown to sanitized HTML.
func renderMarkdown(md []byte) []byte {
	extensions := parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse(md)

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	out := markdown.Render(doc, renderer)

	// Case messages carry text read back from the page under test.
	policy := bluemonday.UGCPolicy()
	return policy.SanitizeBytes(out)
}
