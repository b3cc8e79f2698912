package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/corey/temmekit/internal/adapters/socket"
	"github.com/corey/temmekit/internal/domain/document"
	"github.com/corey/temmekit/internal/domain/links"
	"github.com/corey/temmekit/internal/domain/status"
)

// palette holds the colors used for terminal output. Disabled palettes
// render plain text.
type palette struct {
	bold, cyan, green, yellow, red, gray *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		bold:   color.New(color.Bold),
		cyan:   color.New(color.FgCyan),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed),
		gray:   color.New(color.FgHiBlack),
	}
	for _, c := range []*color.Color{p.bold, p.cyan, p.green, p.yellow, p.red, p.gray} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// formatRun formats a run result.
//
//	⚡ ok │ 34 B │ 12ms
//	  → a.temme.json
func formatRun(p palette, res *socket.RunResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s │ %s │ %s\n", p.green.Sprint("⚡ ok"), formatBytes(res.Bytes), res.Elapsed))
	if res.Output != "" {
		sb.WriteString(fmt.Sprintf("  → %s\n", p.cyan.Sprint(res.Output)))
	}
	return sb.String()
}

// formatStatus formats the session snapshot.
func formatStatus(p palette, st *socket.StatusResult) string {
	var sb strings.Builder
	label := status.Label(status.Data{Status: status.Status(st.Status), URL: st.URL}, true)
	switch status.Status(st.Status) {
	case status.Watching:
		sb.WriteString(p.green.Sprint("⚡ "+label) + "\n")
	case status.Running:
		sb.WriteString(p.yellow.Sprint("⚡ "+label) + "\n")
	default:
		sb.WriteString(p.bold.Sprint("⚡ "+label) + "\n")
	}
	if st.Document != "" {
		sb.WriteString(fmt.Sprintf("  Document:  %s\n", displayURI(st.Document)))
	}
	if st.Output != "" {
		sb.WriteString(fmt.Sprintf("  Output:    %s\n", displayURI(st.Output)))
	}
	if st.Session != "" {
		sb.WriteString(fmt.Sprintf("  Session:   %s\n", p.gray.Sprint(st.Session)))
	}
	if st.Since > 0 {
		sb.WriteString(fmt.Sprintf("  Since:     %s\n", time.Unix(st.Since, 0).Format(time.DateTime)))
	}
	return sb.String()
}

// formatHistory formats history records, newest first.
//
//	2024-05-01 10:00:00  run          ✓  https://example.com  (1.2 kB, 40ms)
func formatHistory(p palette, res *socket.HistoryResult) string {
	if res.Count == 0 {
		return "⚡ no runs recorded\n"
	}
	var sb strings.Builder
	sb.WriteString(p.bold.Sprintf("⚡ %d runs", res.Count) + "\n")
	for _, r := range res.Runs {
		mark := p.green.Sprint("✓")
		if !r.OK {
			mark = p.red.Sprint("✗")
		}
		at := time.Unix(r.At, 0).Format(time.DateTime)
		sb.WriteString(fmt.Sprintf("  %s  %-11s  %s  %s", p.gray.Sprint(at), r.Kind, mark, p.cyan.Sprint(r.URL)))
		if r.Kind != "watch-stop" {
			sb.WriteString(fmt.Sprintf("  (%s, %dms)", formatBytes(r.Bytes), r.ElapsedMs))
		}
		sb.WriteString("\n")
		if r.Error != "" {
			sb.WriteString(fmt.Sprintf("      %s\n", p.red.Sprint(r.Error)))
		}
	}
	return sb.String()
}

// formatLinks lists extracted links in picker order.
func formatLinks(p palette, found []links.TaggedLink) string {
	if len(found) == 0 {
		return "No link is found in current file.\n"
	}
	var sb strings.Builder
	for i, l := range found {
		sb.WriteString(fmt.Sprintf("  %2d. ", i+1))
		if l.Tag != "" {
			sb.WriteString(p.bold.Sprint(l.Tag) + " ")
		}
		sb.WriteString(p.cyan.Sprint(l.URL) + "\n")
	}
	return sb.String()
}

// formatHealth formats a health result.
func formatHealth(p palette, h *socket.HealthResult) string {
	var sb strings.Builder
	sb.WriteString(p.green.Sprint("⚡ temme daemon "+h.Status) + "\n")
	sb.WriteString(fmt.Sprintf("  Session:  %s\n", h.SessionStatus))
	if h.ProjectRoot != "" {
		sb.WriteString(fmt.Sprintf("  Root:     %s\n", h.ProjectRoot))
	}
	sb.WriteString(fmt.Sprintf("  Uptime:   %s\n", h.Uptime))
	return sb.String()
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f kB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// displayURI shows file URIs as paths.
func displayURI(uri string) string {
	if p := document.PathFromURI(uri); p != "" {
		return p
	}
	return uri
}
