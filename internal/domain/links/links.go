// Package links finds candidate fetch targets in selector documents.
//
// Authors pre-name targets in comments:
//
//	// listing https://example.com/items
//	// local   file:///tmp/items.html
//	# https://example.com/other
//
// The line-oriented scan only accepts URLs on comment lines and keeps the
// optional tag in front of them. The whole-text scan collects every URL
// anywhere, with no tag.
package links

import (
	"context"
	"regexp"
	"strings"

	"github.com/corey/temmekit/internal/ports"
)

// Mode selects the extraction strategy.
type Mode string

const (
	// ModeTagged scans comment lines only.
	ModeTagged Mode = "tagged"
	// ModeAll scans the whole text.
	ModeAll Mode = "all"
	// ModeAuto runs ModeTagged and falls back to ModeAll when nothing is tagged.
	ModeAuto Mode = "auto"
)

// ParseMode maps a config string to a Mode. Unknown values fall back to ModeAuto.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeTagged:
		return ModeTagged
	case ModeAll:
		return ModeAll
	default:
		return ModeAuto
	}
}

// urlPattern matches http(s) and local file URLs up to the first character
// that cannot appear in a URL.
const urlPattern = `(?:https?://|file:///)[A-Za-z0-9\-._~:/?#\[\]@!$&'()*+,;=%]+`

var (
	urlRe = regexp.MustCompile(urlPattern)
	// taggedRe: comment marker, optional tag, URL.
	taggedRe = regexp.MustCompile(`^\s*(?://+|#+)\s*(?:(\S+?):?\s+)?(` + urlPattern + `)`)
)

// TaggedLink is a candidate target with its optional label.
type TaggedLink struct {
	Tag string
	URL string
}

// Label renders the link the way the picker shows it.
func (l TaggedLink) Label() string {
	if l.Tag == "" {
		return l.URL
	}
	return l.Tag + " " + l.URL
}

// ExtractTagged scans lines in order and returns one link per annotated line.
func ExtractTagged(lines []string) []TaggedLink {
	var out []TaggedLink
	for _, line := range lines {
		m := taggedRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		// Two bare URLs on one line: the first one lands in the tag group.
		if strings.Contains(m[1], "://") {
			out = append(out, TaggedLink{URL: strings.TrimSpace(m[1])})
			continue
		}
		out = append(out, TaggedLink{
			Tag: m[1],
			URL: strings.TrimSpace(m[2]),
		})
	}
	return out
}

// ExtractAll returns every URL match in text, in order of appearance.
func ExtractAll(text string) []TaggedLink {
	matches := urlRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]TaggedLink, 0, len(matches))
	for _, m := range matches {
		out = append(out, TaggedLink{URL: trimURL(m)})
	}
	return out
}

// Extract runs the strategy selected by mode over text.
func Extract(text string, mode Mode) []TaggedLink {
	switch mode {
	case ModeTagged:
		return ExtractTagged(splitLines(text))
	case ModeAll:
		return ExtractAll(text)
	default:
		if tagged := ExtractTagged(splitLines(text)); len(tagged) > 0 {
			return tagged
		}
		return ExtractAll(text)
	}
}

// ExtractDocument is Extract over a host document, reading it line by line.
func ExtractDocument(doc ports.Document, mode Mode) []TaggedLink {
	if mode == ModeAll {
		return ExtractAll(doc.Text())
	}
	lines := make([]string, doc.LineCount())
	for i := range lines {
		lines[i] = doc.LineAt(i)
	}
	tagged := ExtractTagged(lines)
	if mode == ModeTagged || len(tagged) > 0 {
		return tagged
	}
	return ExtractAll(doc.Text())
}

// Choose applies the selection policy: no links is ErrNoLinks, a single link
// is taken without asking, several go through the picker. A dismissed picker
// yields ErrNoSelection.
func Choose(ctx context.Context, found []TaggedLink, picker ports.Picker) (string, error) {
	switch len(found) {
	case 0:
		return "", ports.ErrNoLinks
	case 1:
		return found[0].URL, nil
	}
	labels := make([]string, len(found))
	for i, l := range found {
		labels[i] = l.Label()
	}
	choice, err := picker.QuickPick(ctx, "Choose an url:", labels)
	if err != nil {
		return "", err
	}
	for i, label := range labels {
		if label == choice {
			return found[i].URL, nil
		}
	}
	return "", ports.ErrNoSelection
}

// trimURL drops trailing punctuation that is almost always prose, not URL.
// Only the whole-text scan uses it; an annotated line holds the URL verbatim.
func trimURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), ".,;:")
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
