// Package digest renders aggregated job entries into chat messages.
package digest

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"jobfinder_bot/internal/model"
)

// NoUpdatesText is sent when no source produced any entry.
const NoUpdatesText = "No new job updates found right now. Please try again later."

// Callback payloads attached to the trailing controls.
const (
	ActionRefresh    = "refresh"
	ActionCategories = "categories"
	ActionCategory   = "cat"
)

const (
	separator       = "──────────"
	timestampLayout = "2006-01-02 15:04"
	// footerReserve keeps room for the overflow notice.
	footerReserve  = 40
	buttonTitleLen = 32
)

// Control is one actionable button attached to a message. Exactly one of
// URL or Data is set.
type Control struct {
	Text string
	URL  string
	Data string
}

// Message is a rendered digest ready for delivery.
type Message struct {
	Text     string
	Controls [][]Control
}

// HasControls reports whether the message carries any controls.
func (m Message) HasControls() bool {
	return len(m.Controls) > 0
}

// Options controls how a digest is rendered.
type Options struct {
	MaxTitleLen   int
	MaxMessageLen int
	WithControls  bool
}

// Format renders d under heading. An empty digest yields NoUpdatesText and no
// controls. Entries that would push the text past MaxMessageLen are dropped
// and summarised in a trailing line.
func Format(d model.Digest, heading string, opts Options) Message {
	if d.Empty() {
		return Message{Text: NoUpdatesText}
	}

	limit := opts.MaxMessageLen
	if limit <= 0 {
		limit = 4096
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(heading))
	if !d.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "<i>Updated %s</i>\n", d.GeneratedAt.Format(timestampLayout))
	}
	size := utf8.RuneCountInString(b.String())

	var links []Control
	omitted := 0
	first := true
	for _, sec := range d.Sections {
		if len(sec.Entries) == 0 {
			continue
		}

		head := fmt.Sprintf("\n<b>%s</b>\n", html.EscapeString(sec.Title))
		if !first {
			head = "\n" + separator + head
		}
		headLen := utf8.RuneCountInString(head)

		wroteHead := false
		for i, e := range sec.Entries {
			line := entryLine(i+1, e, opts.MaxTitleLen)
			lineLen := utf8.RuneCountInString(line)

			need := lineLen
			if !wroteHead {
				need += headLen
			}
			if omitted > 0 || size+need+footerReserve > limit {
				omitted++
				continue
			}

			if !wroteHead {
				b.WriteString(head)
				size += headLen
				wroteHead = true
				first = false
			}
			b.WriteString(line)
			size += lineLen

			if c, ok := linkControl(i+1, e); ok {
				links = append(links, c)
			}
		}
	}

	if omitted > 0 {
		fmt.Fprintf(&b, "\n…and %d more", omitted)
	}

	msg := Message{Text: strings.TrimRight(b.String(), "\n")}
	if opts.WithControls {
		for _, c := range links {
			msg.Controls = append(msg.Controls, []Control{c})
		}
		msg.Controls = append(msg.Controls, []Control{
			{Text: "🔄 Refresh", Data: ActionRefresh},
			{Text: "📂 Browse categories", Data: ActionCategories},
		})
	}
	return msg
}

func entryLine(n int, e model.JobEntry, maxTitle int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s", n, html.EscapeString(Truncate(e.Title, maxTitle)))
	if e.Published != "" {
		fmt.Fprintf(&b, " <i>(%s)</i>", html.EscapeString(e.Published))
	}
	b.WriteString("\n")
	if isWebLink(e.Link) {
		fmt.Fprintf(&b, "%s\n", html.EscapeString(e.Link))
	}
	return b.String()
}

// linkControl builds an "open link" button. Entries without a usable link
// get none since Telegram rejects the whole keyboard on an invalid URL.
func linkControl(n int, e model.JobEntry) (Control, bool) {
	if !isWebLink(e.Link) {
		return Control{}, false
	}
	return Control{
		Text: fmt.Sprintf("🔗 %d. %s", n, Truncate(e.Title, buttonTitleLen)),
		URL:  e.Link,
	}, true
}

func isWebLink(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// Truncate cuts s to at most n characters. A non-positive n disables truncation.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// FormatCategories renders a picker with one control per source.
func FormatCategories(sources []model.FeedSource) Message {
	if len(sources) == 0 {
		return Message{Text: "No job categories are configured."}
	}

	var rows [][]Control
	var row []Control
	for _, src := range sources {
		row = append(row, Control{Text: src.Name, Data: ActionCategory + ":" + src.Key})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return Message{Text: "Choose a job category:", Controls: rows}
}

// FormatSources lists the configured feeds.
func FormatSources(sources []model.FeedSource) string {
	if len(sources) == 0 {
		return "No job sources are configured."
	}
	var b strings.Builder
	b.WriteString("<b>Job sources</b>\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "\n%d. %s\n%s", i+1, html.EscapeString(src.Name), html.EscapeString(src.URL))
	}
	return b.String()
}
