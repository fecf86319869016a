package prompt

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/scribe/jira"
)

const (
	maxDescriptionRunes = 5000
	maxCommentRunes     = 1000
	maxAttachmentRunes  = 3000
)

// Article is one knowledge-base candidate rendered into the decision
// prompt. Content is markdown.
type Article struct {
	PageID  string
	Title   string
	URL     string
	Content string
}

// RenderTicket renders the canonical ticket record as prompt context.
// Long fields are truncated so one noisy ticket cannot blow the context
// window.
func RenderTicket(t *jira.Ticket) string {
	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	add("Key: %s", t.Key)
	add("Summary: %s", t.Summary)
	if t.IssueType != "" {
		add("Issue Type: %s", t.IssueType)
	}
	add("Status: %s", t.Status)
	add("Resolution: %s", t.Resolution)
	if t.Priority != "" {
		add("Priority: %s", t.Priority)
	}
	if t.Reporter != "" {
		add("Reporter: %s", t.Reporter)
	}
	if t.Assignee != "" {
		add("Assignee: %s", t.Assignee)
	}
	if !t.ResolvedAt.IsZero() {
		add("Resolved: %s", t.ResolvedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	if len(t.Labels) > 0 {
		add("Labels: %s", strings.Join(t.Labels, ", "))
	}

	if len(t.Attachments) > 0 {
		add("Attachments (%d):", len(t.Attachments))
		for _, at := range t.Attachments {
			info := at.Filename
			if at.MimeType != "" {
				info += " - " + at.MimeType
			}
			if at.Size > 0 {
				info += " - " + humanSize(at.Size)
			}
			add("- %s", info)
		}
	}

	add("Description:")
	if desc := strings.TrimSpace(t.Description); desc != "" {
		add("%s", truncate(desc, maxDescriptionRunes))
	} else {
		add("No description provided")
	}

	if len(t.Comments) > 0 {
		add("Comments (%d):", len(t.Comments))
		for _, cm := range t.Comments {
			body := truncate(strings.TrimSpace(cm.Body), maxCommentRunes)
			author := cm.Author
			if author == "" {
				author = "Unknown"
			}
			add("- %s (%s): %s", author, cm.Created.Format("2006-01-02 15:04"), body)
		}
	}

	return "## Ticket Context\n" + strings.Join(lines, "\n")
}

// RenderAttachmentText renders extracted attachment text (e.g. a PDF
// postmortem) as an extra context block.
func RenderAttachmentText(filename, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return fmt.Sprintf("\n\n## Attachment: %s\n%s", filename, truncate(text, maxAttachmentRunes))
}

// RenderArticles renders the candidate set for the decision prompt. An
// empty set renders an explicit "nothing found" marker rather than nothing:
// the model must decide with that knowledge, not guess at it.
func RenderArticles(articles []Article) string {
	if len(articles) == 0 {
		return "\n\n## Existing Knowledge Base Articles\nNo related documentation found."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n\n## Existing Knowledge Base Articles\nFound %d potentially relevant articles:\n", len(articles))
	for i, a := range articles {
		fmt.Fprintf(&sb, "\n%d. %s\n", i+1, a.Title)
		fmt.Fprintf(&sb, "   Page ID: %s\n", a.PageID)
		if a.URL != "" {
			fmt.Fprintf(&sb, "   URL: %s\n", a.URL)
		}
		if a.Content != "" {
			fmt.Fprintf(&sb, "   Content:\n%s\n", a.Content)
		}
	}
	return sb.String()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func humanSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%dB", n)
	case n < 1024*1024:
		return fmt.Sprintf("%dKB", n/1024)
	default:
		return fmt.Sprintf("%dMB", n/(1024*1024))
	}
}
