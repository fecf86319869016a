package confluence

import (
	"strings"

	"golang.org/x/net/html"
)

// flattenExcerpt strips markup from a CQL search excerpt, leaving plain
// text. Excerpts arrive as HTML fragments with highlight tags around the
// matched terms.
func flattenExcerpt(excerpt string) string {
	if excerpt == "" {
		return ""
	}
	// The search API marks hits with @@@hl@@@ ... @@@endhl@@@ on some
	// deployments; drop the markers before parsing.
	excerpt = strings.ReplaceAll(excerpt, "@@@hl@@@", "")
	excerpt = strings.ReplaceAll(excerpt, "@@@endhl@@@", "")

	doc, err := html.Parse(strings.NewReader(excerpt))
	if err != nil {
		return strings.TrimSpace(excerpt)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(sb.String()), " ")
}
