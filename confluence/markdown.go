package confluence

import (
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

var (
	mdOnce      sync.Once
	mdConverter *converter.Converter
	mdPolicy    *bluemonday.Policy
)

func mdInit() {
	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	mdPolicy = bluemonday.UGCPolicy()
}

// StorageToMarkdown converts Confluence storage-format HTML into markdown
// suitable for prompt context. The HTML is sanitized first: storage format
// can embed macros and scripts that have no business in a prompt. If
// conversion fails or produces empty output, the fallback is returned.
func StorageToMarkdown(storageHTML, fallback string) string {
	if storageHTML == "" {
		return fallback
	}
	mdOnce.Do(mdInit)

	clean := mdPolicy.Sanitize(storageHTML)
	result, err := mdConverter.ConvertString(clean)
	if err != nil || strings.TrimSpace(result) == "" {
		return fallback
	}
	return strings.TrimSpace(result)
}
