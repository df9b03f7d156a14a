package textproc

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// boilerplate tags stripped before text extraction
var strippedSelectors = []string{"script", "style", "noscript", "header", "footer", "nav", "iframe", "svg"}

// ExtractMainText strips markup and boilerplate from raw HTML and returns
// the remaining text, one non-empty line per block. An empty result is
// legitimate output here; the worker decides whether it fails the job.
func ExtractMainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("extract: parse html: %w", err)
	}

	for _, sel := range strippedSelectors {
		doc.Find(sel).Remove()
	}

	var root *goquery.Selection
	if body := doc.Find("body"); body.Length() > 0 {
		root = body
	} else {
		root = doc.Selection
	}

	var lines []string
	for _, raw := range strings.Split(root.Text(), "\n") {
		if line := strings.TrimSpace(raw); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
