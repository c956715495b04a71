package extract

import (
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

// DefaultTitle is used when a page has no h1.
const DefaultTitle = "Job Position"

var (
	noiseSelectors = strings.Join([]string{
		"script", "style", "nav", "footer", "header", "iframe",
		"noscript", "button", "form", "svg",
	}, ", ")
	tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

// consentWords are matched against whole id and class tokens, so
// "cookie-banner" is an overlay and "hero-banner" is not.
var consentWords = map[string]bool{
	"cookie": true, "cookies": true, "consent": true, "gdpr": true,
}

// layoutTags are never treated as overlays even when their class names one.
var layoutTags = map[string]bool{"html": true, "body": true, "main": true, "article": true}

// Detail is the content scraped from a job detail page.
type Detail struct {
	Title       string
	Description string
}

// ParseDetail extracts the first h1 as title and the cleaned body as markdown.
// The description is truncated to maxRunes when maxRunes > 0.
func ParseDetail(html string, maxRunes int) (Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Detail{}, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = DefaultTitle
	}

	doc.Find(noiseSelectors).Remove()
	doc.Find("[id], [class]").FilterFunction(isConsentOverlay).Remove()
	doc.Find("img").Remove()
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml(escapeText(s.Text()))
	})

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	body, err := root.Html()
	if err != nil {
		return Detail{}, fmt.Errorf("render body: %w", err)
	}
	md, err := htmltomarkdown.ConvertString(body)
	if err != nil {
		md = root.Text()
	}
	md = strings.TrimSpace(blankRuns.ReplaceAllString(md, "\n\n"))
	return Detail{Title: title, Description: pipeline.Truncate(md, maxRunes)}, nil
}

func isConsentOverlay(_ int, s *goquery.Selection) bool {
	if layoutTags[goquery.NodeName(s)] || s.Find("h1").Length() > 0 {
		return false
	}
	id, _ := s.Attr("id")
	class, _ := s.Attr("class")
	return mentionsConsent(id) || mentionsConsent(class)
}

func mentionsConsent(attr string) bool {
	for _, tok := range tokenSplit.Split(strings.ToLower(attr), -1) {
		if consentWords[tok] {
			return true
		}
	}
	return false
}

func escapeText(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
