// Package extract turns rendered HTML into crawl inputs: candidate links from a
// listing page and a cleaned job description from a detail page.
package extract

import (
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var skippedExtensions = map[string]struct{}{
	".pdf": {}, ".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".svg": {},
	".webp": {}, ".css": {}, ".js": {}, ".ico": {},
}

// Links returns the distinct same-origin links on a page in first-seen order.
// Fragments are dropped, asset links are skipped and the source page itself is
// never returned. Unparseable HTML or source URLs yield nil.
func Links(html, sourceURL string) []string {
	base, err := url.Parse(sourceURL)
	if err != nil || base.Host == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	self := normalize(base)
	seen := map[string]struct{}{self: {}}
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if !sameOrigin(base, abs) {
			return
		}
		if _, skip := skippedExtensions[strings.ToLower(path.Ext(abs.Path))]; skip {
			return
		}
		key := normalize(abs)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, key)
	})
	return out
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

func normalize(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}
