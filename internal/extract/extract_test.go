package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinksSameOriginDedupedInOrder(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<a href="/jobs/2">B</a>
		<a href="jobs/1#apply">A</a>
		<a href="https://example.com/jobs/2">B again</a>
		<a href="https://other.com/jobs/3">offsite</a>
		<a href="http://example.com/jobs/4">other scheme</a>
		<a href="/brochure.PDF">pdf</a>
		<a href="/logo.webp">img</a>
		<a href="#top">anchor</a>
		<a href="/careers">self</a>
		<a href="mailto:hr@example.com">mail</a>
		<a>no href</a>
	</body></html>`

	got := Links(html, "https://example.com/careers")
	assert.Equal(t, []string{
		"https://example.com/jobs/2",
		"https://example.com/jobs/1",
	}, got)
}

func TestLinksIsDeterministic(t *testing.T) {
	t.Parallel()

	html := `<a href="/a">a</a><a href="/b">b</a><a href="/c">c</a>`
	first := Links(html, "https://example.com/")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Links(html, "https://example.com/"))
	}
}

func TestLinksInvalidSource(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Links(`<a href="/a">a</a>`, "not a url"))
	assert.Empty(t, Links("", "https://example.com"))
}

func TestParseDetailTitleAndCleaning(t *testing.T) {
	t.Parallel()

	html := `<html><head><style>.x{}</style><script>var a=1;</script></head><body>
		<header>Site header</header>
		<nav>Menu</nav>
		<div id="cookie-banner">Accept cookies</div>
		<div class="gdpr-notice">We value privacy</div>
		<h1> Senior Go Engineer </h1>
		<h2>About the role</h2>
		<p>Build <a href="/x">distributed</a> systems.</p>
		<img src="/team.png">
		<form><input name="q"></form>
		<button>Apply</button>
		<footer>Footer text</footer>
	</body></html>`

	d, err := ParseDetail(html, 0)
	require.NoError(t, err)
	assert.Equal(t, "Senior Go Engineer", d.Title)
	assert.Contains(t, d.Description, "About the role")
	assert.Contains(t, d.Description, "Build distributed systems.")
	for _, noise := range []string{"Site header", "Menu", "Accept cookies", "privacy", "Footer text", "Apply", "var a", "team.png", "/x"} {
		assert.NotContains(t, d.Description, noise)
	}
}

func TestParseDetailKeepsWrappersNamingBanners(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"body class": `<html><body class="has-cookie-banner">
			<div class="cookie-consent">Accept cookies</div>
			<h1>Go Dev</h1><p>Own the billing service.</p>
		</body></html>`,
		"hero wrapper": `<html><body>
			<div id="hero-banner"><h1>Go Dev</h1><p>Own the billing service.</p></div>
		</body></html>`,
		"consent wrapper around posting": `<html><body>
			<div class="consent-layout"><h1>Go Dev</h1><p>Own the billing service.</p></div>
		</body></html>`,
	}
	for name, html := range pages {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			d, err := ParseDetail(html, 0)
			require.NoError(t, err)
			assert.Equal(t, "Go Dev", d.Title)
			assert.Contains(t, d.Description, "Own the billing service.")
			assert.NotContains(t, d.Description, "Accept cookies")
		})
	}
}

func TestParseDetailDefaultsAndTruncation(t *testing.T) {
	t.Parallel()

	d, err := ParseDetail(`<html><body><p>`+strings.Repeat("ä", 50)+`</p></body></html>`, 10)
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, d.Title)
	assert.Equal(t, 10, utf8.RuneCountInString(d.Description))
}
