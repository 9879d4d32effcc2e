package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPage(t *testing.T) {
	raw := `<!DOCTYPE html>
<html><head><title>t</title><style>p{color:red}</style></head>
<body>
  <nav>Home About Contact</nav>
  <div class="banner-advert">Buy now!</div>
  <article>
    <h1>Best Coffee Grinders</h1>
    <p>Grinding fresh beans makes better coffee.</p>
    <h2>Burr vs Blade</h2>
    <p>Burr grinders produce a consistent grind.</p>
    <script>track();</script>
  </article>
  <footer>Copyright</footer>
</body></html>`

	page, err := ExtractPage(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{"h1: Best Coffee Grinders", "h2: Burr vs Blade"}, page.Headings)
	assert.Contains(t, page.Text, "Grinding fresh beans")
	assert.Contains(t, page.Text, "consistent grind")
	// Chrome, ads and scripts never reach the body text.
	assert.NotContains(t, page.Text, "Home About")
	assert.NotContains(t, page.Text, "Buy now")
	assert.NotContains(t, page.Text, "track()")
	assert.NotContains(t, page.Text, "Copyright")
	assert.Greater(t, page.WordCount, 5)
}

func TestExtractPageContentSelectorPriority(t *testing.T) {
	raw := `<html><body>
  <div class="sidebar">ignored chatter everywhere</div>
  <div class="post-content"><p>the real story</p></div>
</body></html>`

	page, err := ExtractPage(raw)
	require.NoError(t, err)
	assert.Equal(t, "the real story", page.Text)
	assert.Equal(t, 3, page.WordCount)
}

func TestExtractPageFallsBackToBody(t *testing.T) {
	page, err := ExtractPage(`<html><body><p>plain page text</p></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "plain page text", page.Text)
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "a\n\n  b\tc", "a b c"},
		{"keeps cyrillic", "кофе и вода", "кофе и вода"},
		{"drops cjk letters", "coffee 咖啡 beans", "coffee beans"},
		{"drops astral plane", "nice \U0001F600 day", "nice day"},
		{"keeps digits and punctuation", "top 10 grinders, 2024!", "top 10 grinders, 2024!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeText(tt.in))
		})
	}
}
