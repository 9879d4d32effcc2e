package providers

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Elements that never contribute to the article body.
var strippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"iframe":   true,
	"noscript": true,
}

// Class/id fragments that mark advertising containers.
var adMarkers = []string{"advert", "banner", "sponsor", "promo"}

// Content selectors tried in order; the first match wins. Body is the
// fallback when none match.
var contentSelectors = []selector{
	{tag: "article"},
	{tag: "main"},
	{class: "content"},
	{class: "post-content"},
	{class: "article-content"},
	{class: "entry-content"},
	{id: "content"},
	{class: "main-content"},
}

type selector struct {
	tag   string
	class string
	id    string
}

func (s selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" {
		return n.Data == s.tag
	}
	if s.id != "" {
		return attr(n, "id") == s.id
	}
	if s.class != "" {
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == s.class {
				return true
			}
		}
	}
	return false
}

// ExtractedPage is the normalized result of parsing one competitor page.
type ExtractedPage struct {
	Headings  []string
	Text      string
	WordCount int
}

// ExtractPage parses raw HTML, strips navigation and ad chrome, collects
// headings in document order and extracts the main content text.
func ExtractPage(rawHTML string) (*ExtractedPage, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	prune(doc)

	page := &ExtractedPage{}
	collectHeadings(doc, &page.Headings)

	content := findContentRoot(doc)
	if content == nil {
		content = findElement(doc, "body")
	}
	if content == nil {
		content = doc
	}

	var sb strings.Builder
	collectText(content, &sb)
	page.Text = normalizeText(sb.String())
	page.WordCount = len(strings.Fields(page.Text))
	return page, nil
}

// prune removes stripped tags and ad containers in place.
func prune(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && (strippedTags[c.Data] || isAdNode(c)) {
			n.RemoveChild(c)
			continue
		}
		prune(c)
	}
}

func isAdNode(n *html.Node) bool {
	marker := strings.ToLower(attr(n, "class") + " " + attr(n, "id"))
	for _, m := range adMarkers {
		if strings.Contains(marker, m) {
			return true
		}
	}
	return false
}

func collectHeadings(n *html.Node, out *[]string) {
	if n.Type == html.ElementNode && len(n.Data) == 2 && n.Data[0] == 'h' && n.Data[1] >= '1' && n.Data[1] <= '6' {
		var sb strings.Builder
		collectText(n, &sb)
		text := normalizeText(sb.String())
		if text != "" {
			*out = append(*out, n.Data+": "+text)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectHeadings(c, out)
	}
}

func findContentRoot(doc *html.Node) *html.Node {
	for _, sel := range contentSelectors {
		if n := findMatch(doc, sel); n != nil {
			return n
		}
	}
	return nil
}

func findMatch(n *html.Node, sel selector) *html.Node {
	if sel.matches(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findMatch(c, sel); found != nil {
			return found
		}
	}
	return nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

// normalizeText collapses whitespace and drops characters outside the BMP
// and letters outside the Latin and Cyrillic scripts.
func normalizeText(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r > 0xFFFF {
			continue
		}
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) && !unicode.Is(unicode.Cyrillic, r) {
			continue
		}
		sb.WriteRune(r)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
