package email

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

var (
	whitespace = regexp.MustCompile(`[ \t\r\n]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "pre": true,
}

// PlainText renders an HTML mail body as the text/plain alternative. Link
// targets are kept next to their text so they remain clickable.
func PlainText(body string) string {
	doc, err := htmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return body
	}

	root := htmlquery.FindOne(doc, "//body")
	if root == nil {
		root = doc
	}

	buf := new(bytes.Buffer)
	dig(root, buf)
	return compact(buf.String())
}

func dig(n *html.Node, buf *bytes.Buffer) {
	if n == nil {
		return
	}
	switch n.Type {
	case html.TextNode:
		buf.WriteString(whitespace.ReplaceAllString(n.Data, " "))
	case html.ElementNode:
		if blockElements[n.Data] {
			buf.WriteString("\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		dig(c, buf)
	}

	if n.Type == html.ElementNode {
		if n.Data == "a" {
			if href := htmlquery.SelectAttr(n, "href"); href != "" && href != htmlquery.InnerText(n) {
				buf.WriteString(" (" + href + ")")
			}
		}
		if blockElements[n.Data] {
			buf.WriteString("\n")
		}
	}
}

func compact(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
