package htmlutil

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"pricescout-backend/lib/textutil"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText extracts the visible text of a selection, stripped of
// non-printable runes and collapsed whitespace.
func CleanText(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		getTextRecursive(n, &buffer)
	}
	return textutil.CollapseSpace(removeNonPrintable(buffer.String()))
}

// FirstText probes an ordered list of selector candidates and returns the
// cleaned text of the first one that yields anything non-empty.
func FirstText(doc *goquery.Document, selectors []string) string {
	for _, s := range selectors {
		sel := doc.Find(s).First()
		text := CleanText(sel)
		if text == "" {
			// meta and input elements carry their value in an attribute
			text = strings.TrimSpace(sel.AttrOr("content", sel.AttrOr("value", "")))
		}
		if text != "" {
			return text
		}
	}
	return ""
}

// FirstAttr probes an ordered list of selector candidates and returns the
// named attribute of the first match that carries it.
func FirstAttr(doc *goquery.Document, selectors []string, attr string) string {
	for _, s := range selectors {
		val := strings.TrimSpace(doc.Find(s).First().AttrOr(attr, ""))
		if val != "" {
			return val
		}
	}
	return ""
}

// AllTexts collects the cleaned text of every node matched by the first
// selector candidate that matches anything.
func AllTexts(doc *goquery.Document, selectors []string) []string {
	for _, s := range selectors {
		var out []string
		doc.Find(s).Each(func(_ int, sel *goquery.Selection) {
			text := CleanText(sel)
			if text != "" {
				out = append(out, text)
			}
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}
