package recorder

import (
	"golang.org/x/net/html"

	"github.com/flowscribe/flowscribe"
	"github.com/flowscribe/flowscribe/locator"
)

// Explain synthesises the human readable description for a clicked element:
// button/link text first, then input placeholder or type, then the bare tag.
func Explain(n *html.Node) string {
	tag := locator.TagName(n)
	text := locator.Text(n)

	switch tag {
	case "button", "a":
		if text != "" {
			return flowscribe.TruncateExplanation("Click "+text)
		}
	case "input":
		if placeholder := locator.Attr(n, "placeholder"); placeholder != "" {
			return flowscribe.TruncateExplanation("Click the "+placeholder+" field")
		}
		typ := locator.Attr(n, "type")
		if typ == "" {
			typ = "text"
		}
		return flowscribe.TruncateExplanation("Click the "+typ+" input")
	}

	if locator.Attr(n, "role") == "button" && text != "" {
		return flowscribe.TruncateExplanation("Click "+text)
	}
	if text != "" {
		return flowscribe.TruncateExplanation("Click "+text)
	}
	if tag == "" {
		tag = "element"
	}
	return flowscribe.TruncateExplanation("Click the "+tag+" element")
}
