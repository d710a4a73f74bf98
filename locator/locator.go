// Package locator derives best-effort durable selectors for DOM elements and
// resolves them back to live nodes. None of the strategies is complete on a
// mutating page, so every candidate carries a score and callers record the
// best available while playback tolerates resolution failures.
package locator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/flowscribe/flowscribe"
)

// Strategy identifies how a selector candidate was derived.
type Strategy int

const (
	StrategyUnknown       Strategy = 0
	StrategyDataAttribute Strategy = 1
	StrategyID            Strategy = 2
	StrategyClass         Strategy = 3
	StrategyPath          Strategy = 4
)

func (s Strategy) String() string {
	switch s {
	case StrategyDataAttribute:
		return "data-attribute"
	case StrategyID:
		return "id"
	case StrategyClass:
		return "class"
	case StrategyPath:
		return "path"
	default:
		return fmt.Sprintf("Strategy(%d)", s)
	}
}

// Score ranks strategies by expected durability against DOM changes.
func (s Strategy) Score() int {
	switch s {
	case StrategyDataAttribute:
		return 100
	case StrategyID:
		return 80
	case StrategyClass:
		return 60
	case StrategyPath:
		return 20
	default:
		return 0
	}
}

// Candidate is a generated selector with its durability score.
type Candidate struct {
	Selector string
	Strategy Strategy
	Score    int
}

// dataAttributes are tried in priority order. Test hooks are the most stable
// identifiers a page offers.
var dataAttributes = []string{
	"data-testid",
	"data-test-id",
	"data-test",
	"data-id",
	"data-cy",
	"data-qa",
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

const maxClassCombo = 3

// Generate produces the highest scoring selector candidate for the element
// node. The strategy ladder is deterministic: a stable data attribute always
// wins, then a syntactically valid id, then a minimal unique class selector,
// and finally the absolute path which always resolves but is brittle.
func Generate(n *html.Node) (Candidate, error) {
	if n == nil || n.Type != html.ElementNode {
		return Candidate{}, flowscribe.ErrNoSelectorCandidate
	}
	root := rootOf(n)

	if c, ok := dataAttributeCandidate(n); ok {
		return c, nil
	}
	if c, ok := idCandidate(n); ok {
		return c, nil
	}
	if c, ok := classCandidate(root, n); ok {
		return c, nil
	}
	return Candidate{
		Selector: Path(n),
		Strategy: StrategyPath,
		Score:    StrategyPath.Score(),
	}, nil
}

func dataAttributeCandidate(n *html.Node) (Candidate, bool) {
	for _, name := range dataAttributes {
		val := attr(n, name)
		if val == "" {
			continue
		}
		sel := fmt.Sprintf(`[%s=%q]`, name, val)
		return Candidate{Selector: sel, Strategy: StrategyDataAttribute, Score: StrategyDataAttribute.Score()}, true
	}
	return Candidate{}, false
}

func idCandidate(n *html.Node) (Candidate, bool) {
	id := attr(n, "id")
	if id == "" || !identPattern.MatchString(id) {
		return Candidate{}, false
	}
	return Candidate{Selector: "#" + id, Strategy: StrategyID, Score: StrategyID.Score()}, true
}

func classCandidate(root, n *html.Node) (Candidate, bool) {
	classes := classList(n)
	if len(classes) == 0 {
		return Candidate{}, false
	}

	// A single class that uniquely matches is the minimal selector.
	for _, c := range classes {
		sel := "." + c
		if matchesUniquely(root, n, sel) {
			return Candidate{Selector: sel, Strategy: StrategyClass, Score: StrategyClass.Score()}, true
		}
	}

	// Otherwise combine classes cumulatively up to the combo limit.
	limit := len(classes)
	if limit > maxClassCombo {
		limit = maxClassCombo
	}
	for i := 2; i <= limit; i++ {
		sel := "." + strings.Join(classes[:i], ".")
		if matchesUniquely(root, n, sel) {
			return Candidate{Selector: sel, Strategy: StrategyClass, Score: StrategyClass.Score()}, true
		}
	}

	// Fall back to tag + classes + position among same-tag siblings.
	sel := fmt.Sprintf("%s.%s:nth-of-type(%d)", n.Data, strings.Join(classes[:limit], "."), nthOfType(n))
	return Candidate{Selector: sel, Strategy: StrategyClass, Score: StrategyClass.Score()}, true
}

// Path computes the absolute path selector by walking ancestors and recording
// each element's 1-based index among same-tag siblings, e.g.
// /html[1]/body[1]/div[2]/button[1].
func Path(n *html.Node) string {
	var segments []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		segments = append(segments, fmt.Sprintf("%s[%d]", cur.Data, nthOfType(cur)))
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return "/" + strings.Join(segments, "/")
}

// Resolve turns a stored selector back into a live node within the document,
// or ErrElementNotFound. Path syntax is detected by the leading slash;
// anything else is treated as a CSS selector.
func Resolve(root *html.Node, selector string) (*html.Node, error) {
	if strings.HasPrefix(selector, "/") {
		return resolvePath(root, selector)
	}

	sel, err := cascadia.Parse(selector)
	if err != nil {
		return nil, flowscribe.ErrElementNotFound
	}
	n := cascadia.Query(root, sel)
	if n == nil {
		return nil, flowscribe.ErrElementNotFound
	}
	return n, nil
}

func resolvePath(root *html.Node, path string) (*html.Node, error) {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	cur := documentOf(root)
	for i, seg := range segments {
		tag, idx, ok := parseSegment(seg)
		if !ok {
			return nil, flowscribe.ErrElementNotFound
		}
		// A rootless element tree anchors the first segment on the root itself.
		if i == 0 && cur.Type == html.ElementNode {
			if cur.Data != tag || idx != 1 {
				return nil, flowscribe.ErrElementNotFound
			}
			continue
		}
		cur = childByTagIndex(cur, tag, idx)
		if cur == nil {
			return nil, flowscribe.ErrElementNotFound
		}
	}
	return cur, nil
}

var segmentPattern = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9-]*)\[(\d+)\]$`)

func parseSegment(seg string) (tag string, idx int, ok bool) {
	m := segmentPattern.FindStringSubmatch(seg)
	if m == nil {
		return "", 0, false
	}
	var n int
	_, err := fmt.Sscanf(m[2], "%d", &n)
	if err != nil || n < 1 {
		return "", 0, false
	}
	return strings.ToLower(m[1]), n, true
}

func childByTagIndex(parent *html.Node, tag string, idx int) *html.Node {
	if parent == nil {
		return nil
	}
	count := 0
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != tag {
			continue
		}
		count++
		if count == idx {
			return c
		}
	}
	return nil
}

// Text returns the element's trimmed, whitespace-collapsed text content.
func Text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			sb.WriteString(cur.Data)
			sb.WriteString(" ")
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// TagName returns the lowercase tag of an element node, empty otherwise.
func TagName(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(n.Data)
}

// Attr exposes attribute lookup for callers building element metadata.
func Attr(n *html.Node, name string) string {
	return attr(n, name)
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func classList(n *html.Node) []string {
	var out []string
	for _, c := range strings.Fields(attr(n, "class")) {
		if identPattern.MatchString(c) {
			out = append(out, c)
		}
	}
	return out
}

func nthOfType(n *html.Node) int {
	idx := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && sib.Data == n.Data {
			idx++
		}
	}
	return idx
}

func matchesUniquely(root, n *html.Node, selector string) bool {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return false
	}
	matches := cascadia.QueryAll(root, sel)
	return len(matches) == 1 && matches[0] == n
}

func rootOf(n *html.Node) *html.Node {
	cur := n
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// documentOf normalises the resolution anchor: path walking starts at the
// document node so the first segment matches the html element itself.
func documentOf(root *html.Node) *html.Node {
	if root.Type == html.DocumentNode {
		return root
	}
	return rootOf(root)
}
