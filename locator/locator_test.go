package locator_test

import (
	"strings"
	"testing"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/flowscribe/flowscribe"
	"github.com/flowscribe/flowscribe/locator"
)

func parse(t *testing.T, doc string) *html.Node {
	t.Helper()
	root, err := html.Parse(strings.NewReader(doc))
	jtest.RequireNil(t, err)
	return root
}

func mustResolve(t *testing.T, root *html.Node, selector string) *html.Node {
	t.Helper()
	n, err := locator.Resolve(root, selector)
	jtest.RequireNil(t, err)
	return n
}

func TestGenerateDataAttributeWins(t *testing.T) {
	root := parse(t, `<html><body>
		<button id="save" class="btn primary" data-testid="save-btn">Save</button>
	</body></html>`)
	n := mustResolve(t, root, "button")

	// The data attribute beats the id and classes every time, never falling
	// through to a weaker strategy.
	for i := 0; i < 50; i++ {
		c, err := locator.Generate(n)
		jtest.RequireNil(t, err)
		require.Equal(t, `[data-testid="save-btn"]`, c.Selector)
		require.Equal(t, locator.StrategyDataAttribute, c.Strategy)
		require.Equal(t, 100, c.Score)
	}
}

func TestGenerateDataAttributePriority(t *testing.T) {
	root := parse(t, `<html><body>
		<button data-qa="qa-save" data-testid="save-btn">Save</button>
	</body></html>`)
	n := mustResolve(t, root, "button")

	c, err := locator.Generate(n)
	jtest.RequireNil(t, err)
	require.Equal(t, `[data-testid="save-btn"]`, c.Selector)
}

func TestGenerateID(t *testing.T) {
	root := parse(t, `<html><body>
		<button id="save" class="btn">Save</button>
	</body></html>`)
	n := mustResolve(t, root, "button")

	c, err := locator.Generate(n)
	jtest.RequireNil(t, err)
	require.Equal(t, "#save", c.Selector)
	require.Equal(t, locator.StrategyID, c.Strategy)
	require.Equal(t, 80, c.Score)
}

func TestGenerateSkipsGeneratedID(t *testing.T) {
	// An id with CSS-hostile characters is not a usable selector; the unique
	// class takes over.
	root := parse(t, `<html><body>
		<button id="ember:123" class="primary">Save</button>
	</body></html>`)
	n := mustResolve(t, root, "button")

	c, err := locator.Generate(n)
	jtest.RequireNil(t, err)
	require.Equal(t, ".primary", c.Selector)
	require.Equal(t, locator.StrategyClass, c.Strategy)
}

func TestGenerateClassCombo(t *testing.T) {
	root := parse(t, `<html><body>
		<button class="btn">Cancel</button>
		<button class="btn primary">Save</button>
		<span class="primary">hint</span>
	</body></html>`)
	n := mustResolve(t, root, ".btn.primary")

	c, err := locator.Generate(n)
	jtest.RequireNil(t, err)
	require.Equal(t, ".btn.primary", c.Selector)
	require.Equal(t, locator.StrategyClass, c.Strategy)
	require.Equal(t, 60, c.Score)
}

func TestGenerateClassNthOfType(t *testing.T) {
	root := parse(t, `<html><body>
		<button class="btn">One</button>
		<button class="btn">Two</button>
	</body></html>`)

	first := mustResolve(t, root, "button")
	c, err := locator.Generate(first)
	jtest.RequireNil(t, err)
	require.Equal(t, "button.btn:nth-of-type(1)", c.Selector)

	second, err := locator.Resolve(root, "button.btn:nth-of-type(2)")
	jtest.RequireNil(t, err)
	c, err = locator.Generate(second)
	jtest.RequireNil(t, err)
	require.Equal(t, "button.btn:nth-of-type(2)", c.Selector)
	require.Equal(t, "Two", locator.Text(second))
}

func TestGeneratePathFallback(t *testing.T) {
	root := parse(t, `<html><body>
		<div><span>first</span><span>second</span></div>
	</body></html>`)
	second := mustResolve(t, root, "div span:nth-of-type(2)")

	c, err := locator.Generate(second)
	jtest.RequireNil(t, err)
	require.Equal(t, "/html[1]/body[1]/div[1]/span[2]", c.Selector)
	require.Equal(t, locator.StrategyPath, c.Strategy)
	require.Equal(t, 20, c.Score)

	// The path resolves back to the exact node it was generated from.
	resolved, err := locator.Resolve(root, c.Selector)
	jtest.RequireNil(t, err)
	require.Same(t, second, resolved)
}

func TestGenerateRejectsNonElements(t *testing.T) {
	_, err := locator.Generate(nil)
	jtest.Require(t, flowscribe.ErrNoSelectorCandidate, err)
}

func TestResolveNotFound(t *testing.T) {
	root := parse(t, `<html><body><p>hello</p></body></html>`)

	_, err := locator.Resolve(root, "#missing")
	jtest.Require(t, flowscribe.ErrElementNotFound, err)

	_, err = locator.Resolve(root, "!!not-a-selector")
	jtest.Require(t, flowscribe.ErrElementNotFound, err)

	_, err = locator.Resolve(root, "/html[1]/body[1]/div[9]")
	jtest.Require(t, flowscribe.ErrElementNotFound, err)

	_, err = locator.Resolve(root, "/bogus")
	jtest.Require(t, flowscribe.ErrElementNotFound, err)
}

func TestText(t *testing.T) {
	root := parse(t, `<html><body>
		<button>  Save
			<span>changes</span>
		</button>
	</body></html>`)
	n := mustResolve(t, root, "button")

	require.Equal(t, "Save changes", locator.Text(n))
	require.Equal(t, "button", locator.TagName(n))
	require.Equal(t, "", locator.TagName(nil))
}
