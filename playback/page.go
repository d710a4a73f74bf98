package playback

import (
	"context"
	"fmt"
)

// Rect is an element's viewport-relative bounding box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Element is the playback-relevant view of a resolved node: enough geometry to
// place overlays and enough text context to run the dangerous action guard.
type Element struct {
	Rect      Rect
	Text      string
	AriaLabel string
	// FormText is the visible text of the enclosing form, if any.
	FormText string
}

// Placement is where the tooltip sits relative to the highlighted element.
type Placement int

const (
	PlacementRight Placement = 1
	PlacementLeft  Placement = 2
	PlacementBelow Placement = 3
	PlacementAbove Placement = 4
)

func (p Placement) String() string {
	switch p {
	case PlacementRight:
		return "right"
	case PlacementLeft:
		return "left"
	case PlacementBelow:
		return "below"
	case PlacementAbove:
		return "above"
	default:
		return fmt.Sprintf("Placement(%d)", p)
	}
}

// Overlay describes the highlight border box and tooltip for one step.
type Overlay struct {
	Selector    string
	Explanation string
	Placement   Placement
}

// Page is the live page the engine walks. The chromepage adapter implements it
// over the DevTools protocol; tests use a scripted fake. Every call can fail:
// the page can navigate away or close at any moment.
type Page interface {
	CurrentURL(ctx context.Context) (string, error)

	// Find resolves a stored selector against the live DOM, returning
	// flowscribe.ErrElementNotFound when nothing matches.
	Find(ctx context.Context, selector string) (*Element, error)

	// Viewport returns the current viewport size in CSS pixels.
	Viewport(ctx context.Context) (width, height float64, err error)

	// ShowOverlay renders or moves the highlight and tooltip. The overlay
	// tracks the element through resize and scroll on the page side.
	ShowOverlay(ctx context.Context, o Overlay) error
	ClearOverlay(ctx context.Context) error

	// ScrollIntoView smoothly centers the element in the viewport.
	ScrollIntoView(ctx context.Context, selector string) error

	Click(ctx context.Context, selector string) error
	Navigate(ctx context.Context, url string) error

	// WatchMutations observes the document subtree and invokes onChange when
	// the DOM shifts under the current step. onChange must be invoked
	// asynchronously, never from inside the WatchMutations call itself. The
	// returned cancel detaches the observer and must be safe to call more
	// than once.
	WatchMutations(ctx context.Context, onChange func()) (cancel func(), err error)
}
