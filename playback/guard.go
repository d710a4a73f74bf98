package playback

import "strings"

// dangerousVerbs is the denylist of destructive intents. Guided replay must
// never autonomously trigger an irreversible action, so a click on an element
// whose text context contains any of these is skipped rather than executed.
var dangerousVerbs = []string{
	"delete",
	"remove",
	"destroy",
	"clear",
	"reset",
	"cancel",
	"close",
	"logout",
	"sign out",
}

// dangerousAction reports the first matched verb for an element, checking the
// element's visible text, its aria-label and the enclosing form's text.
func dangerousAction(el *Element) (string, bool) {
	haystack := strings.ToLower(el.Text + " " + el.AriaLabel + " " + el.FormText)
	for _, verb := range dangerousVerbs {
		if strings.Contains(haystack, verb) {
			return verb, true
		}
	}
	return "", false
}
