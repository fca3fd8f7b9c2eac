package executor

// Action is one primitive operation chosen by the oracle, resolved to a location path.
type Action struct {
	Method  string   `json:"method"`
	Element int      `json:"element"`
	Args    []string `json:"args,omitempty"`
	Path    string   `json:"path"`
}

// Result describes what executing an action did to the page
type Result struct {
	URLBefore string
	URLAfter  string
	// NewPage is the URL of a page opened by a link click and absorbed into the current one.
	NewPage string
	Cursor  CursorPosition
}

// Navigated reports whether the page URL changed across the action
func (r *Result) Navigated() bool {
	return r.URLAfter != "" && r.URLAfter != r.URLBefore
}

// CursorPosition is where the pointer acted, in viewport pixels
type CursorPosition struct {
	X     int
	Y     int
	State CursorState
	Click bool // Whether a click happened at this position
}

// CursorState represents the visual state of the cursor
type CursorState int

const (
	CursorDefault CursorState = iota
	CursorPointer
	CursorText
)

func cursorFor(method string) (CursorState, bool) {
	switch method {
	case "fill", "type":
		return CursorText, false
	case "click", "dblclick", "check", "uncheck":
		return CursorPointer, true
	case "hover", "focus", "selectOption":
		return CursorPointer, false
	}
	return CursorDefault, false
}
