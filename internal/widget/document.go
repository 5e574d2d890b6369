package widget

// Element ids the widget binds to.
const (
	StateSelectID = "food-pantry-state"
	SearchInputID = "food-pantry-search"
	ResultsID     = "food-pantry-results"
	StatusID      = "food-pantry-path"
)

// Element is the slice of a DOM element the controller manipulates.
type Element interface {
	SetHTML(markup string)
	SetText(text string)
	SetDisabled(disabled bool)
	Value() string
	SetValue(value string)
}

// Document looks up elements. Both lookups report false for absent elements.
type Document interface {
	Element(id string) (Element, bool)
	// LabelFor returns the <label> whose for attribute names id.
	LabelFor(id string) (Element, bool)
}
