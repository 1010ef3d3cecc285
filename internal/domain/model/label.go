package model

// Label is the flair written to a user: its visible text and the forum's
// flair template it belongs to.
type Label struct {
	Text       string
	TemplateID string
}

// LabelTemplate is an operator-declared flair variant covering an inclusive
// range of trade counts.
type LabelTemplate struct {
	ID      string
	Text    string // e.g. "Trades: 10-19"
	Min     int
	Max     int
	ModOnly bool
}

// Contains reports whether count falls inside the template's range.
func (t LabelTemplate) Contains(count int) bool {
	return t.Min <= count && count <= t.Max
}
