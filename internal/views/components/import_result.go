// Package components holds the HTML fragments returned to HTMX requests.
package components

// ImportResult is the view model of an ingredient import session.
type ImportResult struct {
	ID        string
	State     string
	FileName  string
	Delimiter string
	Message   string
	Created   int
	Updated   int
	Errors    int
}

func stateClass(state string) string {
	if state == "done" {
		return "import-done"
	}
	return "import-draft"
}

func delimiterLabel(delimiter string) string {
	switch delimiter {
	case ";":
		return "semicolon"
	case "\t":
		return "tab"
	default:
		return "comma"
	}
}
