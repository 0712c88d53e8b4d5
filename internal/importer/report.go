package importer

import (
	"fmt"
	"strings"
)

// MaxReportedErrors caps the errors listed in Report.Message.
const MaxReportedErrors = 20

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("Row %d: %s", e.Row, e.Message)
}

type Report struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Errors  []RowError `json:"errors"`
	// IngredientIDs lists every ingredient the import created or updated.
	IngredientIDs []uint `json:"-"`
}

// Message renders the report as shown to the person who uploaded the file.
func (r *Report) Message() string {
	lines := []string{
		"Import completed!",
		fmt.Sprintf("Created: %d", r.Created),
		fmt.Sprintf("Updated: %d", r.Updated),
	}
	if len(r.Errors) > 0 {
		lines = append(lines, fmt.Sprintf("\nErrors (%d):", len(r.Errors)))
		for _, rowErr := range r.Errors[:min(len(r.Errors), MaxReportedErrors)] {
			lines = append(lines, rowErr.Error())
		}
		if extra := len(r.Errors) - MaxReportedErrors; extra > 0 {
			lines = append(lines, fmt.Sprintf("... and %d more errors", extra))
		}
	}
	return strings.Join(lines, "\n")
}
