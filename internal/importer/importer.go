// Package importer loads supplier price lists into the ingredient registry.
//
// A payload is a delimited text file (or an XLSX workbook) with a header
// row. Every data row is normalised and then either updates a matching
// ingredient or creates a new one. Row problems are collected into the
// Report and never stop the batch; only file-level problems do.
package importer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"recipecost/models"
)

var (
	ErrNoFile            = errors.New("Please select a CSV file to import.")
	ErrUnsupportedFormat = errors.New("importer: unsupported file format")
	ErrInvalidDelimiter  = errors.New("importer: delimiter must be comma, semicolon or tab")
	// ErrNotFound is returned by Catalog lookups that match nothing.
	ErrNotFound = errors.New("importer: record not found")
)

// Catalog is the set of registries a row is reconciled against.
type Catalog interface {
	UnitByRef(ctx context.Context, ref string) (*models.UnitOfMeasure, error)
	UnitByName(ctx context.Context, name string) (*models.UnitOfMeasure, error)
	IngredientCategoryByName(ctx context.Context, name string) (*models.IngredientCategory, error)
	CreateIngredientCategory(ctx context.Context, category *models.IngredientCategory) error
	PartnerByName(ctx context.Context, name string) (*models.Partner, error)
	CreatePartner(ctx context.Context, partner *models.Partner) error
	IngredientByCode(ctx context.Context, code string) (*models.Ingredient, error)
	IngredientByName(ctx context.Context, name string) (*models.Ingredient, error)
	CreateIngredient(ctx context.Context, ingredient *models.Ingredient) error
	UpdateIngredient(ctx context.Context, id uint, updates map[string]any) error
	// Isolate runs fn so that its writes are discarded when it fails
	// without affecting earlier rows.
	Isolate(ctx context.Context, fn func(Catalog) error) error
}

// Store opens the transaction an import runs in.
type Store interface {
	Transaction(ctx context.Context, fn func(Catalog) error) error
}

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat picks the format from a file name, defaulting to CSV.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// ParseDelimiter accepts the delimiter characters or their names.
// An empty value selects a comma.
func ParseDelimiter(value string) (rune, error) {
	switch strings.ToLower(value) {
	case "", ",", "comma":
		return ',', nil
	case ";", "semicolon":
		return ';', nil
	case "\t", "tab", `\t`:
		return '\t', nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelimiter, value)
	}
}

type Request struct {
	Payload   []byte
	Delimiter rune
	Format    Format
}

// Outcome is the result of a single row.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeFailed  Outcome = "error"
)

type Option func(*Importer)

// WithClock sets the source of the default price date.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) {
		if now != nil {
			im.now = now
		}
	}
}

// WithObserver registers a callback invoked once per processed row.
func WithObserver(observe func(Outcome)) Option {
	return func(im *Importer) {
		if observe != nil {
			im.observers = append(im.observers, observe)
		}
	}
}

type Importer struct {
	store     Store
	now       func() time.Time
	observers []func(Outcome)
}

func New(store Store, opts ...Option) *Importer {
	im := &Importer{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import runs the whole payload in one transaction. The returned error is
// non-nil only for file-level failures; row failures are in the Report.
func (im *Importer) Import(ctx context.Context, req Request) (*Report, error) {
	if len(req.Payload) == 0 {
		return nil, ErrNoFile
	}
	if req.Delimiter == 0 {
		req.Delimiter = ','
	}

	rows, err := readRows(req)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	err = im.store.Transaction(ctx, func(catalog Catalog) error {
		for _, r := range rows {
			var (
				outcome    Outcome
				ingredient uint
			)
			err := catalog.Isolate(ctx, func(c Catalog) error {
				var rowErr error
				outcome, ingredient, rowErr = im.importRow(ctx, c, r)
				return rowErr
			})
			if err != nil {
				report.Errors = append(report.Errors, RowError{Row: r.num, Message: err.Error()})
				im.observe(OutcomeFailed)
				continue
			}
			switch outcome {
			case OutcomeCreated:
				report.Created++
			case OutcomeUpdated:
				report.Updated++
			}
			report.IngredientIDs = append(report.IngredientIDs, ingredient)
			im.observe(outcome)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}
	return report, nil
}

func (im *Importer) observe(outcome Outcome) {
	for _, observe := range im.observers {
		observe(outcome)
	}
}

func (im *Importer) today() time.Time {
	now := im.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
