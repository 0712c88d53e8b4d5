package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"recipecost/internal/importer"
	applog "recipecost/internal/log"
	"recipecost/internal/metrics"
	"recipecost/internal/store"
	"recipecost/internal/views/components"
)

const (
	sessionImportIDKey        = "import:id"
	sessionImportStateKey     = "import:state"
	sessionImportDelimiterKey = "import:delimiter"
	sessionImportFileKey      = "import:file"
	sessionImportMessageKey   = "import:message"
	sessionImportCreatedKey   = "import:created"
	sessionImportUpdatedKey   = "import:updated"
	sessionImportErrorsKey    = "import:errors"

	importStateDraft = "draft"
	importStateDone  = "done"

	maxImportUpload = 32 << 20
)

var errImportRecompute = errors.New("recompute after import")

type ingredientImport struct {
	ID         string              `json:"id"`
	State      string              `json:"state"`
	Delimiter  string              `json:"delimiter"`
	FileName   string              `json:"file_name,omitempty"`
	Message    string              `json:"message,omitempty"`
	Created    int                 `json:"created"`
	Updated    int                 `json:"updated"`
	ErrorCount int                 `json:"error_count"`
	// Errors is only sent with the upload response; the session keeps the count.
	Errors []importer.RowError `json:"errors,omitempty"`
}

// IngredientImportResource runs the ingredient import form. GET returns the
// session's last import; POST takes a multipart upload with a file and an
// optional delimiter field.
func IngredientImportResource(w http.ResponseWriter, r *http.Request) {
	if serviceUnavailable(w, r, "ingredient import") {
		return
	}
	if sessionManager == nil {
		http.Error(w, "sessions not available", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		respondImport(w, r, http.StatusOK, loadImport(r))
	case http.MethodPost:
		runImport(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// loadImport returns the import held in the session, starting a draft when
// there is none.
func loadImport(r *http.Request) ingredientImport {
	ctx := r.Context()
	state := ingredientImport{
		ID:         sessionManager.GetString(ctx, sessionImportIDKey),
		State:      sessionManager.GetString(ctx, sessionImportStateKey),
		Delimiter:  sessionManager.GetString(ctx, sessionImportDelimiterKey),
		FileName:   sessionManager.GetString(ctx, sessionImportFileKey),
		Message:    sessionManager.GetString(ctx, sessionImportMessageKey),
		Created:    sessionManager.GetInt(ctx, sessionImportCreatedKey),
		Updated:    sessionManager.GetInt(ctx, sessionImportUpdatedKey),
		ErrorCount: sessionManager.GetInt(ctx, sessionImportErrorsKey),
	}
	if state.ID == "" {
		state.ID = uuid.NewString()
		sessionManager.Put(ctx, sessionImportIDKey, state.ID)
	}
	if state.State == "" {
		state.State = importStateDraft
	}
	if state.Delimiter == "" {
		state.Delimiter = ","
	}
	return state
}

func runImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current := loadImport(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxImportUpload)
	if err := r.ParseMultipartForm(maxImportUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		applog.Debug(ctx, "invalid import upload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid upload")
		return
	}

	delimiter, err := importer.ParseDelimiter(strings.TrimSpace(r.FormValue("delimiter")))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, importer.ErrNoFile.Error())
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		applog.Error(ctx, "failed to read import upload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "unable to read uploaded file")
		return
	}

	opts := append([]importer.Option{importer.WithObserver(metrics.ObserveImportRow)}, importOptions...)
	// The catalog changes and the recipe costs they move commit together.
	var report *importer.Report
	err = database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		report, err = importer.New(store.New(tx), opts...).Import(ctx, importer.Request{
			Payload:   payload,
			Delimiter: delimiter,
			Format:    importer.DetectFormat(header.Filename),
		})
		if err != nil {
			return err
		}
		if len(report.IngredientIDs) == 0 {
			return nil
		}
		costs, _ := withCosting(tx)
		if _, err := costs.RecomputeForIngredients(ctx, report.IngredientIDs...); err != nil {
			return fmt.Errorf("%w: %w", errImportRecompute, err)
		}
		return nil
	})
	metrics.ImportFinished(err != nil)
	if err != nil {
		switch {
		case errors.Is(err, importer.ErrNoFile), errors.Is(err, importer.ErrUnsupportedFormat):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, errImportRecompute):
			applog.Error(ctx, "failed to recompute recipes after import", "error", err, "file", header.Filename)
			writeJSONError(w, http.StatusInternalServerError, "import rolled back: unable to recompute recipe costs")
		default:
			applog.Error(ctx, "ingredient import failed", "error", err, "file", header.Filename)
			writeJSONError(w, http.StatusBadRequest, "unable to import file: "+err.Error())
		}
		return
	}

	current.State = importStateDone
	current.Delimiter = string(delimiter)
	current.FileName = header.Filename
	current.Message = report.Message()
	current.Created = report.Created
	current.Updated = report.Updated
	current.ErrorCount = len(report.Errors)
	current.Errors = report.Errors

	sessionManager.Put(ctx, sessionImportStateKey, current.State)
	sessionManager.Put(ctx, sessionImportDelimiterKey, current.Delimiter)
	sessionManager.Put(ctx, sessionImportFileKey, current.FileName)
	sessionManager.Put(ctx, sessionImportMessageKey, current.Message)
	sessionManager.Put(ctx, sessionImportCreatedKey, current.Created)
	sessionManager.Put(ctx, sessionImportUpdatedKey, current.Updated)
	sessionManager.Put(ctx, sessionImportErrorsKey, current.ErrorCount)

	applog.Info(ctx, "ingredient import completed",
		"file", header.Filename,
		"created", report.Created,
		"updated", report.Updated,
		"errors", current.ErrorCount,
	)
	respondImport(w, r, http.StatusOK, current)
}

func respondImport(w http.ResponseWriter, r *http.Request, status int, state ingredientImport) {
	if !isHTMX(r) {
		writeJSON(w, status, state)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fragment := components.ImportResultFragment(components.ImportResult{
		ID:        state.ID,
		State:     state.State,
		FileName:  state.FileName,
		Delimiter: state.Delimiter,
		Message:   state.Message,
		Created:   state.Created,
		Updated:   state.Updated,
		Errors:    state.ErrorCount,
	})
	if err := fragment.Render(r.Context(), w); err != nil {
		applog.Error(r.Context(), "failed to render import result", "error", err)
	}
}
