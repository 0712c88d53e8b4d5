package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"recipecost/internal/costing"
	applog "recipecost/internal/log"
	"recipecost/internal/recipes"
	"recipecost/models"
)

var validate = validator.New()

func init() {
	// Lets numeric tags such as gte=0 apply to decimal fields.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		applog.Error(context.Background(), "failed to encode json response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodePayload reads a JSON body into dst and runs its validate tags.
func decodePayload(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request payload")
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			problems := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return errors.New(strings.Join(problems, "; "))
		}
		return err
	}
	return nil
}

// writeServiceError maps domain errors onto status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		writeJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, costing.ErrCycle), errors.Is(err, recipes.ErrSelfReference):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, recipes.ErrInUse):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrInvalidLineTarget):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		applog.Error(r.Context(), message, "error", err, "path", r.URL.Path)
		writeJSONError(w, http.StatusInternalServerError, message)
	}
}

// resourcePath splits the part of the URL after prefix into segments.
func resourcePath(r *http.Request, prefix string) []string {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func parseID(value string) (uint, bool) {
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func optionalID(values map[string][]string, key string) (uint, bool) {
	raw := ""
	if v, ok := values[key]; ok && len(v) > 0 {
		raw = strings.TrimSpace(v[0])
	}
	if raw == "" {
		return 0, false
	}
	return parseID(raw)
}

func serviceUnavailable(w http.ResponseWriter, r *http.Request, resource string) bool {
	if available() {
		return false
	}
	applog.Debug(r.Context(), "request without database", "resource", resource)
	http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	return true
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
