package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/logging"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeServiceError maps not-found to 404 and logs everything else as a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, notFound string, err error) {
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	logging.FromContext(r.Context()).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

// intParam reads an optional integer query or form value bounded to [lo, hi].
func intParam(raw, name string, def, lo, hi int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%s must be between %d and %d", name, lo, hi)
	}
	return n, nil
}

func floatParam(raw, name string, lo, hi float64) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) {
		return nil, fmt.Errorf("%s must be a number", name)
	}
	if f < lo || f > hi {
		return nil, fmt.Errorf("%s must be between %g and %g", name, lo, hi)
	}
	return &f, nil
}

func optionalIntParam(raw, name string, lo, hi int) (*int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	n, err := intParam(raw, name, 0, lo, hi)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
