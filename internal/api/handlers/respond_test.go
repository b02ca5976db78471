package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docsift/internal/core"
)

func TestIntParam(t *testing.T) {
	n, err := intParam("", "limit", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	n, err = intParam(" 7 ", "limit", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = intParam("0", "limit", 20, 1, 100)
	assert.EqualError(t, err, "limit must be between 1 and 100")

	_, err = intParam("ten", "limit", 20, 1, 100)
	assert.EqualError(t, err, "limit must be an integer")
}

func TestFloatParam(t *testing.T) {
	f, err := floatParam("", "threshold", 0, 1)
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = floatParam("0.25", "threshold", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.25, *f)

	_, err = floatParam("1.01", "threshold", 0, 1)
	assert.EqualError(t, err, "threshold must be between 0 and 1")

	_, err = floatParam("x", "threshold", 0, 1)
	assert.Error(t, err)

	for _, raw := range []string{"NaN", "nan", "-NaN"} {
		_, err = floatParam(raw, "semantic_weight", 0, 1)
		assert.EqualError(t, err, "semantic_weight must be a number", raw)
	}
}

func TestOptionalIntParam(t *testing.T) {
	p, err := optionalIntParam("", "chunk_size", 100, 10000)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = optionalIntParam("500", "chunk_size", 100, 10000)
	require.NoError(t, err)
	assert.Equal(t, 500, *p)

	_, err = optionalIntParam("99", "chunk_size", 100, 10000)
	assert.Error(t, err)
}

func TestWriteServiceError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/documents/x", nil)

	rec := httptest.NewRecorder()
	writeServiceError(rec, req, "Document not found", fmt.Errorf("lookup: %w", core.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Document not found", body.Error)

	rec = httptest.NewRecorder()
	writeServiceError(rec, req, "Document not found", errors.New("pool exhausted"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "pool exhausted")
}
