package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, http.StatusInternalServerError, CodeInternal, "pq: relation does not exist")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "internal_error", body["error"])
		_, ok := body["error_description"]
		assert.False(t, ok, "internal errors carry no description")
	})

	t.Run("bad request includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, http.StatusBadRequest, CodeValidation, "regulator_id required")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "validation_error", body["error"])
		assert.Equal(t, "regulator_id required", body["error_description"])
	})

	t.Run("unavailable keeps description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, "circuit registry is open")

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "circuit registry is open", body.Description)
	})
}

func TestDecode(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"acme"}`))
		w := httptest.NewRecorder()
		got, ok := Decode[payload](w, r, nil)
		require.True(t, ok)
		assert.Equal(t, "acme", got.Name)
	})

	for name, body := range map[string]string{
		"malformed":     `{"name":`,
		"unknown field": `{"name":"acme","extra":1}`,
		"trailing data": `{"name":"acme"}{"name":"other"}`,
	} {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			w := httptest.NewRecorder()
			_, ok := Decode[payload](w, r, nil)
			assert.False(t, ok)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
