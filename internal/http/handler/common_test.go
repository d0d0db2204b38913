package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/service"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) domain.APIError {
	t.Helper()
	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	return apiErr
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"validation", domain.NewValidationError("name", "is required"), http.StatusBadRequest, domain.ErrorTypeValidation},
		{"unauthenticated", service.ErrUnauthorized, http.StatusUnauthorized, domain.ErrorTypeUnauthorized},
		{"access denied", fmt.Errorf("%w: not your project", domain.ErrAccessDenied), http.StatusForbidden, domain.ErrorTypeForbidden},
		{"not found", domain.NotFoundError("project", "24-01-aa"), http.StatusNotFound, domain.ErrorTypeNotFound},
		{"unknown user", fmt.Errorf("user 9: %w", domain.ErrUserNotFound), http.StatusNotFound, domain.ErrorTypeNotFound},
		{"conflict", fmt.Errorf("%w: already decided", service.ErrConflict), http.StatusConflict, domain.ErrorTypeConflict},
		{"legacy document", store.ErrLegacyDocument, http.StatusServiceUnavailable, domain.ErrorTypeUnavailable},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, domain.ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			respondServiceError(w, zap.NewNop(), tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			apiErr := decodeAPIError(t, w)
			assert.Equal(t, tt.wantType, apiErr.Type)
			assert.Equal(t, tt.wantStatus, apiErr.Status)
		})
	}
}

func TestRespondServiceError_HidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	respondServiceError(w, zap.NewNop(), errors.New("open /var/data/pfmt.json: permission denied"))

	apiErr := decodeAPIError(t, w)
	assert.NotContains(t, apiErr.Detail, "/var/data")
}

func TestRespondValidationError_NamesField(t *testing.T) {
	w := httptest.NewRecorder()
	respondValidationError(w, domain.NewValidationError("endDate", "must not precede startDate"))

	apiErr := decodeAPIError(t, w)
	assert.Equal(t, map[string]string{"endDate": "must not precede startDate"}, apiErr.Errors)
}

type testLine struct {
	Source string `json:"source" validate:"required"`
}

type testRequest struct {
	Name  string     `json:"name" validate:"required,max=10"`
	Lines []testLine `json:"fundingLines" validate:"dive"`
}

func TestValidateBody(t *testing.T) {
	w := httptest.NewRecorder()
	assert.True(t, validateBody(w, &testRequest{Name: "ok", Lines: []testLine{{Source: "capital"}}}))

	w = httptest.NewRecorder()
	ok := validateBody(w, &testRequest{Name: "far too long a name", Lines: []testLine{{Source: "capital"}, {}}})
	require.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	apiErr := decodeAPIError(t, w)
	assert.Equal(t, domain.ErrorTypeValidation, apiErr.Type)
	assert.Equal(t, "Must be at most 10 characters", apiErr.Errors["name"])
	assert.Equal(t, "source is required", apiErr.Errors["fundingLines[1].source"])
	assert.Len(t, apiErr.Errors, 2)
}

func TestParseListParams(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/projects?page=2&pageSize=5&sortBy=name&sortOrder=desc", nil)
	params := parseListParams(r)
	assert.Equal(t, 2, params.Page)
	assert.Equal(t, 5, params.PageSize)
	assert.Equal(t, "name", params.SortBy)
	assert.Equal(t, "desc", params.SortOrder)

	params = parseListParams(httptest.NewRequest(http.MethodGet, "/projects?page=-1&pageSize=abc", nil))
	assert.Equal(t, 1, params.Page)
	assert.Positive(t, params.PageSize)
}

func TestParseIntParam(t *testing.T) {
	n, ok := parseIntParam("42")
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	for _, raw := range []string{"", "0", "-3", "abc"} {
		_, ok := parseIntParam(raw)
		assert.False(t, ok, raw)
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "report.pdf", sanitizeFilename("report.pdf"))
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "plan.dwg", sanitizeFilename(`C:\drawings\plan.dwg`))
	assert.Equal(t, "file", sanitizeFilename(""))
	assert.Equal(t, "a_b.txt", sanitizeFilename("a:b.txt"))
}
