package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/VariantEffect/mavedb-core/internal/domain"
	"github.com/VariantEffect/mavedb-core/internal/service"
)

func recordError(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	writeError(c, err)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return w, body
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			"validation error",
			domain.NewValidationError("dataset validation failed", "row 0: bad"),
			http.StatusUnprocessableEntity,
		},
		{
			"hidden permission denial",
			&service.PermissionError{Hidden: true, Message: "score set with URN 'tmp:x' not found"},
			http.StatusNotFound,
		},
		{
			"plain permission denial",
			&service.PermissionError{Message: "insufficient permissions"},
			http.StatusForbidden,
		},
		{
			"ambiguous identifier",
			&domain.AmbiguousIdentifierError{Identifier: "212332", DBNames: []string{"PubMed", "bioRxiv"}},
			http.StatusBadRequest,
		},
		{
			"nonexistent identifier",
			&domain.NonexistentIdentifierError{Identifier: "nope"},
			http.StatusNotFound,
		},
		{
			"nonexistent orcid user",
			&domain.NonexistentOrcidUserError{ORCIDID: "0000-0000-0000-0000"},
			http.StatusNotFound,
		},
		{
			"mixed targets",
			&domain.MixedTargetError{ScoreSetURN: "tmp:x"},
			http.StatusUnprocessableEntity,
		},
		{
			"wrapped not found",
			fmt.Errorf("loading score set: %w", domain.ErrNotFound),
			http.StatusNotFound,
		},
		{
			"already exists",
			fmt.Errorf("inserting user: %w", domain.ErrAlreadyExists),
			http.StatusConflict,
		},
		{
			"transient external failure",
			&domain.TransientExternalError{Service: "PubMed", Err: errors.New("status 502")},
			http.StatusBadGateway,
		},
		{
			"unclassified error",
			errors.New("broken pipe"),
			http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := recordError(t, tt.err)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestWriteErrorValidationDetail(t *testing.T) {
	_, body := recordError(t, domain.NewValidationError("dataset validation failed", "row 0: bad", "row 1: worse"))

	if body["detail"] != "dataset validation failed" {
		t.Errorf("detail = %v", body["detail"])
	}
	rows, ok := body["errors"].([]any)
	if !ok || len(rows) != 2 {
		t.Errorf("errors = %v", body["errors"])
	}
}

func TestWriteErrorAmbiguousDatabases(t *testing.T) {
	_, body := recordError(t, &domain.AmbiguousIdentifierError{
		Identifier: "212332",
		DBNames:    []string{"PubMed", "bioRxiv"},
	})

	names, ok := body["db_names"].([]any)
	if !ok || len(names) != 2 || names[0] != "PubMed" {
		t.Errorf("db_names = %v", body["db_names"])
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	_, body := recordError(t, errors.New("pq: connection refused"))
	if body["detail"] != "internal server error" {
		t.Errorf("internal errors must not leak detail, got %v", body["detail"])
	}
}
