package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"orti/internal/core"
)

func TestJSONResponseBuilder(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Custom", "yes").
		Data(map[string]int{"n": 1}).
		Write(rr)

	if rr.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusCreated)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rr.Header().Get("X-Custom"); got != "yes" {
		t.Errorf("X-Custom = %q", got)
	}
	if got := rr.Body.String(); got != "{\"n\":1}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestJSONResponseBuilder_NoContent(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Data("ignored").Write(rr)
	if rr.Code != http.StatusNoContent || rr.Body.Len() != 0 {
		t.Errorf("got %d with body %q", rr.Code, rr.Body.String())
	}
}

func TestJSONResponseBuilder_EncodeFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJSONResponse().Data(make(chan int)).Write(rr)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body.Kind != ErrorKindInternal {
		t.Errorf("body = %q (%v)", rr.Body.String(), err)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"request", &RequestError{Field: "body", Err: errMissing}, http.StatusBadRequest, ErrorKindBadRequest},
		{"validation", fmt.Errorf("save: %w", core.ErrInvalidMonth), http.StatusUnprocessableEntity, ErrorKindValidation},
		{"calculated category", core.NewStructuralError("save", "Totale", core.ErrCalculatedCategory), http.StatusUnprocessableEntity, ErrorKindValidation},
		{"main subcategory", core.NewStructuralError("delete", "Main", core.ErrMainSubcategory), http.StatusUnprocessableEntity, ErrorKindValidation},
		{"structural", core.NewStructuralError("cell", "x", core.ErrNotFound), http.StatusNotFound, ErrorKindStructural},
		{"not found", fmt.Errorf("category: %w", core.ErrNotFound), http.StatusNotFound, ErrorKindStructural},
		{"persistence", &core.PersistenceFailure{Op: "sort order", Err: errors.New("timeout")}, http.StatusBadGateway, ErrorKindPersistence},
		{"internal", errors.New("boom"), http.StatusInternalServerError, ErrorKindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, kind := ClassifyError(tt.err)
			if status != tt.wantStatus || kind != tt.wantKind {
				t.Errorf("ClassifyError = %d %q, want %d %q", status, kind, tt.wantStatus, tt.wantKind)
			}
		})
	}
}

func TestErrorFromErr_HidesInternalMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	ErrorFromErr(errors.New("dial tcp 10.0.0.3:5432: connection refused")).Write(rr)

	var body ErrorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "internal error" {
		t.Errorf("message leaked: %q", body.Error)
	}

	rr = httptest.NewRecorder()
	ErrorFromErr(fmt.Errorf("save: %w", core.ErrInvalidPlane)).Write(rr)
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "save: invalid plane" || body.Kind != ErrorKindValidation {
		t.Errorf("body = %+v", body)
	}
}
