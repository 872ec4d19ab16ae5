package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"orti/internal/core"
	"orti/internal/engine"
	"orti/internal/log"
	"orti/internal/services"
)

type saveEntryRequest struct {
	TargetID uuid.UUID `json:"target_id"`
	Month    int       `json:"month"`
	Plane    string    `json:"plane"`
	Value    *Amount   `json:"value"`
	Notes    string    `json:"notes"`
}

// handleSaveEntry upserts one cell. target_id may name a subcategory or a
// category; a category writes to its Main subcategory.
func (s *Server) handleSaveEntry(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req saveEntryRequest
	if err := DecodeJSON(w, r, &req, s.cfg.MaxBodyBytes); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.TargetID == uuid.Nil {
		s.writeError(w, r, &RequestError{Field: "target_id", Err: errMissing})
		return
	}
	if req.Value == nil {
		s.writeError(w, r, &RequestError{Field: "value", Err: errMissing})
		return
	}
	plane, err := core.ParsePlane(req.Plane)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	entry, err := sess.SaveEntry(r.Context(), services.EntryRequest{
		TargetID: req.TargetID,
		Month:    req.Month,
		Plane:    plane,
		Value:    req.Value.Decimal,
		Notes:    sanitizeInput(req.Notes),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(newEntryView(entry)).Write(w)
}

func (s *Server) handleClearSubcategory(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := sess.ClearSubcategory(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(map[string]int{"cleared": n}).Write(w)
}

type reorderRequest struct {
	Scope       string    `json:"scope"`
	Kind        string    `json:"kind"`
	CategoryID  uuid.UUID `json:"category_id"`
	MovedID     uuid.UUID `json:"moved_id"`
	TargetIndex int       `json:"target_index"`
	// Wait holds the response until the new order is persisted.
	Wait bool `json:"wait"`
}

func (req reorderRequest) scope() (engine.Scope, error) {
	switch req.Scope {
	case "categories":
		kind, err := core.ParseKind(req.Kind)
		if err != nil {
			return engine.Scope{}, err
		}
		return engine.CategoriesOf(kind), nil
	case "subcategories":
		if req.CategoryID == uuid.Nil {
			return engine.Scope{}, &RequestError{Field: "category_id", Err: errMissing}
		}
		return engine.SubcategoriesOf(req.CategoryID), nil
	}
	return engine.Scope{}, &RequestError{Field: "scope", Err: errors.New(`must be "categories" or "subcategories"`)}
}

// handleReorder applies the move locally and answers 202 while persistence
// runs, or 200 once committed when the client asked to wait. The Location of
// a 202 reports the outcome once the command settles.
func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req reorderRequest
	if err := DecodeJSON(w, r, &req, s.cfg.MaxBodyBytes); err != nil {
		s.writeError(w, r, err)
		return
	}
	scope, err := req.scope()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	cmd, err := sess.Reorder(r.Context(), scope, req.MovedID, req.TargetIndex)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	go s.propagateOrder(cmd, sess)

	if req.Wait {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReorderWaitTimeout)
		defer cancel()
		if err := cmd.Wait(ctx); err != nil {
			s.writeError(w, r, err)
			return
		}
		NewJSONResponse().Data(newReorderView(cmd)).Write(w)
		return
	}

	NewJSONResponse().
		Status(http.StatusAccepted).
		Header("Location", fmt.Sprintf("/api/years/%d/reorder/%s", sess.Year(), cmd.ID)).
		Data(newReorderView(cmd)).
		Write(w)
}

// handleReorderStatus reports a recent reorder. A rolled back command carries
// its persistence failure in the error field.
func (s *Server) handleReorderStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cmd, ok := sess.ReorderCommand(id)
	if !ok {
		s.writeError(w, r, core.NewStructuralError("reorder", id.String(), core.ErrNotFound))
		return
	}
	NewJSONResponse().Data(newReorderView(cmd)).Write(w)
}

// propagateOrder refreshes the other open years once a reorder commits;
// sort order is shared by every year of the company.
func (s *Server) propagateOrder(cmd *services.ReorderCommand, sess *services.Session) {
	<-cmd.Done()
	if cmd.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.refreshOthers(ctx, sess)
}

type createCategoryRequest struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Calculated bool   `json:"calculated"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := DecodeJSON(w, r, &req, s.cfg.MaxBodyBytes); err != nil {
		s.writeError(w, r, err)
		return
	}
	kind, err := core.ParseKind(req.Kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.currentSession(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cat, err := sess.CreateCategory(r.Context(), sanitizeInput(req.Name), kind, req.Calculated)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.refreshOthers(r.Context(), sess)

	s.requestLogger(r.Context()).InfoContext(r.Context(), "Category created",
		log.FieldCategoryID, cat.ID,
		"name", cat.Name,
		"kind", cat.Kind)
	NewJSONResponse().Status(http.StatusCreated).Data(newCategoryView(cat)).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.currentSession(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.DeleteCategory(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.refreshOthers(r.Context(), sess)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

type createSubcategoryRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateSubcategory(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req createSubcategoryRequest
	if err := DecodeJSON(w, r, &req, s.cfg.MaxBodyBytes); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.currentSession(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sub, err := sess.CreateSubcategory(r.Context(), id, sanitizeInput(req.Name))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.refreshOthers(r.Context(), sess)
	NewJSONResponse().Status(http.StatusCreated).Data(newSubcategoryView(sub)).Write(w)
}

func (s *Server) handleDeleteSubcategory(w http.ResponseWriter, r *http.Request) {
	id, err := PathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.currentSession(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.DeleteSubcategory(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.refreshOthers(r.Context(), sess)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleConsolidate promotes the month's projections and closes it.
func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	month, err := PathMonth(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	promoted, err := sess.ConsolidateMonth(r.Context(), month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := sess.MonthStatus(month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(consolidationView{Month: month, Promoted: promoted, Status: status}).Write(w)
}

func (s *Server) handleRevertConsolidation(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	month, err := PathMonth(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.RevertConsolidation(r.Context(), month); err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := sess.MonthStatus(month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(status).Write(w)
}
