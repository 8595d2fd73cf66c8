package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/AdmitFlow/internal/auth"
	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/repository"
	"github.com/dharsanguruparan/AdmitFlow/internal/stage"
	"github.com/dharsanguruparan/AdmitFlow/internal/validation"
)

type saveStageRequest struct {
	ApplicationID string       `json:"application_id,omitempty"`
	Fields        model.Fields `json:"fields"`
}

func claimsOf(r *http.Request) *auth.Claims {
	c, _ := auth.FromContext(r.Context())
	return c
}

// academicYear is the query parameter, or the year of the latest window.
func (s *Server) academicYear(r *http.Request) (string, error) {
	if year := r.URL.Query().Get("academic_year"); year != "" {
		return year, nil
	}
	win, err := s.Windows.ForYear(r.Context(), "")
	if err != nil {
		return "", err
	}
	return win.AcademicYear, nil
}

// owned loads an application the caller may see.
func (s *Server) owned(ctx context.Context, c *auth.Claims, id string) (*model.Application, error) {
	app, err := s.Applications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Role != auth.RoleAdmin && app.ApplicantID != c.Subject {
		return nil, repository.ErrNotOwner
	}
	return app, nil
}

// hydrate attaches document URLs and the latest payment order.
func (s *Server) hydrate(ctx context.Context, app *model.Application) error {
	roles, err := s.Documents.Roles(ctx, app.ID)
	if err != nil {
		return err
	}
	app.Documents = make(map[model.Role]string, len(roles))
	for _, role := range roles {
		app.Documents[role] = documentURL(app.ID, role)
	}
	order, err := s.Orders.Latest(ctx, app.ID)
	switch {
	case err == nil:
		app.Payment = &order
	case !errors.Is(err, repository.ErrNotFound):
		return err
	}
	return nil
}

func (s *Server) handleCurrentApplication(w http.ResponseWriter, r *http.Request) {
	year, err := s.academicYear(r)
	if errors.Is(err, repository.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	app, err := s.Applications.ForApplicant(r.Context(), claimsOf(r).Subject, year)
	if errors.Is(err, repository.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err == nil {
		err = s.hydrate(r.Context(), app)
	}
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, app)
}

func (s *Server) handleApplication(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid application id")
		return
	}
	app, err := s.owned(r.Context(), claimsOf(r), id)
	if err == nil {
		err = s.hydrate(r.Context(), app)
	}
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, app)
}

// handleSaveStage re-validates the stage before persisting it. The first
// BasicInfo save needs an open admission window.
func (s *Server) handleSaveStage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := model.ParseStage(chi.URLParam(r, "stage"))
	if err != nil || !st.Editable() {
		s.respondError(w, http.StatusBadRequest, "unknown or read-only stage")
		return
	}
	var req saveStageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	claims := claimsOf(r)

	save := repository.StageSave{
		ApplicantID:   claims.Subject,
		ApplicationID: req.ApplicationID,
		Stage:         st,
		Fields:        req.Fields,
		Referral:      claims.Referral(),
	}
	assets := map[model.Role]model.AssetStatus{}
	if req.ApplicationID != "" {
		if _, err := s.owned(ctx, claims, req.ApplicationID); err != nil {
			s.respondStoreError(w, r, err)
			return
		}
		roles, err := s.Documents.Roles(ctx, req.ApplicationID)
		if err != nil {
			s.respondStoreError(w, r, err)
			return
		}
		for _, role := range roles {
			assets[role] = model.AssetUploaded
		}
	} else {
		win, err := s.Windows.ForYear(ctx, r.URL.Query().Get("academic_year"))
		if errors.Is(err, repository.ErrNotFound) || (err == nil && !win.OpenAt(s.Clock.Now())) {
			s.respondError(w, http.StatusConflict, "admission window is closed")
			return
		}
		if err != nil {
			s.respondStoreError(w, r, err)
			return
		}
		save.AcademicYear = win.AcademicYear
	}

	errs, err := validation.Validate(st, validation.Input{Fields: req.Fields, Assets: assets})
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !errs.OK() {
		s.respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Errors: errs})
		return
	}

	app, err := s.Applications.SaveStage(ctx, save)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.log.WithFields(logrus.Fields{"application_id": app.ID, "stage": st}).Info("stage saved")
	s.respondJSON(w, http.StatusOK, stage.SaveResult{ApplicationID: app.ID})
}
