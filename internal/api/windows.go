package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/repository"
)

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	win, err := s.Windows.ForYear(r.Context(), r.URL.Query().Get("academic_year"))
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, win)
}

func (s *Server) handleSaveWindow(w http.ResponseWriter, r *http.Request) {
	var win model.AdmissionWindow
	if err := decodeJSON(w, r, &win); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	win.AdmissionCode = strings.TrimSpace(win.AdmissionCode)
	win.AcademicYear = strings.TrimSpace(win.AcademicYear)
	switch {
	case win.AdmissionCode == "" || win.AcademicYear == "":
		s.respondError(w, http.StatusBadRequest, "admission_code and academic_year are required")
		return
	case win.OpeningDate.IsZero() || win.ClosingDate.IsZero() || win.ClosingDate.Before(win.OpeningDate):
		s.respondError(w, http.StatusBadRequest, "opening_date must not be after closing_date")
		return
	}
	saved, err := s.Windows.Save(r.Context(), win)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.log.WithFields(logrus.Fields{"admission_code": saved.AdmissionCode, "is_open": saved.IsOpen}).Info("admission window saved")
	s.respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleOpenWindow(w http.ResponseWriter, r *http.Request) {
	s.switchWindow(w, r, true)
}

func (s *Server) handleCloseWindow(w http.ResponseWriter, r *http.Request) {
	s.switchWindow(w, r, false)
}

// switchWindow flips the admin switch. A window whose closing date has
// passed cannot be opened.
func (s *Server) switchWindow(w http.ResponseWriter, r *http.Request, open bool) {
	code, err := pathParam(r, "code")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid admission code")
		return
	}
	win, err := s.Windows.Get(r.Context(), code)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	if win.IsOpen == open {
		state := "closed"
		if open {
			state = "open"
		}
		s.respondError(w, http.StatusConflict, "window is already "+state)
		return
	}
	if open {
		probe := win
		probe.IsOpen = true
		if now := s.Clock.Now(); !probe.OpenAt(now) && now.After(win.ClosingDate) {
			s.respondError(w, http.StatusConflict, "closing date has passed")
			return
		}
	}
	updated, err := s.Windows.SetOpen(r.Context(), code, open)
	if errors.Is(err, repository.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.log.WithFields(logrus.Fields{"admission_code": code, "is_open": open}).Info("admission window switched")
	s.respondJSON(w, http.StatusOK, updated)
}
