package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/AdmitFlow/internal/documents"
	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/queue"
	"github.com/dharsanguruparan/AdmitFlow/internal/repository"
	"github.com/dharsanguruparan/AdmitFlow/internal/s3storage"
)

type uploadResponse struct {
	RemoteURL string `json:"remote_url"`
}

var extensions = map[string]string{
	documents.MimeJPEG: ".jpg",
	documents.MimePDF:  ".pdf",
}

// handleUpload stores one document for the caller's application of the
// current academic year. The role's type and size rule is enforced again
// on the received bytes.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role := model.Role(chi.URLParam(r, "role"))
	rule, ok := documents.ConstraintFor(role)
	if !ok {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("unknown document role %q", role))
		return
	}
	year, err := s.academicYear(r)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	app, err := s.Applications.ForApplicant(ctx, claimsOf(r).Subject, year)
	if errors.Is(err, repository.ErrNotFound) {
		s.respondError(w, http.StatusConflict, "save basic information before uploading documents")
		return
	}
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	if app.Status == model.StatusSubmitted {
		s.respondError(w, http.StatusConflict, repository.ErrSubmitted.Error())
		return
	}

	limit := s.MaxUploadBytes
	if limit <= 0 || limit < rule.MaxBytes {
		limit = rule.MaxBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	mr, err := r.MultipartReader()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "expecting multipart form")
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer part.Close()
	// One byte past the rule is enough to report the file as too large.
	data, err := io.ReadAll(io.LimitReader(part, rule.MaxBytes+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "read file: "+err.Error())
		return
	}
	mime, err := documents.Check(role, data)
	var cerr *documents.ConstraintError
	if errors.As(err, &cerr) {
		s.respondError(w, http.StatusBadRequest, cerr.Error())
		return
	}
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	fileName := filepath.Base(part.FileName())
	if fileName == "." || fileName == "/" {
		fileName = string(role) + extensions[mime]
	}
	logger := s.log.WithFields(logrus.Fields{"application_id": app.ID, "role": role})
	key := s3storage.ObjectKey(app.ID, role, extensions[mime])
	if err := s.Objects.Put(ctx, key, data, mime); err != nil {
		logger.WithError(err).Error("store document")
		s.respondError(w, http.StatusServiceUnavailable, "failed to store file")
		return
	}
	replaced, err := s.Documents.Put(ctx, &repository.Document{
		ApplicationID: app.ID,
		Role:          role,
		ObjectKey:     key,
		FileName:      fileName,
		Mime:          mime,
		SizeBytes:     int64(len(data)),
	})
	if err != nil {
		logger.WithError(err).Error("record document")
		_ = s.Objects.Remove(ctx, key)
		s.respondError(w, http.StatusServiceUnavailable, "failed to store metadata")
		return
	}
	if replaced != "" && replaced != key {
		if err := s.Objects.Remove(ctx, replaced); err != nil {
			logger.WithError(err).Warn("remove replaced document")
		}
	}
	if role.IsMarksheet() && mime == documents.MimePDF && s.Queue != nil {
		payload := queue.InspectPayload{ApplicationID: app.ID, Role: role, ObjectKey: key}
		if err := queue.EnqueueInspect(ctx, s.Queue, payload); err != nil {
			logger.WithError(err).Warn("queue marksheet inspection")
		}
	}
	logger.WithField("size", len(data)).Info("document uploaded")
	s.respondJSON(w, http.StatusCreated, uploadResponse{RemoteURL: documentURL(app.ID, role)})
}

// handleDocument redirects to a short-lived presigned URL.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "applicationID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid application id")
		return
	}
	role := model.Role(chi.URLParam(r, "role"))
	if _, err := s.owned(r.Context(), claimsOf(r), id); err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	doc, err := s.Documents.Get(r.Context(), id, role)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	u, err := s.Objects.Presign(r.Context(), doc.ObjectKey, doc.FileName, s.SignedURLTTL)
	if err != nil {
		s.log.WithError(err).Error("presign document")
		s.respondError(w, http.StatusInternalServerError, "failed to generate url")
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}
