package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/nbpublish/internal/apperr"
	"github.com/starford/nbpublish/internal/buildservice"
	"github.com/starford/nbpublish/internal/models"
	"github.com/starford/nbpublish/internal/publish"
)

const maxNotebookBytes = 20 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *buildservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *buildservice.Service) *Handler {
	return &Handler{svc: svc}
}

// sourcePath extracts the source key from the URL (everything after /api/notebooks/).
// Supports encoded slashes (e.g. notebooks%2F1-dev%2F1.01.ipynb).
func sourcePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListNotebooks handles GET /api/notebooks.
//
//	@Summary		List build records with optional pagination and filtering
//	@Tags			notebooks
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			status	query		string	false	"Filter by status"	Enums(published, skipped, failed)
//	@Success		200		{object}	BuildListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks [get]
func (h *Handler) ListNotebooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	status := q.Get("status")
	switch status {
	case "", models.StatusPublished, models.StatusSkipped, models.StatusFailed:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("invalid status"))
		return
	}

	items, total, err := h.svc.ListBuilds(r.Context(), status, limit, offset)
	if err != nil {
		slog.Error("list notebooks failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, BuildListResponse{Notebooks: items, Total: total})
}

// GetNotebook handles GET /api/notebooks/*.
//
//	@Summary		Get the build record of one notebook
//	@Tags			notebooks
//	@Produce		json
//	@Param			path	path		string	true	"Source path"
//	@Success		200		{object}	BuildDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks/{path} [get]
func (h *Handler) GetNotebook(w http.ResponseWriter, r *http.Request) {
	path := sourcePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	rec, err := h.svc.GetBuild(r.Context(), path)
	if err != nil {
		writeServiceError(w, "get notebook", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListSources handles GET /api/sources.
//
//	@Summary		List authored notebooks
//	@Tags			notebooks
//	@Produce		json
//	@Param			topic	query		string	false	"Restrict to one topic"
//	@Success		200		{object}	SourceListResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources [get]
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	sources, err := h.svc.ListSources(r.Context(), topic)
	if err != nil {
		writeServiceError(w, "list sources", err, slog.String("topic", topic))
		return
	}
	writeJSON(w, http.StatusOK, SourceListResponse{Sources: sources})
}

// PublishAll handles POST /api/publish.
//
//	@Summary		Publish every notebook of the selected topics
//	@Tags			publish
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PublishRequest	false	"Run options"
//	@Success		200		{object}	PublishResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/publish [post]
func (h *Handler) PublishAll(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	sum, err := h.svc.PublishAll(r.Context(), publish.Options{
		Force:  req.Force,
		Prune:  req.Prune,
		Topics: req.Topics,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) && len(sum.Results) == 0 {
			writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
			return
		}
		// Per-notebook failures are reported in the body.
		slog.Warn("publish finished with failures", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, toPublishResponse(sum))
}

// PublishOne handles POST /api/publish/{topic}/{name}.
//
//	@Summary		Publish one notebook
//	@Tags			publish
//	@Produce		json
//	@Param			topic	path		string	true	"Topic"
//	@Param			name	path		string	true	"Notebook file name"
//	@Param			force	query		bool	false	"Ignore the build manifest"
//	@Success		200		{object}	buildservice.PublishResult
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	buildservice.PublishResult
//	@Security		BearerAuth
//	@Router			/publish/{topic}/{name} [post]
func (h *Handler) PublishOne(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid name"))
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	res, err := h.svc.PublishOne(r.Context(), topic, name, force)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound) && res.Status == "":
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case buildservice.IsInvalidInput(err):
			writeJSON(w, http.StatusUnprocessableEntity, res)
		default:
			slog.Error("publish notebook failed", slog.String("topic", topic), slog.String("name", name), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, res)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Preview handles POST /api/preview.
//
// The body is a notebook document. With topic and name query parameters the
// authored notebook is previewed instead and the body is ignored.
//
//	@Summary		Sanitize a notebook without writing anything
//	@Tags			publish
//	@Accept			json
//	@Produce		json
//	@Param			topic	query		string	false	"Topic of an authored notebook"
//	@Param			name	query		string	false	"File name of an authored notebook"
//	@Success		200		{object}	Preview
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/preview [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		out *buildservice.Preview
		err error
	)
	if topic, name := q.Get("topic"), q.Get("name"); topic != "" || name != "" {
		if topic == "" || name == "" {
			writeJSON(w, http.StatusBadRequest, errorBody("topic and name are both required"))
			return
		}
		out, err = h.svc.PreviewSource(r.Context(), topic, name)
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxNotebookBytes)
		body, rerr := io.ReadAll(r.Body)
		if rerr != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
			return
		}
		out, err = h.svc.Preview(r.Context(), body)
	}
	if err != nil {
		writeServiceError(w, "preview", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Rules handles GET /api/rules.
//
//	@Summary		Get the active sanitizing rules
//	@Tags			publish
//	@Produce		json
//	@Success		200	{object}	RulesResponse
//	@Security		BearerAuth
//	@Router			/rules [get]
func (h *Handler) Rules(w http.ResponseWriter, _ *http.Request) {
	rules, steps := h.svc.Rules()
	writeJSON(w, http.StatusOK, RulesResponse{Rules: rules, Steps: steps})
}
