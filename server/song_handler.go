package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"musinotes/core/lyrics"
	"musinotes/model"
	"musinotes/service"

	"github.com/gorilla/mux"
)

var errInvalidSongID = newAPIError(http.StatusBadRequest, "Invalid song ID")

// SongHandler serves the /api/songs routes. Every route runs behind requireAuth.
type SongHandler struct {
	songs *service.SongService
	errs  errorWriter
}

// NewSongHandler creates a SongHandler.
func NewSongHandler(songs *service.SongService, errs errorWriter) *SongHandler {
	return &SongHandler{songs: songs, errs: errs}
}

// target resolves the caller and the {id} path variable.
func (h *SongHandler) target(r *http.Request) (userID, songID int64, err error) {
	id, err := identityOf(r)
	if err != nil {
		return 0, 0, err
	}
	songID, err = strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || songID <= 0 {
		return 0, 0, errInvalidSongID
	}
	return id.UserID, songID, nil
}

// ListSongsHandler handles GET /api/songs.
func (h *SongHandler) ListSongsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := identityOf(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	q := r.URL.Query()
	songs, err := h.songs.List(r.Context(), id.UserID, model.SongQuery{
		Search: q.Get("search"),
		Genre:  q.Get("genre"),
		Sort:   q.Get("sort"),
		Order:  q.Get("order"),
	})
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

// GetSongHandler handles GET /api/songs/{id}.
func (h *SongHandler) GetSongHandler(w http.ResponseWriter, r *http.Request) {
	userID, songID, err := h.target(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	song, err := h.songs.Get(r.Context(), userID, songID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

// CreateSongHandler handles POST /api/songs.
func (h *SongHandler) CreateSongHandler(w http.ResponseWriter, r *http.Request) {
	id, err := identityOf(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	var in model.SongInput
	if err := decodeJSON(r, &in); err != nil {
		h.errs.write(w, r, err)
		return
	}

	song, err := h.songs.Create(r.Context(), id.UserID, in)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, song)
}

// UpdateSongHandler handles PUT /api/songs/{id}. Only fields present in the body change.
func (h *SongHandler) UpdateSongHandler(w http.ResponseWriter, r *http.Request) {
	userID, songID, err := h.target(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	var in model.SongInput
	if err := decodeJSON(r, &in); err != nil {
		h.errs.write(w, r, err)
		return
	}

	song, err := h.songs.Update(r.Context(), userID, songID, in)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

// DeleteSongHandler handles DELETE /api/songs/{id}.
func (h *SongHandler) DeleteSongHandler(w http.ResponseWriter, r *http.Request) {
	userID, songID, err := h.target(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	if err := h.songs.Delete(r.Context(), userID, songID); err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Song deleted successfully"})
}

// SheetHandler handles GET /api/songs/{id}/sheet.
func (h *SongHandler) SheetHandler(w http.ResponseWriter, r *http.Request) {
	userID, songID, err := h.target(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	notation, lines, err := h.songs.Sheet(r.Context(), userID, songID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Notation lyrics.Notation `json:"notation"`
		Lines    []lyrics.Line   `json:"lines"`
	}{Notation: notation, Lines: lines})
}

// PDFHandler handles GET /api/songs/{id}/pdf.
func (h *SongHandler) PDFHandler(w http.ResponseWriter, r *http.Request) {
	h.serveExport(w, r, h.songs.ExportPDF)
}

// TextHandler handles GET /api/songs/{id}/txt.
func (h *SongHandler) TextHandler(w http.ResponseWriter, r *http.Request) {
	h.serveExport(w, r, h.songs.ExportText)
}

func (h *SongHandler) serveExport(w http.ResponseWriter, r *http.Request,
	render func(ctx context.Context, userID, songID int64) (*service.Export, error)) {
	userID, songID, err := h.target(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	out, err := render(r.Context(), userID, songID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(out.Data)
}
