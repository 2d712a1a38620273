package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"complexityofneed.org/internal/audit"
	"complexityofneed.org/internal/auth"
	"complexityofneed.org/internal/complexity"
)

type complexityView struct {
	OffenderNo       string    `json:"offenderNo"`
	Level            string    `json:"level"`
	SourceSystem     string    `json:"sourceSystem"`
	SourceUser       string    `json:"sourceUser,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	CreatedTimeStamp time.Time `json:"createdTimeStamp"`
	Active           *bool     `json:"active,omitempty"`
}

func viewOf(r complexity.Record) complexityView {
	return complexityView{
		OffenderNo:       r.SubjectID,
		Level:            string(r.Level),
		SourceSystem:     r.SourceSystem,
		SourceUser:       r.SourceUser,
		Notes:            r.Notes,
		CreatedTimeStamp: r.CreatedAt,
	}
}

func viewWithActive(r complexity.Record) complexityView {
	v := viewOf(r)
	active := r.Active
	v.Active = &active
	return v
}

type createRequest struct {
	Level      string `json:"level"`
	SourceUser string `json:"sourceUser"`
	Notes      string `json:"notes"`
}

func (a *API) getCurrent(w http.ResponseWriter, r *http.Request) {
	rec, err := a.resolver.CurrentFor(r.Context(), r.PathValue("offenderNo"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(rec))
}

func (a *API) createLevel(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.writeError(w, r, err)
			return
		}
		writeMessage(w, http.StatusBadRequest, msgBadJSON)
		return
	}

	clientID, _ := auth.ClientIDFromContext(r.Context())
	rec, err := a.service.Create(r.Context(), complexity.CreateInput{
		SubjectID:  r.PathValue("offenderNo"),
		Level:      req.Level,
		SourceUser: req.SourceUser,
		Notes:      req.Notes,
	}, clientID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	_ = a.audit.LogEvent(r.Context(), audit.EventComplexityCreated, map[string]any{
		"offender_no": rec.SubjectID,
		"level":       string(rec.Level),
		"id":          rec.ID,
	})
	writeJSON(w, http.StatusOK, viewOf(rec))
}

const msgMultipleBody = "You must provide a JSON array of NOMIS Offender Numbers in the request body"

func (a *API) getMultiple(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil || ids == nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.writeError(w, r, err)
			return
		}
		writeMessage(w, http.StatusBadRequest, msgMultipleBody)
		return
	}

	current, err := a.resolver.CurrentForMany(r.Context(), ids)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out := make([]complexityView, 0, len(current))
	for _, id := range ids {
		if rec, ok := current[id]; ok {
			out = append(out, viewOf(rec))
			delete(current, id)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := a.resolver.HistoryFor(r.Context(), r.PathValue("offenderNo"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if len(hist) == 0 {
		a.writeError(w, r, complexity.ErrNotFound)
		return
	}
	out := make([]complexityView, len(hist))
	for i, rec := range hist {
		out[i] = viewOf(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) inactivate(w http.ResponseWriter, r *http.Request) {
	rec, err := a.service.Inactivate(r.Context(), r.PathValue("offenderNo"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	_ = a.audit.LogEvent(r.Context(), audit.EventComplexityInactivated, map[string]any{
		"offender_no": rec.SubjectID,
		"id":          rec.ID,
	})
	writeJSON(w, http.StatusOK, viewWithActive(rec))
}
