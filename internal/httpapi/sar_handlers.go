package httpapi

import (
	"errors"
	"net/http"

	"complexityofneed.org/internal/audit"
	"complexityofneed.org/internal/complexity"
)

// Subject access request error codes.
const (
	sarBothIdentifiers = 1
	sarWrongIdentifier = 2
	sarInvalidDate     = 3

	// statusWrongIdentifier tells the SAR orchestrator this service holds
	// no data for the identifier type it sent.
	statusWrongIdentifier = 209
	statusInvalidDate     = 210
)

type sarError struct {
	DeveloperMessage string `json:"developerMessage"`
	ErrorCode        int    `json:"errorCode"`
	Status           int    `json:"status"`
	UserMessage      string `json:"userMessage"`
}

func writeSARError(w http.ResponseWriter, status, code int, msg string) {
	writeJSON(w, status, sarError{DeveloperMessage: msg, ErrorCode: code, Status: status, UserMessage: msg})
}

func (a *API) subjectAccess(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prn, crn := q.Get("prn"), q.Get("crn")

	switch {
	case prn != "" && crn != "":
		writeSARError(w, http.StatusBadRequest, sarBothIdentifiers, "Cannot supply both CRN and PRN")
		return
	case crn != "":
		writeSARError(w, statusWrongIdentifier, sarWrongIdentifier, "Must supply PRN")
		return
	case prn == "":
		w.WriteHeader(http.StatusNoContent)
		return
	}

	rows, err := a.exporter.Export(r.Context(), prn, q.Get("fromDate"), q.Get("toDate"))
	if errors.Is(err, complexity.ErrInvalidRange) {
		writeSARError(w, statusInvalidDate, sarInvalidDate, "Invalid date format")
		return
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	// No content means the service holds nothing for the subject; a range
	// that excludes every record is still an empty 200.
	if len(rows) == 0 {
		known, err := a.exporter.HasRecords(r.Context(), prn)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		if !known {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	_ = a.audit.LogEvent(r.Context(), audit.EventSubjectAccessExported, map[string]any{
		"prn":       prn,
		"from_date": q.Get("fromDate"),
		"to_date":   q.Get("toDate"),
		"records":   len(rows),
	})
	content := make([]complexityView, len(rows))
	for i, rec := range rows {
		content[i] = viewWithActive(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": content})
}
