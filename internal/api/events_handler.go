package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/rafaeljc/vigil/internal/ingest"
	"github.com/rafaeljc/vigil/internal/logger"
)

// handleIngestEvents serves POST /api/v1/events.
//
// The whole batch is rejected with 400 if it is empty, too large, or holds an
// invalid event. Otherwise it answers 202 with the dispatch counts, even when
// some events could not be published.
func (a *API) handleIngestEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req IngestEventsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, ErrorResponse{
				Code:    "ERR_BODY_TOO_LARGE",
				Message: fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		writeError(w, r, http.StatusBadRequest, ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return
	}

	res, err := a.dispatcher.Dispatch(r.Context(), req.Events)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, batchError(err))
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, IngestEventsResponse{Dispatched: res.Dispatched, Total: res.Total})
}

func batchError(err error) ErrorResponse {
	var eventErr *ingest.EventError
	switch {
	case errors.Is(err, ingest.ErrEmptyBatch):
		return ErrorResponse{Code: "ERR_EMPTY_BATCH", Message: "Event batch cannot be empty"}
	case errors.Is(err, ingest.ErrBatchTooLarge):
		return ErrorResponse{Code: "ERR_BATCH_TOO_LARGE", Message: err.Error()}
	case errors.As(err, &eventErr):
		return ErrorResponse{
			Code:    "ERR_INVALID_EVENT",
			Message: "Batch contains an invalid event",
			Details: []ErrorDetail{{
				Field:   fmt.Sprintf("events[%d]", eventErr.Index),
				Message: eventErr.Err.Error(),
			}},
		}
	default:
		return ErrorResponse{Code: "ERR_INVALID_INPUT", Message: err.Error()}
	}
}
