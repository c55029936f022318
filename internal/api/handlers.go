package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/vietddude/streamwatch/internal/query"
	"github.com/vietddude/streamwatch/internal/validation"
)

// Handlers holds the services behind the HTTP endpoints.
type Handlers struct {
	queries *query.Service
	runner  *validation.Runner
	log     *slog.Logger
}

// NewHandlers creates the endpoint handlers.
func NewHandlers(queries *query.Service, runner *validation.Runner) *Handlers {
	return &Handlers{
		queries: queries,
		runner:  runner,
		log:     slog.Default(),
	}
}

type streamResponse struct {
	StreamID          uuid.UUID  `json:"streamId"`
	Position          int64      `json:"position"`
	LastKnownPosition int64      `json:"lastKnownPosition"`
	Source            string     `json:"source"`
	Component         string     `json:"component"`
	UpToDate          bool       `json:"upToDate"`
	ErrorID           *uuid.UUID `json:"errorId"`
	ErrorPosition     *int64     `json:"errorPosition"`
}

type streamErrorDetailsResponse struct {
	ID               uuid.UUID `json:"id"`
	Hash             string    `json:"hash"`
	ExceptionMessage string    `json:"exceptionMessage"`
	EventName        string    `json:"eventName"`
	StreamID         uuid.UUID `json:"streamId"`
	PositionInStream int64     `json:"positionInStream"`
	ComponentName    string    `json:"componentName"`
	Source           string    `json:"source"`
	CauseMessage     *string   `json:"causeMessage"`
	EventID          uuid.UUID `json:"eventId"`
	FullStackTrace   string    `json:"fullStackTrace"`
}

type streamErrorHashResponse struct {
	Hash                  string  `json:"hash"`
	ExceptionClassName    string  `json:"exceptionClassName"`
	CauseClassName        *string `json:"causeClassName"`
	OriginatingClassName  string  `json:"originatingClassName"`
	OriginatingMethod     string  `json:"originatingMethod"`
	OriginatingLineNumber int     `json:"originatingLineNumber"`
}

type streamErrorResponse struct {
	Details streamErrorDetailsResponse `json:"streamErrorDetails"`
	Hash    streamErrorHashResponse    `json:"streamErrorHash"`
}

// The lowercase "classname" keys are part of the published contract.
type activeErrorResponse struct {
	Hash                 string  `json:"hash"`
	ExceptionClassname   string  `json:"exceptionClassname"`
	CauseClassname       *string `json:"causeClassname"`
	OriginatingClassname string  `json:"originatingClassname"`
	OriginatingMethod    string  `json:"originatingMethod"`
	AffectedStreamsCount int     `json:"affectedStreamsCount"`
	AffectedEventsCount  int     `json:"affectedEventsCount"`
}

type commandAcceptedResponse struct {
	CommandID uuid.UUID `json:"commandId"`
}

type errorResponse struct {
	ErrorMessage string `json:"errorMessage"`
}

// GetStreams answers GET /streams with exactly one of errorHash, streamId
// and hasError.
func (h *Handlers) GetStreams(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	criteria, err := query.ParseStreamCriteria(params.Get("errorHash"), params.Get("streamId"), params.Get("hasError"))
	if err != nil {
		h.writeQueryError(w, err)
		return
	}

	statuses, err := h.queries.FindStreams(r.Context(), criteria)
	if err != nil {
		h.writeInternalError(w, "failed to query streams", err)
		return
	}

	out := make([]streamResponse, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, streamResponse{
			StreamID:          status.StreamID,
			Position:          status.Position,
			LastKnownPosition: status.LastKnownPosition,
			Source:            status.Source,
			Component:         string(status.Component),
			UpToDate:          status.UpToDate,
			ErrorID:           status.ErrorID,
			ErrorPosition:     status.ErrorPosition,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetStreamErrors answers GET /stream-errors with exactly one of streamId
// and errorId.
func (h *Handlers) GetStreamErrors(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	criteria, err := query.ParseErrorCriteria(params.Get("streamId"), params.Get("errorId"))
	if err != nil {
		h.writeQueryError(w, err)
		return
	}

	results, err := h.queries.FindErrors(r.Context(), criteria)
	if err != nil {
		h.writeInternalError(w, "failed to query stream errors", err)
		return
	}

	out := make([]streamErrorResponse, 0, len(results))
	for _, result := range results {
		out = append(out, streamErrorResponse{
			Details: streamErrorDetailsResponse{
				ID:               result.Details.ID,
				Hash:             result.Details.Hash,
				ExceptionMessage: result.Details.ExceptionMessage,
				EventName:        result.Details.EventName,
				StreamID:         result.Details.StreamID,
				PositionInStream: result.Details.PositionInStream,
				ComponentName:    string(result.Details.ComponentName),
				Source:           result.Details.Source,
				CauseMessage:     result.Details.CauseMessage,
				EventID:          result.Details.EventID,
				FullStackTrace:   result.Details.FullStackTrace,
			},
			Hash: streamErrorHashResponse{
				Hash:                  result.Class.Hash,
				ExceptionClassName:    result.Class.ExceptionClassName,
				CauseClassName:        result.Class.CauseClassName,
				OriginatingClassName:  result.Class.OriginatingClassName,
				OriginatingMethod:     result.Class.OriginatingMethod,
				OriginatingLineNumber: result.Class.OriginatingLineNumber,
			},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetActiveErrors answers GET /active-errors.
func (h *Handlers) GetActiveErrors(w http.ResponseWriter, r *http.Request) {
	active, err := h.queries.ActiveErrors(r.Context())
	if err != nil {
		h.writeInternalError(w, "failed to query active errors", err)
		return
	}

	out := make([]activeErrorResponse, 0, len(active))
	for _, summary := range active {
		out = append(out, activeErrorResponse{
			Hash:                 summary.Hash,
			ExceptionClassname:   summary.ExceptionClassName,
			CauseClassname:       summary.CauseClassName,
			OriginatingClassname: summary.OriginatingClassName,
			OriginatingMethod:    summary.OriginatingMethod,
			AffectedStreamsCount: summary.AffectedStreamsCount,
			AffectedEventsCount:  summary.AffectedEventsCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// PostValidatePublishedEvents dispatches a validation run and answers 202
// with the command id to poll.
func (h *Handlers) PostValidatePublishedEvents(w http.ResponseWriter, r *http.Request) {
	commandID, err := h.runner.Dispatch(r.Context())
	if errors.Is(err, validation.ErrCommandInProgress) {
		writeJSON(w, http.StatusConflict, errorResponse{ErrorMessage: err.Error()})
		return
	}
	if err != nil {
		h.writeInternalError(w, "failed to dispatch command", err)
		return
	}
	writeJSON(w, http.StatusAccepted, commandAcceptedResponse{CommandID: commandID})
}

// GetCommandStatus answers GET /system/commands/{commandId}.
func (h *Handlers) GetCommandStatus(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["commandId"]
	commandID, err := uuid.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{ErrorMessage: "commandId is not a valid UUID: '" + raw + "'"})
		return
	}

	status, err := h.runner.Status(r.Context(), commandID)
	if err != nil {
		h.writeInternalError(w, "failed to get command status", err)
		return
	}
	if status == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{ErrorMessage: "no command found with id '" + raw + "'"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handlers) writeQueryError(w http.ResponseWriter, err error) {
	var invalid *query.InvalidQueryError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusBadRequest, errorResponse{ErrorMessage: invalid.Message})
		return
	}
	h.writeInternalError(w, "failed to parse query", err)
}

func (h *Handlers) writeInternalError(w http.ResponseWriter, msg string, err error) {
	h.log.Error(msg, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{ErrorMessage: "internal server error"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
