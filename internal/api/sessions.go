package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/analystchat/analystchat/internal/analyst"
	"github.com/analystchat/analystchat/internal/archive"
	"github.com/analystchat/analystchat/internal/chat"
	"github.com/analystchat/analystchat/internal/conversation"
	"github.com/analystchat/analystchat/internal/session"
)

const maxRequestBody = 64 << 10

type askRequest struct {
	Question string `json:"question"`
}

type suggestionRequest struct {
	Key string `json:"key"`
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	state, err := deps.Chat.NewSession(r.Context())
	if err != nil {
		writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": state.ID,
		"created_at": state.CreatedAt,
	})
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	transcript, err := deps.Chat.Transcript(r.Context(), r.PathValue("id"))
	if err != nil {
		writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transcript)
}

func handleDeleteSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := deps.Chat.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		writeChatError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var request askRequest
	if !decodeBody(w, r, &request) {
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	turn, err := deps.Chat.Ask(r.Context(), r.PathValue("id"), request.Question)
	if err != nil {
		writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func handleSuggestion(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var request suggestionRequest
	if !decodeBody(w, r, &request) {
		return
	}
	turn, err := deps.Chat.SelectSuggestion(r.Context(), r.PathValue("id"), request.Key)
	if err != nil {
		writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func handleReset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := deps.Chat.Reset(r.Context(), sessionID); err != nil {
		writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "status": "reset"})
}

func handleRunSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MESSAGE_INDEX", "message index must be an integer", false, map[string]any{"index": r.PathValue("index")})
		return
	}
	elements, err := deps.Chat.RunSQL(r.Context(), r.PathValue("id"), index)
	if err != nil {
		writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message_index": index, "elements": elements})
}

func handleArchive(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	result, err := deps.Chat.Archive(r.Context(), r.PathValue("id"))
	if err != nil {
		writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// decodeBody reads a small JSON body. An empty body decodes as the zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

func writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var remoteErr *analyst.RemoteRequestError
	var decodeErr *analyst.DecodeError
	var timeoutErr interface{ Timeout() bool }
	switch {
	case errors.As(err, &remoteErr):
		writeError(ctx, w, http.StatusBadGateway, "ANALYST_REQUEST_FAILED", "analyst service rejected the request", remoteErr.StatusCode >= 500, map[string]any{
			"upstream_status": remoteErr.StatusCode,
			"upstream_body":   remoteErr.RawBody,
		})
	case errors.As(err, &decodeErr):
		writeError(ctx, w, http.StatusBadGateway, "ANALYST_DECODE_FAILED", "analyst service returned an unreadable response", false, map[string]any{
			"details":       decodeErr.Err.Error(),
			"upstream_body": decodeErr.RawBody,
		})
	case errors.Is(err, session.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", false, map[string]any{"session_id": r.PathValue("id")})
	case errors.Is(err, session.ErrConflict):
		writeError(ctx, w, http.StatusConflict, "SESSION_CONFLICT", err.Error(), true, map[string]any{"session_id": r.PathValue("id")})
	case errors.Is(err, conversation.ErrUnknownSuggestion):
		writeError(ctx, w, http.StatusNotFound, "SUGGESTION_NOT_FOUND", err.Error(), false, nil)
	case errors.Is(err, chat.ErrMessageNotFound):
		writeError(ctx, w, http.StatusNotFound, "MESSAGE_NOT_FOUND", err.Error(), false, nil)
	case errors.Is(err, chat.ErrArchiveDisabled):
		writeError(ctx, w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", err.Error(), false, nil)
	case errors.Is(err, archive.ErrEmptyTranscript):
		writeError(ctx, w, http.StatusConflict, "TRANSCRIPT_EMPTY", err.Error(), false, map[string]any{"session_id": r.PathValue("id")})
	case errors.Is(err, chat.ErrQuestionRequired):
		writeError(ctx, w, http.StatusBadRequest, "QUESTION_REQUIRED", err.Error(), false, nil)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &timeoutErr) && timeoutErr.Timeout():
		writeError(ctx, w, http.StatusGatewayTimeout, "ANALYST_TIMEOUT", err.Error(), true, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), false, nil)
	}
}
