package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-lockbridge/internal/bridges/smartlock"
	"github.com/nerrad567/gray-logic-lockbridge/internal/device"
)

// defaultHistoryLimit applies when the request has no limit parameter.
const defaultHistoryLimit = 50

type listLocksResponse struct {
	Locks []smartlock.LockStatus `json:"locks"`
	Count int                    `json:"count"`
}

type commandResponse struct {
	CommandID string               `json:"command_id"`
	Command   string               `json:"command"`
	Lock      smartlock.LockStatus `json:"lock"`
}

type historyResponse struct {
	DeviceID string                     `json:"device_id"`
	Entries  []device.StateHistoryEntry `json:"entries"`
	Count    int                        `json:"count"`
}

// handleListLocks returns every managed lock.
func (s *Server) handleListLocks(w http.ResponseWriter, _ *http.Request) {
	locks := s.locks.List()
	writeJSON(w, http.StatusOK, listLocksResponse{Locks: locks, Count: len(locks)})
}

// handleGetLock returns a single lock by device ID.
func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.locks.Get(id)
	if err != nil {
		s.writeLockError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleLockCommand runs lock, unlock or refresh and returns the new state.
func (s *Server) handleLockCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	command := chi.URLParam(r, "command")
	commandID := uuid.NewString()

	s.logger.Info("lock command",
		"device_id", id,
		"command", command,
		"command_id", commandID,
		"subject", subjectFrom(r.Context()),
		"request_id", r.Context().Value(ctxKeyRequestID),
	)

	status, err := s.locks.Execute(r.Context(), id, command)
	if err != nil {
		s.writeLockError(w, r, id, err)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{
		CommandID: commandID,
		Command:   command,
		Lock:      status,
	})
}

// handleLockHistory returns recorded state changes, newest first.
func (s *Server) handleLockHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.locks.History(r.Context(), id, limit)
	if errors.Is(err, smartlock.ErrUnknownLock) {
		writeNotFound(w, "lock not found: "+id)
		return
	}
	if err != nil {
		s.logger.Error("reading lock history failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	if entries == nil {
		entries = []device.StateHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, historyResponse{DeviceID: id, Entries: entries, Count: len(entries)})
}

// classifyLockError maps a bridge error to an HTTP status and error code.
func classifyLockError(err error) (int, string) {
	switch {
	case errors.Is(err, smartlock.ErrUnknownLock):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, smartlock.ErrInvalidCommand):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, smartlock.ErrStopped):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusBadGateway, ErrCodeLockFailed
	}
}

// writeLockError maps bridge errors onto HTTP responses.
func (s *Server) writeLockError(w http.ResponseWriter, r *http.Request, id string, err error) {
	status, code := classifyLockError(err)
	switch status {
	case http.StatusNotFound:
		writeNotFound(w, "lock not found: "+id)
	case http.StatusServiceUnavailable:
		writeError(w, status, code, "lock bridge is stopping")
	case http.StatusBadGateway:
		s.logger.Error("lock request failed",
			"device_id", id,
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeError(w, status, code, err.Error())
	default:
		writeError(w, status, code, err.Error())
	}
}
