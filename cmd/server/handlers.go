package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/recalc/calculator"
	"github.com/liamcoop/recalc/calculators"
	"github.com/liamcoop/recalc/export"
	"github.com/liamcoop/recalc/fields"
	"github.com/liamcoop/recalc/internal/logger"
	"github.com/liamcoop/recalc/recalc"
	"github.com/liamcoop/recalc/records"
	"github.com/liamcoop/recalc/sessions"
)

const maxBodySize = 1 << 20

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storage := "memory"
	if s.db != nil {
		storage = "postgres"
		if err := s.db.PingContext(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"storage":     storage,
		"calculators": len(s.calculators.List()),
		"sessions":    s.sessions.Len(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]any{}
	for k, v := range logger.Counters() {
		metrics[k] = v
	}
	metrics["open_sessions"] = s.sessions.Len()
	respondJSON(w, http.StatusOK, metrics)
}

// Calculator handlers

func (s *Server) handleListCalculators(w http.ResponseWriter, r *http.Request) {
	list := s.calculators.List()
	resp := CalculatorsListResponse{Calculators: make([]CalculatorResponse, 0, len(list))}
	for _, e := range list {
		resp.Calculators = append(resp.Calculators, toCalculatorResponse(e, false))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateCalculator(w http.ResponseWriter, r *http.Request) {
	def, err := decodeDefinition(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid calculator definition", err)
		return
	}

	e, err := s.calculators.Create(r.Context(), def)
	if err != nil {
		respondError(w, statusFor(err), "failed to create calculator", err)
		return
	}
	respondJSON(w, http.StatusCreated, toCalculatorResponse(e, true))
}

func (s *Server) handleGetCalculator(w http.ResponseWriter, r *http.Request) {
	e, err := s.calculators.Get(chi.URLParam(r, "calculatorId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "calculator not found", err)
		return
	}
	respondJSON(w, http.StatusOK, toCalculatorResponse(e, true))
}

func (s *Server) handleUpdateCalculator(w http.ResponseWriter, r *http.Request) {
	current, err := s.calculators.Get(chi.URLParam(r, "calculatorId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "calculator not found", err)
		return
	}

	def, err := decodeDefinition(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid calculator definition", err)
		return
	}

	e, err := s.calculators.Update(r.Context(), current.Stored.ID, def)
	if err != nil {
		respondError(w, statusFor(err), "failed to update calculator", err)
		return
	}
	respondJSON(w, http.StatusOK, toCalculatorResponse(e, true))
}

func (s *Server) handleDeleteCalculator(w http.ResponseWriter, r *http.Request) {
	current, err := s.calculators.Get(chi.URLParam(r, "calculatorId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "calculator not found", err)
		return
	}

	if err := s.calculators.Delete(r.Context(), current.Stored.ID); err != nil {
		respondError(w, statusFor(err), "failed to delete calculator", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handlers

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list := s.sessions.List()
	infos := make([]sessions.Info, 0, len(list))
	for _, sess := range list {
		infos = append(infos, sess.Info(false))
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": infos})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Calculator == "" {
		req.Calculator = calculator.DefaultName
	}

	e, err := s.calculators.Get(req.Calculator)
	if err != nil {
		respondError(w, http.StatusNotFound, "calculator not found", err)
		return
	}

	sess, err := s.sessions.Create(e.Stored.ID, e.Calculator, req.Values)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to create session", err)
		return
	}

	logger.Info("Session created", "session", sess.ID(), "calculator", e.Stored.Name)
	respondJSON(w, http.StatusCreated, sess.Info(true))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sess.Info(true))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	if err := s.sessions.Delete(id); err != nil {
		respondError(w, http.StatusNotFound, "session not found", err)
		return
	}
	s.hub.Disconnect(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetField(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req SetFieldRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	res, err := sess.OnFieldChanged(r.Context(), chi.URLParam(r, "field"), req.Value)
	if err != nil {
		respondError(w, statusFor(err), "failed to change field", err)
		return
	}
	respondJSON(w, http.StatusOK, passResponse(sess, res))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req RunRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var res *recalc.Result
	var err error
	switch {
	case req.Group == "" && req.Required != nil:
		res, err = sess.RunAll(r.Context(), req.Required)
	case req.Group == "":
		res, err = sess.RunGroup(r.Context(), sess.Engine().DefaultGroup())
	default:
		res, err = sess.RunGroup(r.Context(), req.Group)
	}

	var missing *recalc.MissingFieldsError
	if errors.As(err, &missing) {
		respondJSON(w, http.StatusUnprocessableEntity, MissingFieldsResponse{
			Error:   missing.Error(),
			Missing: missing.Labels,
			Fields:  missing.Fields,
		})
		return
	}
	if err != nil {
		respondError(w, statusFor(err), "recalculation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, passResponse(sess, res))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	def := sess.Calculator.Definition
	f, err := export.Workbook(def, sess.Store(), sess.LastResult())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build workbook", err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.xlsx"`, def.Name, sess.ID()))
	if err := f.Write(w); err != nil {
		logger.Error("Failed to write workbook", "session", sess.ID(), "error", err)
	}
}

func (s *Server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := s.hub.Serve(w, r, sess.ID()); err != nil {
		// the upgrader has already answered the client
		logger.Debug("Websocket upgrade failed", "session", sess.ID(), "error", err)
	}
}

// Record handlers

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.Lookup(r.Context(), chi.URLParam(r, "entityType"), chi.URLParam(r, "entityId"))
	if err != nil {
		respondError(w, statusFor(err), "record lookup failed", err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePutRecord(w http.ResponseWriter, r *http.Request) {
	var req PutRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	rec := &records.Record{
		EntityType: chi.URLParam(r, "entityType"),
		ID:         chi.URLParam(r, "entityId"),
		Name:       req.Name,
		Address:    req.Address,
		Data:       req.Data,
	}
	if err := s.records.Put(r.Context(), rec); err != nil {
		respondError(w, statusFor(err), "failed to store record", err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	err := s.records.Delete(r.Context(), chi.URLParam(r, "entityType"), chi.URLParam(r, "entityId"))
	if err != nil {
		respondError(w, statusFor(err), "failed to delete record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helper functions

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found", err)
		return nil, false
	}
	return sess, true
}

// passResponse gathers the current values of every field the pass and its
// cascades refreshed
func passResponse(sess *sessions.Session, res *recalc.Result) PassResponse {
	values := make(map[string]any)
	for _, f := range res.AllRefreshed() {
		v, _ := sess.Store().Get(f)
		values[f] = v
	}
	return PassResponse{Result: res, Values: values, State: sess.State().String()}
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
}

// decodeDefinition reads a calculator definition as JSON, or as YAML when
// the content type says so
func decodeDefinition(r *http.Request) (*calculator.Definition, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		return calculator.ParseYAML(data)
	}
	return calculator.ParseJSON(data)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, calculators.ErrNotFound),
		errors.Is(err, sessions.ErrNotFound),
		errors.Is(err, records.ErrNotFound),
		errors.Is(err, fields.ErrUnknownField),
		errors.Is(err, recalc.ErrUnknownGroup):
		return http.StatusNotFound
	case errors.Is(err, calculators.ErrExists):
		return http.StatusConflict
	case errors.Is(err, calculator.ErrInvalidDefinition),
		errors.Is(err, fields.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
