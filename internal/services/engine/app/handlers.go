package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/emberloom/emberloom/internal/engine/combat"
	"github.com/emberloom/emberloom/internal/engine/scene"
	"github.com/emberloom/emberloom/internal/engine/turn"
	"github.com/emberloom/emberloom/internal/errors"
	"github.com/emberloom/emberloom/internal/platform/id"
	"github.com/emberloom/emberloom/internal/storage"
	"google.golang.org/grpc/codes"
)

// sceneSeed is the scene a brand-new session starts from.
func sceneSeed() scene.State {
	return scene.State{}
}

type turnRequest struct {
	CampaignID string `json:"campaign_id"`
	Input      string `json:"input"`
}

type turnResponse struct {
	TurnNumber      int    `json:"turn_number"`
	Response        string `json:"response"`
	Intent          string `json:"intent"`
	Status          string `json:"status"`
	RouterFellBack  bool   `json:"router_fell_back,omitempty"`
	PayloadRejected bool   `json:"payload_rejected,omitempty"`
	PlanState       string `json:"plan_state"`
}

type sessionResponse struct {
	CampaignID string      `json:"campaign_id"`
	SessionID  string      `json:"session_id"`
	Scene      scene.State `json:"scene"`
	TurnCount  int         `json:"turn_count"`
	PlanState  string      `json:"plan_state"`
}

// Handler returns the HTTP surface for the engine service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /v1/sessions/{id}/turns", s.handleTurn)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleSession)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	CampaignID string `json:"campaign_id"`
}

// handleCreateSession mints a server-assigned session ID and registers a
// fresh session for it.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.CodeTurnEmptyInput, "decode session request", err))
		return
	}

	sessionID, err := id.NewID()
	if err != nil {
		writeError(w, errors.Wrap(errors.CodeUnknown, "generate session id", err))
		return
	}

	s.mu.Lock()
	s.sessions[sessionID] = turn.NewSession(req.CampaignID, sessionID, sceneSeed())
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]string{
		"campaign_id": req.CampaignID,
		"session_id":  sessionID,
	})
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("id"))
	if sessionID == "" {
		writeError(w, errors.New(errors.CodeTurnEmptyInput, "session id is required"))
		return
	}

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.CodeTurnEmptyInput, "decode turn request", err))
		return
	}

	session, err := s.session(r.Context(), req.CampaignID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.engine.Run(r.Context(), session, req.Input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, turnResponse{
		TurnNumber:      result.Record.TurnNumber,
		Response:        result.Record.Response,
		Intent:          string(result.Intent),
		Status:          string(result.Status),
		RouterFellBack:  result.RouterFellBack,
		PayloadRejected: result.PayloadRejected,
		PlanState:       planState(session.Plan),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("id"))
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		loaded, err := s.store.LoadSession(r.Context(), sessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		session = loaded
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		CampaignID: session.CampaignID,
		SessionID:  session.ID,
		Scene:      session.Scene,
		TurnCount:  len(session.Turns),
		PlanState:  planState(session.Plan),
	})
}

func planState(plan *combat.Plan) string {
	if plan == nil {
		return string(combat.StateNone)
	}
	return string(plan.State)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	if stderrors.Is(err, storage.ErrNotFound) {
		err = errors.Wrap(errors.CodeNotFound, "session not found", err)
	}
	code := errors.GetCode(err)
	writeJSON(w, httpStatus(code.GRPCCode()), map[string]string{
		"code":  string(code),
		"error": err.Error(),
	})
}

// httpStatus maps a domain error's gRPC code onto the equivalent HTTP status.
func httpStatus(code codes.Code) int {
	switch code {
	case codes.InvalidArgument, codes.FailedPrecondition:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Canceled, codes.DeadlineExceeded:
		return http.StatusRequestTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
