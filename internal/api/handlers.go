package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ticket-decision-engine/internal/review"
)

// WorkerEvent is the payload handed to the worker Lambda.
type WorkerEvent struct {
	TicketID  string              `json:"ticketId"`
	RequestID string              `json:"requestId,omitempty"`
	User      *review.UserContext `json:"userContext,omitempty"`
}

// AcceptedResponse is returned for async requests.
type AcceptedResponse struct {
	TicketID  string `json:"ticket_id"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).String(),
		"asyncMode": s.asyncEnabled(),
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	user := UserFromClaims(s.claims(r))
	ticketID := strings.TrimSpace(chi.URLParam(r, "id"))
	if ticketID == "" {
		httpError(w, http.StatusBadRequest, "Missing ticket ID")
		return
	}

	logger := log.With().Str("ticketId", ticketID).Str("requestId", RequestID(r.Context())).Logger()
	if user != nil {
		logger.Info().Str("user", user.Email).Str("userId", user.UserID).Msg("Decision requested")
	} else {
		logger.Warn().Msg("Decision requested without user context")
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if !s.asyncEnabled() {
			httpError(w, http.StatusBadRequest, "async mode is not configured")
			return
		}
		ev := WorkerEvent{TicketID: ticketID, RequestID: RequestID(r.Context()), User: user}
		if err := s.invokeWorkerAsync(r.Context(), ev); err != nil {
			httpError(w, http.StatusBadGateway, "failed to queue ticket", err.Error())
			return
		}
		respondJSON(w, http.StatusAccepted, AcceptedResponse{TicketID: ticketID, RequestID: ev.RequestID, Status: "accepted"})
		return
	}

	res := s.engine.ProcessTicket(r.Context(), ticketID, user)
	respondJSON(w, http.StatusOK, res)
}

// invokeWorkerAsync sends ev to the worker Lambda with InvocationType=Event
// so the API returns without waiting for the review.
func (s *Server) invokeWorkerAsync(ctx context.Context, ev WorkerEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal worker event: %w", err)
	}
	_, err = s.invoker.Invoke(ctx, &lambdasvc.InvokeInput{
		FunctionName:   aws.String(s.workerARN),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("lambda Invoke %s: %w", s.workerARN, err)
	}
	log.Debug().Str("ticketId", ev.TicketID).Int("payloadSize", len(payload)).Msg("Worker Lambda invoked asynchronously")
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// httpError sends a JSON error response. internalDetails are logged but
// never sent to the client.
func httpError(w http.ResponseWriter, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		log.Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, map[string]string{"error": clientMsg})
}
