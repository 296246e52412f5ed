// Package main provides the worker Lambda that runs reviews queued by the
// API Lambda with InvocationType=Event.
//
// Event format:
//
//	{"ticketId": "T-123", "requestId": "uuid", "userContext": {...}}
package main

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ticket-decision-engine/internal/api"
	"github.com/fpang/ticket-decision-engine/internal/config"
	"github.com/fpang/ticket-decision-engine/internal/lambdaboot"
	"github.com/fpang/ticket-decision-engine/internal/logging"
	"github.com/fpang/ticket-decision-engine/internal/review"
)

var (
	engine    *review.Engine
	coldStart = true
)

func init() {
	initStart := time.Now()
	logging.Init()

	var cfg *config.Config
	engine, cfg = lambdaboot.BuildEngine(context.Background(), lambdaboot.InitAWS())

	lambdaboot.StartupLog("decision-worker", initStart, cfg).
		CommitHash(commitHash).
		BuildTime(buildTime).
		Log()
}

func handler(ctx context.Context, ev api.WorkerEvent) (review.Result, error) {
	logger := log.With().Str("ticketId", ev.TicketID).Str("requestId", ev.RequestID).Bool("coldStart", coldStart).Logger()
	coldStart = false

	if ev.TicketID == "" {
		logger.Error().Msg("Worker event without ticketId")
		return review.Result{}, errors.New("ticketId is required")
	}
	logger.Info().Msg("Worker processing ticket")
	res := engine.ProcessTicket(ctx, ev.TicketID, ev.User)
	logger.Info().
		Str("decision", string(res.Decision.Decision)).
		Bool("persisted", res.Persisted).
		Bool("notificationSent", res.NotificationSent).
		Msg("Worker finished ticket")
	return res, nil
}

func main() {
	lambda.Start(handler)
}
