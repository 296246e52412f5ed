// Package main provides the API Gateway Lambda entry point for the
// decision engine.
//
// Endpoints:
//
//	GET  /health                health check
//	POST /tickets/{id}/approve  decide a ticket; ?async=true queues it on the
//	                            worker Lambda and returns 202
package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ticket-decision-engine/internal/api"
	"github.com/fpang/ticket-decision-engine/internal/config"
	"github.com/fpang/ticket-decision-engine/internal/lambdaboot"
	"github.com/fpang/ticket-decision-engine/internal/logging"
)

// EnvCORSOrigins lists allowed browser origins, comma separated.
const EnvCORSOrigins = "CORS_ALLOWED_ORIGINS"

var adapter *httpadapter.HandlerAdapterV2

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	engine, cfg := lambdaboot.BuildEngine(context.Background(), clients)

	opts := []api.Option{}
	if origins := config.SplitList(os.Getenv(EnvCORSOrigins)); len(origins) > 0 {
		opts = append(opts, api.WithCORSOrigins(origins))
	}
	if inv := lambdaboot.InitLambda(clients.Config, cfg.WorkerLambdaARN); inv != nil {
		opts = append(opts, api.WithWorker(inv, cfg.WorkerLambdaARN))
	}
	adapter = httpadapter.NewV2(api.NewServer(engine, opts...).Routes())

	lambdaboot.StartupLog("decision-lambda", initStart, cfg).
		CommitHash(commitHash).
		BuildTime(buildTime).
		Log()
}

func main() {
	log.Info().Msg("Decision Lambda starting")
	lambda.Start(adapter.ProxyWithContext)
}
