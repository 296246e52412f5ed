// Package lambdaboot provides shared Lambda cold-start bootstrap logic.
//
// Every entrypoint needs some subset of: AWS config, S3, DynamoDB, SSM,
// SNS, EventBridge, the vision model and startup logging. This package
// extracts the common init patterns so each main is a short composition of
// helpers. Helpers that cannot recover call log.Fatal, which is the
// intended behaviour inside init().
package lambdaboot

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ticket-decision-engine/internal/analysis"
	"github.com/fpang/ticket-decision-engine/internal/config"
	"github.com/fpang/ticket-decision-engine/internal/logging"
	"github.com/fpang/ticket-decision-engine/internal/notify"
	"github.com/fpang/ticket-decision-engine/internal/review"
	"github.com/fpang/ticket-decision-engine/internal/s3util"
	"github.com/fpang/ticket-decision-engine/internal/ticket"
	"github.com/fpang/ticket-decision-engine/internal/vision"
)

// EnvGeminiAPIKey short-circuits the SSM lookup when set.
const EnvGeminiAPIKey = "GEMINI_API_KEY"

// AWSClients holds the core AWS SDK config and the SSM client.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// S3Clients holds the S3 client and its presigner.
type S3Clients struct {
	Client    *s3.Client
	Presigner *s3.PresignClient
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitS3 creates an S3 client and presigner.
func InitS3(cfg aws.Config) S3Clients {
	client := s3.NewFromConfig(cfg)
	return S3Clients{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
	}
}

// InitTicketStore creates the DynamoDB ticket store. Fatals if table is empty.
func InitTicketStore(cfg aws.Config, table string) *ticket.DynamoStore {
	if table == "" {
		log.Fatal().Str("envVar", config.KeyTicketsTable).Msg("DynamoDB table environment variable is required")
	}
	return ticket.NewDynamoStore(dynamodb.NewFromConfig(cfg), table)
}

// InitNotifier creates the SNS publisher. Returns nil (with a warning) if
// no topic is configured.
func InitNotifier(cfg aws.Config, topicARN string) *notify.Publisher {
	if topicARN == "" {
		log.Warn().Str("envVar", config.KeySNSTopicARN).Msg("SNS topic not set, notifications disabled")
		return nil
	}
	return notify.NewPublisher(sns.NewFromConfig(cfg), topicARN)
}

// InitEmitter creates the EventBridge emitter. Returns nil if no bus is configured.
func InitEmitter(cfg aws.Config, bus string) *notify.Emitter {
	if bus == "" {
		log.Debug().Msg("Event bus not set, decision events disabled")
		return nil
	}
	return notify.NewEmitter(eventbridge.NewFromConfig(cfg), bus)
}

// InitLambda creates the Lambda client used for async dispatch. Returns nil
// if no worker is configured.
func InitLambda(cfg aws.Config, workerARN string) *lambdasvc.Client {
	if workerARN == "" {
		log.Debug().Msg("Worker Lambda not set, async mode disabled")
		return nil
	}
	return lambdasvc.NewFromConfig(cfg)
}

// GetParameterAPI is the subset of the SSM client used here.
type GetParameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadGeminiKey returns the Gemini API key from GEMINI_API_KEY or, when
// unset, from the SSM SecureString parameter.
func LoadGeminiKey(ctx context.Context, client GetParameterAPI, param string) (string, error) {
	if key := os.Getenv(EnvGeminiAPIKey); key != "" {
		return key, nil
	}
	start := time.Now()
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm GetParameter %s: %w", param, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("ssm GetParameter %s: empty value", param)
	}
	log.Debug().Str("param", param).Dur("elapsed", time.Since(start)).Msg("Gemini API key loaded from SSM")
	return aws.ToString(out.Parameter.Value), nil
}

// InitVisionModel builds the configured vision model. Fatals when the
// Gemini key cannot be loaded.
func InitVisionModel(ctx context.Context, clients AWSClients, cfg *config.Config) vision.Model {
	inf := vision.InferenceFromConfig(cfg)
	if cfg.VisionProvider == config.ProviderGemini {
		key, err := LoadGeminiKey(ctx, clients.SSM, cfg.APIKeyParam)
		if err != nil {
			log.Fatal().Err(err).Str("param", cfg.APIKeyParam).Msg("Failed to load Gemini API key")
		}
		client, err := vision.NewGeminiClient(ctx, key)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Gemini client")
		}
		return vision.NewGemini(client.Models, cfg.GeminiModel, inf)
	}
	return vision.NewNova(bedrockruntime.NewFromConfig(clients.Config), cfg.BedrockModel, inf)
}

// Components are the collaborators wired at cold start. Optional adapters
// are nil when not configured.
type Components struct {
	Tickets  *ticket.DynamoStore
	Policies *s3util.PolicyStore
	Assets   *s3util.Presigner
	Tagger   *s3util.AssetTagger
	Model    vision.Model
	Vision   *vision.Service
	Notifier *notify.Publisher
	Events   *notify.Emitter
}

// InitComponents builds every adapter the review engine needs. Fatals when
// a required bucket or table is missing.
func InitComponents(ctx context.Context, clients AWSClients, cfg *config.Config) Components {
	if cfg.PolicyBucket == "" {
		log.Fatal().Str("envVar", config.KeyPolicyBucket).Msg("Policy bucket environment variable is required")
	}
	uploads := cfg.UploadsBucket
	if uploads == "" {
		log.Warn().Str("envVar", config.KeyUploadsBucket).Msg("Uploads bucket not set, using policy bucket for assets")
		uploads = cfg.PolicyBucket
	}

	s3c := InitS3(clients.Config)
	model := InitVisionModel(ctx, clients, cfg)
	return Components{
		Tickets:  InitTicketStore(clients.Config, cfg.TicketsTable),
		Policies: s3util.NewPolicyStore(s3c.Client, cfg.PolicyBucket),
		Assets:   s3util.NewPresigner(s3c.Presigner, uploads, cfg.PresignTTL),
		Tagger:   s3util.NewAssetTagger(s3c.Client, uploads),
		Model:    model,
		Vision: vision.NewService(model, vision.NewFetcher(cfg.HTTPTimeout), analysis.NewNormalizer(cfg.Policy), vision.Options{
			Concurrency:  cfg.VisionConcurrency,
			ModelTimeout: cfg.ModelTimeout,
			BrandColor:   cfg.Policy.FallbackColor,
		}),
		Notifier: InitNotifier(clients.Config, cfg.SNSTopicARN),
		Events:   InitEmitter(clients.Config, cfg.EventBusName),
	}
}

// Deps converts the components into engine dependencies. Nil optional
// adapters stay nil interfaces so the engine skips them.
func (c Components) Deps(cfg *config.Config) review.Deps {
	d := review.Deps{
		Tickets:  c.Tickets,
		Policies: c.Policies,
		Assets:   c.Assets,
		Vision:   c.Vision,
		Tagger:   c.Tagger,
		Config:   cfg,
	}
	if c.Notifier != nil {
		d.Notifier = c.Notifier
	}
	if c.Events != nil {
		d.Events = c.Events
	}
	return d
}

// BuildEngine loads configuration and wires a review engine. Fatals on
// invalid configuration.
func BuildEngine(ctx context.Context, clients AWSClients) (*review.Engine, *config.Config) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	return review.New(InitComponents(ctx, clients, cfg).Deps(cfg)), cfg
}

// StartupLog returns a startup logger pre-filled with the resources cfg names.
func StartupLog(name string, initStart time.Time, cfg *config.Config) *logging.StartupLogger {
	sl := logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
	if cfg == nil {
		return sl
	}
	sl.DynamoTable("tickets", cfg.TicketsTable).
		S3Bucket("policy", cfg.PolicyBucket).
		Model(cfg.VisionProvider, cfg.ModelID()).
		Config("policyKey", cfg.PolicyKey).
		Config("visionConcurrency", fmt.Sprint(cfg.VisionConcurrency)).
		Feature("notifications", cfg.SNSTopicARN != "").
		Feature("decisionEvents", cfg.EventBusName != "").
		Feature("asyncMode", cfg.WorkerLambdaARN != "")
	if cfg.UploadsBucket != "" {
		sl.S3Bucket("uploads", cfg.UploadsBucket)
	}
	if cfg.SNSTopicARN != "" {
		sl.SNSTopic("decisions", cfg.SNSTopicARN)
	}
	if cfg.EventBusName != "" {
		sl.EventBus("decisions", cfg.EventBusName)
	}
	if cfg.WorkerLambdaARN != "" {
		sl.LambdaFunc("worker", cfg.WorkerLambdaARN)
	}
	if cfg.VisionProvider == config.ProviderGemini {
		sl.SSMParam("geminiApiKey", cfg.APIKeyParam)
	}
	return sl
}
