package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Resource kinds, in the order they appear in the startup event.
const (
	kindS3        = "s3Buckets"
	kindDynamo    = "dynamoTables"
	kindSSM       = "ssmParams"
	kindSNS       = "snsTopics"
	kindEventBus  = "eventBuses"
	kindModel     = "models"
	kindLambdaFns = "lambdaFunctions"
)

var resourceKinds = []string{kindS3, kindDynamo, kindSSM, kindSNS, kindEventBus, kindModel, kindLambdaFns}

// StartupLogger collects Lambda identity, wired resources and feature flags,
// then emits one structured event describing the cold-start state.
type StartupLogger struct {
	name         string
	commitHash   string
	buildTime    string
	initDuration time.Duration

	resources map[string]map[string]string
	features  map[string]bool
	config    map[string]string
}

// NewStartupLogger creates a StartupLogger for the given Lambda name
// (e.g. "decision-lambda", "decision-worker").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:      name,
		resources: make(map[string]map[string]string),
		features:  make(map[string]bool),
		config:    make(map[string]string),
	}
}

func (s *StartupLogger) add(kind, label, value string) *StartupLogger {
	m, ok := s.resources[kind]
	if !ok {
		m = make(map[string]string)
		s.resources[kind] = m
	}
	m[label] = value
	return s
}

// CommitHash sets the git commit hash baked into the binary at build time.
func (s *StartupLogger) CommitHash(hash string) *StartupLogger {
	s.commitHash = hash
	return s
}

// BuildTime sets the UTC build timestamp.
func (s *StartupLogger) BuildTime(t string) *StartupLogger {
	s.buildTime = t
	return s
}

// S3Bucket registers an S3 bucket.
func (s *StartupLogger) S3Bucket(label, name string) *StartupLogger {
	return s.add(kindS3, label, name)
}

// DynamoTable registers a DynamoDB table.
func (s *StartupLogger) DynamoTable(label, name string) *StartupLogger {
	return s.add(kindDynamo, label, name)
}

// SSMParam registers an SSM parameter path. Only the path is logged, never the value.
func (s *StartupLogger) SSMParam(label, path string) *StartupLogger {
	return s.add(kindSSM, label, path)
}

// SNSTopic registers a notification topic.
func (s *StartupLogger) SNSTopic(label, arn string) *StartupLogger {
	return s.add(kindSNS, label, arn)
}

// EventBus registers an EventBridge bus.
func (s *StartupLogger) EventBus(label, name string) *StartupLogger {
	return s.add(kindEventBus, label, name)
}

// Model registers a vision model by provider.
func (s *StartupLogger) Model(provider, id string) *StartupLogger {
	return s.add(kindModel, provider, id)
}

// LambdaFunc registers another Lambda function invoked by this one.
func (s *StartupLogger) LambdaFunc(label, arn string) *StartupLogger {
	return s.add(kindLambdaFns, label, arn)
}

// Feature registers a boolean feature flag (e.g. "notifications", "asyncMode").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// InitDuration records how long init() took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// EnvOrDefault returns the named environment variable, or defaultVal when unset.
func EnvOrDefault(envVar, defaultVal string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultVal
}

// identity describes the running function from the Lambda environment.
func (s *StartupLogger) identity() *zerolog.Event {
	d := zerolog.Dict().Str("name", s.name)
	for key, env := range map[string]string{
		"functionName": "AWS_LAMBDA_FUNCTION_NAME",
		"version":      "AWS_LAMBDA_FUNCTION_VERSION",
		"region":       "AWS_REGION",
		"memoryMB":     "AWS_LAMBDA_FUNCTION_MEMORY_SIZE",
		"logGroup":     "AWS_LAMBDA_LOG_GROUP_NAME",
		"runtime":      "AWS_EXECUTION_ENV",
		"logLevel":     EnvLevel,
	} {
		d = d.Str(key, os.Getenv(env))
	}
	d = d.Str("goVersion", runtime.Version()).Str("arch", runtime.GOARCH)
	if s.commitHash != "" {
		d = d.Str("commitHash", s.commitHash)
	}
	if s.buildTime != "" {
		d = d.Str("buildTime", s.buildTime)
	}
	return d
}

// Log emits a single structured INFO event with everything collected.
func (s *StartupLogger) Log() {
	evt := log.Info().Dict("lambda", s.identity())

	if len(s.resources) > 0 {
		res := zerolog.Dict()
		for _, kind := range resourceKinds {
			if m := s.resources[kind]; len(m) > 0 {
				res = res.Dict(kind, dictFromMap(m))
			}
		}
		evt = evt.Dict("resources", res)
	}
	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}
	if len(s.config) > 0 {
		evt = evt.Dict("config", dictFromMap(s.config))
	}
	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}
	evt.Msg("Lambda cold start complete")
}

func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
