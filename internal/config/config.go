// Package config loads runtime configuration for the decision engine.
//
// Deployment settings come from environment variables. Policy vocabularies
// (approved domains, brand colors, heuristic keyword lists) default to the
// LogicCart values and can be overridden from a YAML file named by
// POLICY_CONFIG_FILE. Nothing here is global: callers pass the loaded
// Config into the components they construct.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment keys.
const (
	KeyTicketsTable      = "TICKETS_TABLE"
	KeyPolicyBucket      = "POLICY_BUCKET"
	KeyPolicyFileKey     = "POLICY_FILE_KEY"
	KeyUploadsBucket     = "UPLOADS_BUCKET"
	KeySNSTopicARN       = "SNS_TOPIC_ARN"
	KeyEventBusName      = "EVENT_BUS_NAME"
	KeyWorkerLambdaARN   = "WORKER_LAMBDA_ARN"
	KeyPresignedURLTTL   = "PRESIGNED_URL_TTL"
	KeyVisionProvider    = "VISION_PROVIDER"
	KeyBedrockModel      = "BEDROCK_MODEL"
	KeyGeminiModel       = "GEMINI_MODEL"
	KeyMaxOutputTokens   = "MAX_OUTPUT_TOKENS"
	KeyTemperature       = "MODEL_TEMPERATURE"
	KeyTopP              = "MODEL_TOP_P"
	KeyHTTPTimeoutSec    = "HTTP_TIMEOUT_SEC"
	KeyModelTimeoutSec   = "MODEL_TIMEOUT_SEC"
	KeyVisionConcurrency = "VISION_CONCURRENCY"
	KeyApprovedDomains   = "APPROVED_DOMAINS"
	KeyRedirectHints     = "REDIRECT_HOST_HINTS"
	KeySupportEmail      = "SUPPORT_EMAIL"
	KeyTeamName          = "TEAM_NAME"
	KeyAPIKeyParam       = "SSM_API_KEY_PARAM"
	KeyPolicyConfigFile  = "POLICY_CONFIG_FILE"
)

// Vision providers.
const (
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	TicketsTable    string
	PolicyBucket    string
	PolicyKey       string
	UploadsBucket   string
	SNSTopicARN     string
	EventBusName    string
	WorkerLambdaARN string
	PresignTTL      time.Duration

	VisionProvider    string
	BedrockModel      string
	GeminiModel       string
	MaxOutputTokens   int
	Temperature       float64
	TopP              float64
	HTTPTimeout       time.Duration
	ModelTimeout      time.Duration
	VisionConcurrency int

	SupportEmail string
	TeamName     string
	APIKeyParam  string

	Policy Policy
}

// ModelID returns the model identifier for the configured provider.
func (c *Config) ModelID() string {
	if c.VisionProvider == ProviderGemini {
		return c.GeminiModel
	}
	return c.BedrockModel
}

// Policy holds the vocabularies the decision rules match against.
type Policy struct {
	ApprovedDomains []string `mapstructure:"approved_domains"`
	RedirectHints   []string `mapstructure:"redirect_hints"`

	BrandColors      []string `mapstructure:"brand_colors"`
	BrandPrefixes    []string `mapstructure:"brand_prefixes"`
	SeasonalKeywords []string `mapstructure:"seasonal_keywords"`
	QualityBlockers  []string `mapstructure:"quality_blockers"`

	SuspiciousClaims []string `mapstructure:"suspicious_claims"`
	WatermarkTerms   []string `mapstructure:"watermark_terms"`
	Competitors      []string `mapstructure:"competitors"`

	FallbackColorHints   []string `mapstructure:"fallback_color_hints"`
	FallbackColor        string   `mapstructure:"fallback_color"`
	LogoHints            []string `mapstructure:"logo_hints"`
	FallbackBrandElement string   `mapstructure:"fallback_brand_element"`

	// ApproveWithoutSignals keeps the borderline default-approve branch.
	// Turning it off sends those tickets to NEEDS_INFO instead.
	ApproveWithoutSignals bool `mapstructure:"approve_without_signals"`
}

// DefaultPolicy returns the LogicCart policy vocabularies.
func DefaultPolicy() Policy {
	return Policy{
		ApprovedDomains:  []string{"logicart.com", "shop.logicart.com", "blog.logicart.com", "support.logicart.com"},
		RedirectHints:    []string{"bit.ly", "t.co", "lnkd.in", "goo.gl", "is.gd", "tinyurl.com", "redirect", "tracker"},
		BrandColors:      []string{"#5754FF", "#5E60F1", "#6366F1", "#8B5CF6", "#A855F7", "#C084FC"},
		BrandPrefixes:    []string{"5754", "5E60", "6366", "8B5C", "A855", "C084"},
		SeasonalKeywords: []string{"festival"},
		QualityBlockers: []string{
			"blurry", "blur", "pixelation", "pixelated", "compression", "artifact",
			"low resolution", "poor resolution", "noisy", "noise", "distortion",
		},
		SuspiciousClaims: []string{
			"100% off", "free for life", "guaranteed lowest price", "unlimited for free", "no terms apply",
		},
		WatermarkTerms:        []string{"watermark", "stock photo"},
		Competitors:           []string{"shopify", "woocommerce", "magento", "bigcommerce"},
		FallbackColorHints:    []string{"#5754ff", "purple"},
		FallbackColor:         "#5754FF",
		LogoHints:             []string{"logo", "logicart", "branding"},
		FallbackBrandElement:  "LogicCart branding",
		ApproveWithoutSignals: true,
	}
}

// Load resolves configuration from the environment and the optional policy file.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault(KeyTicketsTable, "tickets")
	v.SetDefault(KeyPolicyFileKey, "policy.md")
	v.SetDefault(KeyPresignedURLTTL, 300)
	v.SetDefault(KeyVisionProvider, ProviderBedrock)
	v.SetDefault(KeyBedrockModel, "amazon.nova-lite-v1:0")
	v.SetDefault(KeyGeminiModel, "gemini-2.5-flash")
	v.SetDefault(KeyMaxOutputTokens, 2048)
	v.SetDefault(KeyTemperature, 0.1)
	v.SetDefault(KeyTopP, 0.9)
	v.SetDefault(KeyHTTPTimeoutSec, 30)
	v.SetDefault(KeyModelTimeoutSec, 60)
	v.SetDefault(KeyVisionConcurrency, 2)
	v.SetDefault(KeySupportEmail, "dev@logiccart.com")
	v.SetDefault(KeyTeamName, "LogicCart Web Development Team")
	v.SetDefault(KeyAPIKeyParam, "/logiccart/prod/gemini-api-key")

	cfg := &Config{
		TicketsTable:      v.GetString(KeyTicketsTable),
		PolicyBucket:      v.GetString(KeyPolicyBucket),
		PolicyKey:         v.GetString(KeyPolicyFileKey),
		UploadsBucket:     v.GetString(KeyUploadsBucket),
		SNSTopicARN:       v.GetString(KeySNSTopicARN),
		EventBusName:      v.GetString(KeyEventBusName),
		WorkerLambdaARN:   v.GetString(KeyWorkerLambdaARN),
		PresignTTL:        time.Duration(v.GetInt(KeyPresignedURLTTL)) * time.Second,
		VisionProvider:    strings.ToLower(v.GetString(KeyVisionProvider)),
		BedrockModel:      v.GetString(KeyBedrockModel),
		GeminiModel:       v.GetString(KeyGeminiModel),
		MaxOutputTokens:   v.GetInt(KeyMaxOutputTokens),
		Temperature:       v.GetFloat64(KeyTemperature),
		TopP:              v.GetFloat64(KeyTopP),
		HTTPTimeout:       time.Duration(v.GetInt(KeyHTTPTimeoutSec)) * time.Second,
		ModelTimeout:      time.Duration(v.GetInt(KeyModelTimeoutSec)) * time.Second,
		VisionConcurrency: v.GetInt(KeyVisionConcurrency),
		SupportEmail:      v.GetString(KeySupportEmail),
		TeamName:          v.GetString(KeyTeamName),
		APIKeyParam:       v.GetString(KeyAPIKeyParam),
		Policy:            DefaultPolicy(),
	}

	if path := v.GetString(KeyPolicyConfigFile); path != "" {
		if err := loadPolicyFile(path, &cfg.Policy); err != nil {
			return nil, err
		}
	}

	// Environment lists win over the policy file.
	if domains := SplitList(v.GetString(KeyApprovedDomains)); len(domains) > 0 {
		cfg.Policy.ApprovedDomains = domains
	}
	if hints := SplitList(v.GetString(KeyRedirectHints)); len(hints) > 0 {
		cfg.Policy.RedirectHints = hints
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadPolicyFile overlays keys present in a YAML policy file onto p.
func loadPolicyFile(path string, p *Policy) error {
	pv := viper.New()
	pv.SetConfigFile(path)
	if err := pv.ReadInConfig(); err != nil {
		return fmt.Errorf("read policy config %s: %w", path, err)
	}

	var override Policy
	if err := pv.Unmarshal(&override); err != nil {
		return fmt.Errorf("decode policy config %s: %w", path, err)
	}

	lists := []struct {
		key string
		dst *[]string
		src []string
	}{
		{"approved_domains", &p.ApprovedDomains, override.ApprovedDomains},
		{"redirect_hints", &p.RedirectHints, override.RedirectHints},
		{"brand_colors", &p.BrandColors, override.BrandColors},
		{"brand_prefixes", &p.BrandPrefixes, override.BrandPrefixes},
		{"seasonal_keywords", &p.SeasonalKeywords, override.SeasonalKeywords},
		{"quality_blockers", &p.QualityBlockers, override.QualityBlockers},
		{"suspicious_claims", &p.SuspiciousClaims, override.SuspiciousClaims},
		{"watermark_terms", &p.WatermarkTerms, override.WatermarkTerms},
		{"competitors", &p.Competitors, override.Competitors},
		{"fallback_color_hints", &p.FallbackColorHints, override.FallbackColorHints},
		{"logo_hints", &p.LogoHints, override.LogoHints},
	}
	for _, l := range lists {
		if pv.IsSet(l.key) {
			*l.dst = l.src
		}
	}
	if pv.IsSet("fallback_color") {
		p.FallbackColor = override.FallbackColor
	}
	if pv.IsSet("fallback_brand_element") {
		p.FallbackBrandElement = override.FallbackBrandElement
	}
	if pv.IsSet("approve_without_signals") {
		p.ApproveWithoutSignals = override.ApproveWithoutSignals
	}
	return nil
}

func (c *Config) validate() error {
	switch c.VisionProvider {
	case ProviderBedrock, ProviderGemini:
	default:
		return fmt.Errorf("%s: unsupported provider %q", KeyVisionProvider, c.VisionProvider)
	}
	if c.VisionConcurrency < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", KeyVisionConcurrency, c.VisionConcurrency)
	}
	if c.HTTPTimeout <= 0 || c.ModelTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if len(c.Policy.ApprovedDomains) == 0 {
		return fmt.Errorf("approved domain list is empty")
	}
	return nil
}

// SplitList splits a comma-separated value, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
