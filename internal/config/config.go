package config

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/pem"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	ld "github.com/launchdarkly/go-server-sdk/v7"

	"github.com/NerdyNot/NerdyOps/internal/constants"
	"github.com/NerdyNot/NerdyOps/internal/utils"
)

const (
	OrganizationName = "NerdyOps"
	AppName          = "orchestrator-service"
	JWTIssuer        = "nerdyops-auth"

	LDConnectionTimeout = 5 * time.Second
)

type Config struct {
	OrganizationName string
	AppName          string
	AppPort          string
	AppUrl           string

	// Database
	DBUrl string

	// Shared key presented by agents on the runner endpoints
	AgentAPIKey string

	// External services
	TwilioAccountSID string
	TwilioAuthToken  string
	SendGridAPIKey   string
	OpenAIAPIKey     string

	// On-call contact for fleet alerts
	OnCallPhone string
	OnCallEmail string

	// Auth
	RSAPublicKey *rsa.PublicKey
	JWTIssuer    string

	// Fan-out cap for multi-agent submissions and batch decisions
	DispatchConcurrency int

	// LaunchDarkly flags
	LDFlag_OpenAIScriptGeneration bool
	LDFlag_CORSHighSecurity       bool
	LDFlag_SeedDbWithTestData     bool
	LDFlag_NotifyOnTaskFailure    bool
	LDFlag_TwilioFromPhone        string
	LDFlag_SendgridFromEmail      string
	LDFlag_SendgridSandboxMode    bool
}

func LoadConfig() *Config {
	utils.Logger.Info("Loading config for app: ", AppName)

	appUrl := os.Getenv("APP_URL_FROM_ANYWHERE")
	if appUrl == "" {
		utils.Logger.Fatal("APP_URL_FROM_ANYWHERE env var is missing")
	}
	appPort := os.Getenv("APP_PORT")
	if appPort == "" {
		utils.Logger.Fatal("APP_PORT env var is missing")
	}
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		utils.Logger.Fatal("DB_URL env var is missing")
	}
	agentKey := os.Getenv("AGENT_API_KEY")
	if agentKey == "" {
		utils.Logger.Fatal("AGENT_API_KEY env var is missing")
	}
	ldSDKKey := os.Getenv("LD_SDK_KEY")
	if ldSDKKey == "" {
		utils.Logger.Fatal("LD_SDK_KEY env var is missing")
	}

	pubB64 := os.Getenv("RSA_PUBLIC_KEY_BASE64")
	if pubB64 == "" {
		utils.Logger.Fatal("RSA_PUBLIC_KEY_BASE64 env var is missing")
	}
	pubPEM, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		utils.Logger.WithError(err).Fatal("RSA_PUBLIC_KEY_BASE64 is not valid base64")
	}
	if block, _ := pem.Decode(pubPEM); block == nil {
		utils.Logger.Fatal("Failed to decode PEM block for public key")
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to parse RSA public key")
	}

	// Twilio / SendGrid
	twilioSID := os.Getenv("TWILIO_ACCOUNT_SID")
	if twilioSID == "" {
		utils.Logger.Fatal("TWILIO_ACCOUNT_SID env var is missing")
	}
	twilioToken := os.Getenv("TWILIO_AUTH_TOKEN")
	if twilioToken == "" {
		utils.Logger.Fatal("TWILIO_AUTH_TOKEN env var is missing")
	}
	sgAPIKey := os.Getenv("SENDGRID_API_KEY")
	if sgAPIKey == "" {
		utils.Logger.Fatal("SENDGRID_API_KEY env var is missing")
	}

	onCallPhone := os.Getenv("ONCALL_PHONE")
	onCallEmail := os.Getenv("ONCALL_EMAIL")

	dispatchConcurrency := constants.DefaultDispatchConcurrency
	if v := os.Getenv("DISPATCH_CONCURRENCY"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 1 {
			utils.Logger.Fatalf("DISPATCH_CONCURRENCY invalid: %q", v)
		}
		dispatchConcurrency = n
	}

	ldClient, err := ld.MakeClient(ldSDKKey, LDConnectionTimeout)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to create LaunchDarkly client")
	}
	if !ldClient.Initialized() {
		ldClient.Close()
		utils.Logger.Fatal("LaunchDarkly client failed to initialize")
	}
	defer ldClient.Close()

	ctx := ldcontext.NewWithKind("service", AppName)

	scriptGenFlag, err := ldClient.BoolVariation("openai_script_generation", ctx, false)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Error retrieving openai_script_generation flag")
	}
	utils.Logger.Debugf("openai_script_generation flag: %t", scriptGenFlag)

	var openaiKey string
	if scriptGenFlag {
		openaiKey = os.Getenv("OPENAI_API_KEY")
		if openaiKey == "" {
			utils.Logger.Fatal("OPENAI_API_KEY env var missing but flag enabled")
		}
	}

	corsHighSecurityFlag, err := ldClient.BoolVariation("cors_high_security", ctx, false)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Error retrieving cors_high_security flag")
	}
	utils.Logger.Debugf("cors_high_security flag: %t", corsHighSecurityFlag)

	seedDbWithTestDataFlag, err := ldClient.BoolVariation("seed_db_with_test_data", ctx, false)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Error retrieving seed_db_with_test_data flag")
	}
	utils.Logger.Debugf("seed_db_with_test_data flag: %t", seedDbWithTestDataFlag)

	notifyOnTaskFailureFlag, err := ldClient.BoolVariation("notify_on_task_failure", ctx, false)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Error retrieving notify_on_task_failure flag")
	}
	utils.Logger.Debugf("notify_on_task_failure flag: %t", notifyOnTaskFailureFlag)

	twilioFromFlag, err := ldClient.StringVariation("twilio_from_phone", ctx, "")
	if err != nil {
		utils.Logger.WithError(err).Fatal("Error retrieving twilio_from_phone flag")
	}
	if twilioFromFlag == "" {
		utils.Logger.Warn("twilio_from_phone flag is empty, defaulting to +10005550006")
		twilioFromFlag = "+10005550006"
	}

	sgFromFlag, err := ldClient.StringVariation("sendgrid_from_email", ctx, "")
	if err != nil {
		utils.Logger.WithError(err).Fatal("Error retrieving sendgrid_from_email flag")
	}
	if sgFromFlag == "" {
		utils.Logger.Warn("sendgrid_from_email flag is empty, defaulting to no-reply@nerdyops.dev")
		sgFromFlag = "no-reply@nerdyops.dev"
	}

	sgSandboxFlag, err := ldClient.BoolVariation("sendgrid_sandbox_mode", ctx, false)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Error retrieving sendgrid_sandbox_mode flag")
	}
	utils.Logger.Debugf("sendgrid_sandbox_mode flag: %t", sgSandboxFlag)

	return &Config{
		OrganizationName:              OrganizationName,
		AppName:                       AppName,
		AppPort:                       appPort,
		AppUrl:                        appUrl,
		DBUrl:                         dbURL,
		AgentAPIKey:                   agentKey,
		TwilioAccountSID:              twilioSID,
		TwilioAuthToken:               twilioToken,
		SendGridAPIKey:                sgAPIKey,
		OpenAIAPIKey:                  openaiKey,
		OnCallPhone:                   onCallPhone,
		OnCallEmail:                   onCallEmail,
		RSAPublicKey:                  pubKey,
		JWTIssuer:                     JWTIssuer,
		DispatchConcurrency:           dispatchConcurrency,
		LDFlag_OpenAIScriptGeneration: scriptGenFlag,
		LDFlag_CORSHighSecurity:       corsHighSecurityFlag,
		LDFlag_SeedDbWithTestData:     seedDbWithTestDataFlag,
		LDFlag_NotifyOnTaskFailure:    notifyOnTaskFailureFlag,
		LDFlag_TwilioFromPhone:        twilioFromFlag,
		LDFlag_SendgridFromEmail:      sgFromFlag,
		LDFlag_SendgridSandboxMode:    sgSandboxFlag,
	}
}

func (c *Config) Close() {}
