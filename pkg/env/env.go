package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv  string
	AppPort string

	// Public base URL of this service (https://...). Twilio must be able to
	// reach it for TwiML fetches and to open the media-stream WebSocket.
	PublicBaseURL string

	// Twilio (call origination, call metadata lookup, confirmation SMS)
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	// ElevenLabs Conversational AI
	ElevenLabsAPIKey     string
	ElevenLabsAgentID    string
	AgentConnectTimeoutS int

	// Keywords scanned, case-insensitively, in agent responses. A match sends
	// the confirmation SMS once per session.
	TriggerKeywords []string
	ConfirmationSMS string

	RedisURL string

	MongoURI string
	DBName   string

	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTTLMin    int
	AdminEmail      string
	AdminPassHash   string // bcrypt hash of the admin password
	APIRateLimitRPM int

	DocumentsPath string

	LogLevel           string
	CORSAllowedOrigins string

	OTELEndpoint string
	OTELEnabled  bool
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// Missing .env is fine (production uses real environment variables);
		// any other error is not.
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		AppEnv:  getEnv("APP_ENV", "development"),
		AppPort: getEnv("APP_PORT", "8080"),

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		TwilioAccountSID:  mustGetEnv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   mustGetEnv("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber: mustGetEnv("TWILIO_PHONE_NUMBER"),

		ElevenLabsAPIKey:     mustGetEnv("ELEVENLABS_API_KEY"),
		ElevenLabsAgentID:    mustGetEnv("ELEVENLABS_AGENT_ID"),
		AgentConnectTimeoutS: getEnvInt("AGENT_CONNECT_TIMEOUT_S", 10),

		TriggerKeywords: getEnvList("TRIGGER_KEYWORDS", "appointment,schedule,book,reserve"),
		ConfirmationSMS: getEnv("CONFIRMATION_SMS",
			"Thank you for scheduling an appointment with us. Your appointment has been confirmed."),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:   getEnv("DB_NAME", "voicebridge"),

		JWTSecret:       mustGetEnv("JWT_SECRET"),
		JWTIssuer:       getEnv("JWT_ISSUER", "voice-bridge"),
		JWTAudience:     getEnv("JWT_AUDIENCE", "voice-bridge-api"),
		AccessTTLMin:    getEnvInt("ACCESS_TTL_MIN", 15),
		AdminEmail:      getEnv("ADMIN_EMAIL", ""),
		AdminPassHash:   getEnv("ADMIN_PASSWORD_HASH", ""),
		APIRateLimitRPM: getEnvInt("API_RATE_LIMIT_RPM", 180),

		DocumentsPath: getEnv("DOCUMENTS_PATH", "uploads/documents"),

		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		OTELEndpoint: getEnv("OTEL_ENDPOINT", ""),
		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
