package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-provided option the service reads at
// startup. It is loaded once in main and passed down explicitly rather than
// accessed as a global, mirroring how the rest of the service is wired.
type Config struct {
	Port string

	// Upstream (Telegram) credentials.
	APIID            int
	APIHash          string
	BotToken         string
	PrimarySession   string
	AuxSessionFiles  []string
	OwnerIDs         []int64
	AuthChatIDs      []int64
	LogsChatID       int64
	PostChatID       int64
	MediaChannelID   int64

	// Admin auth.
	AdminUsername string
	AdminPassword string
	SigningSecret string

	// Catalog store.
	MongoURI string
	MongoDB  string

	// Enrichment.
	MetadataAPIKey string

	// Site presentation.
	SiteName string
	SiteLink string

	// Feature toggles.
	RegistrationEnabled bool
	PostUpdatesEnabled  bool
	UseCaption          bool
	MergeMovieQualities bool

	DeleteAfter time.Duration
}

// Load reads configuration from the environment, applying the same defaults
// the teacher's config package uses: every value has a safe fallback so the
// process can start in a local/dev environment without a .env file.
func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		APIID:           getEnvAsInt("API_ID", 0),
		APIHash:         getEnv("API_HASH", ""),
		BotToken:        getEnv("BOT_TOKEN", ""),
		PrimarySession:  getEnv("PRIMARY_SESSION", "./data/sessions/primary.session"),
		AuxSessionFiles: getEnvAsList("AUX_SESSION_FILES"),
		OwnerIDs:        getEnvAsInt64List("OWNER_IDS"),
		AuthChatIDs:     getEnvAsInt64List("AUTH_CHATS"),
		LogsChatID:      getEnvAsInt64("LOGS_CHAT_ID", 0),
		PostChatID:      getEnvAsInt64("POST_CHAT_ID", 0),
		MediaChannelID:  getEnvAsInt64("MEDIA_CHANNEL_ID", 0),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "change-me-in-production-please"),
		SigningSecret: getEnv("SIGNING_SECRET", "change-me-in-production-please"),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:  getEnv("MONGO_DB", "streamvault"),

		MetadataAPIKey: getEnv("METADATA_API_KEY", ""),

		SiteName: getEnv("SITE_NAME", "StreamVault"),
		SiteLink: getEnv("SITE_LINK", "http://localhost:8080"),

		RegistrationEnabled: getEnvAsBool("REGISTRATION_ENABLED", true),
		PostUpdatesEnabled:  getEnvAsBool("POST_UPDATES", false),
		UseCaption:          getEnvAsBool("USE_CAPTION", false),
		MergeMovieQualities: getEnvAsBool("MERGE_MOVIE_QUALITIES", false),

		DeleteAfter: time.Duration(getEnvAsInt("DELETE_AFTER_MINUTES", 10)) * time.Minute,
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultVal
}

func getEnvAsInt64(name string, defaultVal int64) int64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
			return value
		}
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultVal
}

// getEnvAsList splits a space-separated environment value into a string
// slice, matching the "auth chats are space-separated ids" configuration
// surface described in the spec.
func getEnvAsList(name string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	fields := strings.Fields(raw)
	out := make([]string, 0, len(fields))
	out = append(out, fields...)
	return out
}

// getEnvAsInt64List splits a space-separated environment value into a slice
// of int64 IDs, skipping any field that fails to parse.
func getEnvAsInt64List(name string) []int64 {
	fields := getEnvAsList(name)
	out := make([]int64, 0, len(fields))
	for _, f := range fields {
		if v, err := strconv.ParseInt(f, 10, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}
