// Package config defines the configuration contract and handles loading and
// validating environment configuration for both services.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyMongoURI      = "MONGO_URI"
	KeyMongoDB       = "MONGO_DB"
	KeyNotifyURL     = "TG_NOTIFY_URL"
	KeyOEmbedURL     = "OEMBED_URL"
	KeyTelegramToken = "TELEGRAM_TOKEN"
	KeyChatsFile     = "CHATS_FILE"
	KeyAppEnv        = "APP_ENV"
	KeyLogLevel      = "LOG_LEVEL"
	KeyHTTPPort      = "HTTP_PORT"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv       = EnvProduction
	DefaultLogLevel     = "info"
	DefaultServerPort   = 4021
	DefaultNotifierPort = 4022
	DefaultOEmbedURL    = "https://publish.twitter.com/oembed"
	DefaultChatsFile    = "data/chats.json"

	// Recommended database names by environment.
	DefaultMongoDBProd = "speedrss"
	DefaultMongoDBDev  = "speedrss_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the service must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for both services.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string (feed server only).",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Required:    true,
		Description: "MongoDB database name (feed server only).",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyNotifyURL,
		Example:     "http://localhost:" + strconv.Itoa(DefaultNotifierPort) + "/notify",
		Description: "Notifier endpoint that receives newly created posts.",
		Notes:       "When unset, the feed server skips the notification callback.",
	},
	{
		Key:         KeyOEmbedURL,
		Example:     DefaultOEmbedURL,
		Default:     DefaultOEmbedURL,
		Description: "oEmbed endpoint used for post extraction.",
	},
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Description: "Telegram Bot Token issued by BotFather (notifier only).",
		Notes:       "When unset, the notifier serves 503 on /notify and skips polling.",
	},
	{
		Key:         KeyChatsFile,
		Example:     DefaultChatsFile,
		Default:     DefaultChatsFile,
		Description: "Path of the JSON file holding registered chat ids (notifier only).",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultServerPort),
		Description: "HTTP listen port.",
		Notes: "Defaults to " + strconv.Itoa(DefaultServerPort) + " for the feed server and " +
			strconv.Itoa(DefaultNotifierPort) + " for the notifier.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	AppEnv        string
	LogLevel      string
	HTTPPort      int
	MongoURI      string
	MongoDB       string
	NotifyURL     string
	OEmbedURL     string
	TelegramToken string
	ChatsFile     string
}

// LoadServer resolves the feed server configuration from the environment
// (with optional dotenv in development). MONGO_URI and MONGO_DB are required.
func LoadServer() (Config, error) {
	cfg, err := loadBase(DefaultServerPort)
	if err != nil {
		return Config{}, err
	}

	cfg.MongoURI = strings.TrimSpace(os.Getenv(KeyMongoURI))
	cfg.MongoDB = strings.TrimSpace(os.Getenv(KeyMongoDB))
	cfg.NotifyURL = strings.TrimSpace(os.Getenv(KeyNotifyURL))
	cfg.OEmbedURL = firstNonEmpty(strings.TrimSpace(os.Getenv(KeyOEmbedURL)), DefaultOEmbedURL)

	missing := make([]string, 0)
	if cfg.MongoURI == "" {
		missing = append(missing, KeyMongoURI)
	}
	if cfg.MongoDB == "" {
		missing = append(missing, KeyMongoDB)
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// LoadNotifier resolves the notifier configuration from the environment.
// TELEGRAM_TOKEN is optional: without it the notifier answers 503 on /notify
// and does not poll for updates.
func LoadNotifier() (Config, error) {
	cfg, err := loadBase(DefaultNotifierPort)
	if err != nil {
		return Config{}, err
	}

	cfg.TelegramToken = strings.TrimSpace(os.Getenv(KeyTelegramToken))
	cfg.ChatsFile = firstNonEmpty(strings.TrimSpace(os.Getenv(KeyChatsFile)), DefaultChatsFile)

	return cfg, nil
}

func loadBase(defaultPort int) (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:   firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		LogLevel: firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort: defaultPort,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
