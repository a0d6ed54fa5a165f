// Package config assembles the daemon configuration from defaults,
// an optional JSON file, environment variables (and a .env file) and
// command-line flags, in increasing order of priority.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"reflect"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/thoas/go-funk"
)

// Config holds every tunable of the session daemon.
type Config struct {
	RunAddr             string        `json:"server_address" env:"SERVER_ADDRESS" validate:"hostname_port"`
	GRPCRunAddr         string        `json:"grpc_server_address" env:"GRPC_SERVER_ADDRESS" validate:"omitempty,hostname_port"`
	LogLevel            string        `json:"log_level" env:"LOG_LEVEL" validate:"loglevel"`
	DBFileName          string        `json:"file_storage_path" env:"FILE_STORAGE_PATH" validate:"filepath"`
	DatabaseDSN         string        `json:"database_dsn" env:"DATABASE_DSN"`
	DBConnectionTimeout time.Duration `json:"-" env:"DB_CONNECTION_TIMEOUT"`
	MigrationsDir       string        `json:"migrations_dir" env:"MIGRATIONS_DIR"`
	SQLitePath          string        `json:"sqlite_path" env:"SQLITE_PATH" validate:"filepath"`
	RedisURL            string        `json:"redis_url" env:"REDIS_URL" validate:"omitempty,url"`
	RedisKeyPrefix      string        `json:"redis_key_prefix" env:"REDIS_KEY_PREFIX"`
	RedisRetryAttempts  int           `json:"redis_retry_attempts" env:"REDIS_RETRY_ATTEMPTS" validate:"gte=1"`
	RedisRetryInterval  time.Duration `json:"-" env:"REDIS_RETRY_INTERVAL"`
	IdentityProvider    string        `json:"identity_provider" env:"IDENTITY_PROVIDER" validate:"oneof=firebase local"`
	FirebaseAPIKey      string        `json:"firebase_api_key" env:"FIREBASE_API_KEY" validate:"required_if=IdentityProvider firebase"`
	FirebaseAuthURL     string        `json:"firebase_auth_url" env:"FIREBASE_AUTH_URL" validate:"url"`
	FirebaseTokenURL    string        `json:"firebase_token_url" env:"FIREBASE_TOKEN_URL" validate:"url"`
	ReconcilePolicy     string        `json:"reconcile_policy" env:"RECONCILE_POLICY" validate:"reconcilepolicy"`
	InitTimeout         time.Duration `json:"-" env:"INIT_TIMEOUT" validate:"gt=0"`
	Language            string        `json:"language" env:"LANGUAGE" validate:"language"`
	TrustedSubnet       string        `json:"trusted_subnet" env:"TRUSTED_SUBNET" validate:"omitempty,cidr"`
	ChannelCapacity     int           `json:"channel_capacity" env:"CHANNEL_CAPACITY" validate:"gte=1"`
	ConfigFile          string        `json:"-" env:"CONFIG"`
}

var defaultConfig = Config{
	RunAddr:             ":8080",
	GRPCRunAddr:         ":3200",
	LogLevel:            "info",
	DBConnectionTimeout: 10 * time.Second,
	MigrationsDir:       "cmd/sanasto/migrations",
	RedisKeyPrefix:      "sanasto:",
	RedisRetryAttempts:  3,
	RedisRetryInterval:  2 * time.Second,
	IdentityProvider:    "local",
	FirebaseAuthURL:     "https://identitytoolkit.googleapis.com/v1",
	FirebaseTokenURL:    "https://securetoken.googleapis.com/v1",
	ReconcilePolicy:     "keep-cached",
	InitTimeout:         10 * time.Second,
	Language:            "fi",
	ChannelCapacity:     16,
}

var (
	allowedLogLevels         = []string{"debug", "info", "warning", "warn", "error", "fatal"}
	allowedReconcilePolicies = []string{"keep-cached", "follow-provider"}
	allowedLanguages         = []string{"fi", "sv", "en"}
)

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	if path == "" {
		return true
	}
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	return funk.ContainsString(allowedLogLevels, fieldLevel.Field().String())
}

func validateReconcilePolicy(fieldLevel validator.FieldLevel) bool {
	return funk.ContainsString(allowedReconcilePolicies, fieldLevel.Field().String())
}

func validateLanguage(fieldLevel validator.FieldLevel) bool {
	return funk.ContainsString(allowedLanguages, fieldLevel.Field().String())
}

func (c *Config) validate() error {
	validate := validator.New()

	customValidations := map[string]validator.Func{
		"loglevel":        validateLogLevel,
		"filepath":        validateFilePath,
		"reconcilepolicy": validateReconcilePolicy,
		"language":        validateLanguage,
	}
	for tag, fn := range customValidations {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}

	return validate.Struct(c)
}

type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing skips command-line parsing; tests use it to avoid go test flags.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// New builds the configuration. Priority: flags > env > JSON file > defaults.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	err := godotenv.Load()
	if err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	var fromFlags Config
	if !options.disableFlagsParsing {
		if err := parseFlags(&fromFlags, os.Args[1:]); err != nil {
			return nil, err
		}
	}

	var fromEnv Config
	if err := env.Parse(&fromEnv); err != nil {
		return nil, err
	}

	configFile := fromEnv.ConfigFile
	if fromFlags.ConfigFile != "" {
		configFile = fromFlags.ConfigFile
	}
	if configFile != "" {
		if err := values.loadJSON(configFile); err != nil {
			return nil, err
		}
	}

	overlay(values, &fromEnv)
	overlay(values, &fromFlags)

	if err := values.validate(); err != nil {
		return nil, err
	}

	return values, nil
}

func parseFlags(values *Config, args []string) error {
	flags := flag.NewFlagSet("sanasto", flag.ContinueOnError)
	flags.StringVar(&values.RunAddr, "a", "", "address and port to run the HTTP server")
	flags.StringVar(&values.GRPCRunAddr, "g", "", "address and port to run the gRPC server")
	flags.StringVar(&values.LogLevel, "l", "", "logger level")
	flags.StringVar(&values.DBFileName, "f", "", "JSON file name with the session slots")
	flags.StringVar(&values.DatabaseDSN, "d", "", "A string with the database connection details")
	flags.StringVar(&values.SQLitePath, "s", "", "path to the SQLite database file")
	flags.StringVar(&values.RedisURL, "r", "", "redis connection URL")
	flags.StringVar(&values.IdentityProvider, "p", "", "identity provider: firebase or local")
	flags.StringVar(&values.FirebaseAPIKey, "k", "", "Firebase web API key")
	flags.StringVar(&values.ReconcilePolicy, "policy", "", "reconcile policy: keep-cached or follow-provider")
	flags.StringVar(&values.Language, "lang", "", "language of user-facing messages: fi, sv or en")
	flags.StringVar(&values.TrustedSubnet, "t", "", "trusted subnet in CIDR notation")
	flags.StringVar(&values.ConfigFile, "c", "", "path to the JSON config file")

	return flags.Parse(args)
}

func (c *Config) loadJSON(fileName string) error {
	raw, err := os.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `os.ReadFile()` calling: %w", err)
	}

	var fromJSON Config
	if err := json.Unmarshal(raw, &fromJSON); err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `json.Unmarshal()` calling: %w", err)
	}
	overlay(c, &fromJSON)

	return nil
}

func applyDefaults(values *Config, defaults Config) {
	*values = defaults
}

// overlay copies every non-zero field of src onto dst.
func overlay(dst, src *Config) {
	dstValue := reflect.ValueOf(dst).Elem()
	srcValue := reflect.ValueOf(src).Elem()

	for i := range srcValue.NumField() {
		field := srcValue.Field(i)
		if !field.IsZero() {
			dstValue.Field(i).Set(field)
		}
	}
}
