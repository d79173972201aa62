package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/hr-interview-bot/internal/logger"
	"github.com/spigell/hr-interview-bot/internal/retry"
)

const (
	app = "hr-interview-bot"

	modePolling = "polling"
	modeWebhook = "webhook"
)

type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	AI        AIConfig        `mapstructure:"ai"`
	Interview InterviewConfig `mapstructure:"interview"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type TelegramConfig struct {
	Token       string        `mapstructure:"token" json:"-"`
	TokenFile   string        `mapstructure:"token-file"`
	Mode        string        `mapstructure:"mode" validate:"oneof=polling webhook"`
	PollTimeout int           `mapstructure:"poll-timeout" validate:"gte=0"`
	Webhook     WebhookConfig `mapstructure:"webhook"`
}

type WebhookConfig struct {
	Listen      string `mapstructure:"listen"`
	URL         string `mapstructure:"url" validate:"omitempty,url"`
	SecretToken string `mapstructure:"secret-token" json:"-"`
}

type DatabaseConfig struct {
	DSN      string       `mapstructure:"dsn" json:"-"`
	DSNFile  string       `mapstructure:"dsn-file"`
	MaxConns int32        `mapstructure:"max-conns" validate:"gte=0"`
	Retry    retry.Policy `mapstructure:"retry"`
}

type AIConfig struct {
	Provider     string       `mapstructure:"provider" validate:"oneof=openai gemini"`
	MaxLogLength int          `mapstructure:"max-log-length" validate:"gte=0"`
	OpenAI       OpenAIConfig `mapstructure:"openai"`
	Gemini       GeminiConfig `mapstructure:"gemini"`
}

type OpenAIConfig struct {
	APIKey     string        `mapstructure:"api-key" json:"-"`
	APIKeyFile string        `mapstructure:"api-key-file"`
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base-url" validate:"omitempty,url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key" json:"-"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
}

type InterviewConfig struct {
	MaxTurns int `mapstructure:"max-turns" validate:"gte=0"`
	MaxScore int `mapstructure:"max-score" validate:"gte=1"`
}

type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis-addr"`
	RedisPassword string        `mapstructure:"redis-password" json:"-"`
	RedisDB       int           `mapstructure:"redis-db" validate:"gte=0"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "hr-interview-bot interviews candidates in Telegram and scores them against vacancy requirements",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is hr-interview-bot.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults()
}

func setDefaults() {
	policy := retry.DefaultPolicy()

	viper.SetDefault("telegram.mode", modePolling)
	viper.SetDefault("telegram.poll-timeout", 60)
	viper.SetDefault("telegram.webhook.listen", ":8080")
	viper.SetDefault("database.max-conns", 10)
	viper.SetDefault("database.retry.tries", policy.Tries)
	viper.SetDefault("database.retry.delay", policy.Delay)
	viper.SetDefault("database.retry.backoff", policy.Backoff)
	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ai.max-log-length", 200)
	viper.SetDefault("ai.openai.model", "gpt-4o-mini")
	viper.SetDefault("ai.openai.timeout", 60*time.Second)
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("interview.max-turns", 25)
	viper.SetDefault("interview.max-score", 10)
	viper.SetDefault("cache.ttl", 10*time.Minute)
}

func bindEnv() error {
	envs := map[string]string{
		"telegram.token":                "HRBOT_TELEGRAM_TOKEN",
		"telegram.webhook.secret-token": "HRBOT_TELEGRAM_WEBHOOK_SECRET",
		"database.dsn":                  "HRBOT_DATABASE_DSN",
		"ai.provider":                   "HRBOT_AI_PROVIDER",
		"ai.openai.api-key":             "HRBOT_AI_OPENAI_API_KEY",
		"ai.gemini.api-key":             "HRBOT_AI_GEMINI_API_KEY",
		"cache.redis-addr":              "HRBOT_REDIS_ADDR",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			return fmt.Errorf("binding %s environment variable: %w", env, err)
		}
	}
	return nil
}

func initConfig() {
	// Only the version command works without a configuration.
	if versionCmd.CalledAs() != "" {
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env file: %v", err)
	}

	if err := bindEnv(); err != nil {
		log.Fatal(err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The default config file is optional: everything can come from the environment.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		return nil, errors.New("config is empty")
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Telegram.Mode == modeWebhook && config.Telegram.Webhook.URL == "" {
		return nil, errors.New("telegram.webhook.url is required in webhook mode")
	}

	return config, nil
}

// setup builds the logger and loads the configuration. Failures are fatal.
func setup() (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	return logger, config
}
