package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServiceName  string
	ServerPort   string
	DatabasePath string
	LogLevel     string

	RabbitMQHost             string
	RabbitMQPort             int
	RabbitMQVHost            string
	RabbitMQUser             string
	RabbitMQPassword         string
	RabbitMQFallbackUser     string
	RabbitMQFallbackPassword string
	RabbitMQAllowAnonymous   bool
	RabbitMQMaxRetries       int
	RabbitMQRetryDelay       time.Duration

	CommandExchange string
	ReplyQueue      string
	ServiceQueue    string

	RequestTimeout time.Duration
	SlotRetention  time.Duration
	SweepInterval  time.Duration

	RedisAddr string
	CacheTTL  time.Duration

	ClientServiceURL  string
	InvoiceServiceURL string
	ExpenseServiceURL string
	TenantServiceURL  string
}

// Load reads the configuration of one service from the environment and an optional
// .env file in the working directory.
func Load(service, defaultPort string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("dotenv")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	setDefaults(v, service, defaultPort)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return &Config{
		ServiceName:  service,
		ServerPort:   v.GetString("PORT"),
		DatabasePath: v.GetString("DB_PATH"),
		LogLevel:     v.GetString("LOG_LEVEL"),

		RabbitMQHost:             v.GetString("RABBITMQ_HOST"),
		RabbitMQPort:             v.GetInt("RABBITMQ_PORT"),
		RabbitMQVHost:            v.GetString("RABBITMQ_VHOST"),
		RabbitMQUser:             v.GetString("RABBITMQ_USER"),
		RabbitMQPassword:         v.GetString("RABBITMQ_PASSWORD"),
		RabbitMQFallbackUser:     v.GetString("RABBITMQ_FALLBACK_USER"),
		RabbitMQFallbackPassword: v.GetString("RABBITMQ_FALLBACK_PASSWORD"),
		RabbitMQAllowAnonymous:   v.GetBool("RABBITMQ_ALLOW_ANONYMOUS"),
		RabbitMQMaxRetries:       v.GetInt("RABBITMQ_MAX_RETRIES"),
		RabbitMQRetryDelay:       v.GetDuration("RABBITMQ_RETRY_DELAY"),

		CommandExchange: v.GetString("COMMAND_EXCHANGE"),
		ReplyQueue:      v.GetString("REPLY_QUEUE"),
		ServiceQueue:    v.GetString("SERVICE_QUEUE"),

		RequestTimeout: v.GetDuration("REQUEST_TIMEOUT"),
		SlotRetention:  v.GetDuration("SLOT_RETENTION"),
		SweepInterval:  v.GetDuration("SWEEP_INTERVAL"),

		RedisAddr: v.GetString("REDIS_ADDR"),
		CacheTTL:  v.GetDuration("CACHE_TTL"),

		ClientServiceURL:  v.GetString("CLIENT_SERVICE_URL"),
		InvoiceServiceURL: v.GetString("INVOICE_SERVICE_URL"),
		ExpenseServiceURL: v.GetString("EXPENSE_SERVICE_URL"),
		TenantServiceURL:  v.GetString("TENANT_SERVICE_URL"),
	}, nil
}

func setDefaults(v *viper.Viper, service, defaultPort string) {
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("DB_PATH", "db/epos.db")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("RABBITMQ_HOST", "localhost")
	v.SetDefault("RABBITMQ_PORT", 5672)
	v.SetDefault("RABBITMQ_VHOST", "/")
	v.SetDefault("RABBITMQ_USER", "epos_user")
	v.SetDefault("RABBITMQ_PASSWORD", "epos_password")
	v.SetDefault("RABBITMQ_FALLBACK_USER", "guest")
	v.SetDefault("RABBITMQ_FALLBACK_PASSWORD", "guest")
	v.SetDefault("RABBITMQ_ALLOW_ANONYMOUS", true)
	v.SetDefault("RABBITMQ_MAX_RETRIES", 10)
	v.SetDefault("RABBITMQ_RETRY_DELAY", 5*time.Second)

	v.SetDefault("COMMAND_EXCHANGE", "epos")
	v.SetDefault("REPLY_QUEUE", "response_queue")
	v.SetDefault("SERVICE_QUEUE", "epos."+service)

	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("SLOT_RETENTION", 5*time.Minute)
	v.SetDefault("SWEEP_INTERVAL", 5*time.Minute)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("CACHE_TTL", 30*time.Second)

	v.SetDefault("CLIENT_SERVICE_URL", "http://klijent-service:5001")
	v.SetDefault("INVOICE_SERVICE_URL", "http://faktura-service:5002")
	v.SetDefault("EXPENSE_SERVICE_URL", "http://trosak-service:5003")
	v.SetDefault("TENANT_SERVICE_URL", "http://tenant-service:5004")
}
