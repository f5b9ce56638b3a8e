package config

import (
	"fmt"
	"homejobs/src/types"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// const dsn = "host=localhost user=postgres password=password dbname=homejobs port=5432 sslmode=disable TimeZone=Asia/Manila"

type Config struct {
	Env  types.Environment `envconfig:"API_ENV" default:"local"`
	Host string            `envconfig:"APP_HOST"`
	Port string            `envconfig:"PORT" default:"9090"`

	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     string `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"postgres"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"homejobs"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSLMODE" default:"disable"`
	DatabaseTimezone string `envconfig:"DATABASE_TIMEZONE" default:"UTC"`

	RedisHost     string `envconfig:"REDIS_HOST"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	KafkaBroker string `envconfig:"KAFKA_BROKER"`
	KafkaTopic  string `envconfig:"KAFKA_TOPIC" default:"booking-events"`

	SNSTopicARN   string `envconfig:"SNS_TOPIC_ARN"`
	AWSIAMRoleARN string `envconfig:"AWS_IAM_ROLE_ARN"`

	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	JWTSecret           string `envconfig:"JWT_SECRET"`

	BidDefaultWindow time.Duration `envconfig:"BID_DEFAULT_WINDOW" default:"30m"`
	BidMaxWindow     time.Duration `envconfig:"BID_MAX_WINDOW" default:"2h"`
	BidSweepInterval time.Duration `envconfig:"BID_SWEEP_INTERVAL" default:"1m"`

	MaintenanceMode bool     `envconfig:"MAINTENANCE_MODE"`
	CorsOrigins     []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
	LogFile         string   `envconfig:"LOG_FILE" default:"logs/api.log"`
	AccessLogFile   string   `envconfig:"ACCESS_LOG_FILE" default:"logs/access.log"`
}

var (
	cfg     *Config
	cfgOnce sync.Once
	cfgErr  error
)

// Load reads the process environment once. The .env file, when used, must be
// loaded before the first call.
func Load() (*Config, error) {
	cfgOnce.Do(func() {
		var c Config
		if cfgErr = envconfig.Process("", &c); cfgErr != nil {
			return
		}
		cfg = &c
	})
	return cfg, cfgErr
}

// Get is Load for callers that cannot continue without configuration.
func Get() *Config {
	c, err := Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
	return c
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", c.DatabaseHost, c.DatabaseUser, c.DatabasePassword, c.DatabaseName, c.DatabasePort, c.DatabaseSSLMode, c.DatabaseTimezone)
}

func GetDSN() string {
	return Get().DSN()
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

const TIME_PARSE_FORMAT = "2006-01-02 15:04:05 -07:00"
