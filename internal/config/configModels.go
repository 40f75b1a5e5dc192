package config

import "time"

type Config struct {
	Env             string           `yaml:"env" env:"ENV" env-default:"local"`
	HttpServer      HttpServerConfig `yaml:"httpServer"`
	DBConfig        DBConfig         `yaml:"db"`
	RedisConfig     RedisConfig      `yaml:"redis"`
	SchedulerConfig SchedulerConfig  `yaml:"scheduler"`
	Normalizer      NormalizerConfig `yaml:"normalizer"`
	Reconciler      ReconcilerConfig `yaml:"reconciler"`
	BotConfig       BotConfig        `yaml:"bot"`
	AI              AIConfig         `yaml:"ai"`
	Telemetry       TelemetryConfig  `yaml:"telemetry"`
	Sources         []SourceConfig   `yaml:"sources"`
	SourcesFilePath string           `yaml:"sourcesFilePath" env:"SOURCES_FILEPATH" env-default:""`
	ConfigFilePath  string           `yaml:"configFilePath" env:"CONFIG_FILEPATH" env-default:""`
	ConfigFileName  string           `yaml:"configFileName" env:"CONFIG_FILENAME" env-default:""`
	configPath      string
}

type HttpServerConfig struct {
	Address string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost"`
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	Timeout time.Duration `yaml:"timeout" env-default:"5s"`

	// Secret signs admin JWTs.
	Secret string `yaml:"secret" env:"HTTP_SECRET" env-default:"secret"`

	// CronSecret guards the scrape trigger. Empty disables the check.
	CronSecret string `yaml:"cronSecret" env:"CRON_SECRET" env-default:""`
}

type DBConfig struct {
	Driver       string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"` // postgres | memory
	Host         string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port         string `yaml:"port" env:"DB_PORT" env-default:"5432"`
	Name         string `yaml:"name" env:"DB_NAME" env-default:"postgres"`
	User         string `yaml:"user" env:"DB_USER" env-default:"user"`
	Password     string `yaml:"password" env:"DB_PASSWORD" env-default:"password"`
	SSLMode      string `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
	MaxOpenConns int    `yaml:"maxOpenConns" env:"DB_MAX_OPEN_CONNS" env-default:"10"`
}

type RedisConfig struct {
	Address  string        `yaml:"address" env:"REDIS_ADDRESS" env-default:""` // empty disables the distributed lock
	Password string        `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Prefix   string        `yaml:"prefix" env-default:"eventsCatalog:lock:"`
	LockTTL  time.Duration `yaml:"lockTTL" env:"REDIS_LOCK_TTL" env-default:"30m"`
	Timeout  time.Duration `yaml:"timeout" env-default:"5s"`
}

type SchedulerConfig struct {
	Interval    time.Duration `yaml:"interval" env:"SCHEDULER_INTERVAL" env-default:"6h"`
	Parallelism int           `yaml:"parallelism" env:"SCHEDULER_PARALLELISM" env-default:"1"`
	RunOnStart  bool          `yaml:"runOnStart" env:"SCHEDULER_RUN_ON_START" env-default:"true"`

	// SourceTimeout bounds one connector fetch, retries included.
	SourceTimeout time.Duration `yaml:"sourceTimeout" env:"SCHEDULER_SOURCE_TIMEOUT" env-default:"5m"`
}

type NormalizerConfig struct {
	DefaultCity string `yaml:"defaultCity" env:"DEFAULT_CITY" env-default:"Sydney"`
}

type ReconcilerConfig struct {
	// ImagePolicy: "carried" (image rides along with tracked changes) or "tracked" (image change alone counts).
	ImagePolicy string `yaml:"imagePolicy" env:"IMAGE_POLICY" env-default:"carried"`
}

type BotConfig struct {
	Enabled       bool     `yaml:"enabled" env:"TGBOT_ENABLED" env-default:"false"`
	Admins        []string `yaml:"admins"`
	NotifyChatIDs []int64  `yaml:"notifyChatIDs"`
	TgbotApiToken string   `yaml:"tgbot_apitoken" env:"TGBOT_APITOKEN" env-default:""`
	UpdateTimeout int      `yaml:"updateTimeout" env-default:"30"`
}

// AIConfig configures category enrichment for newly created events.
type AIConfig struct {
	Timeout       int     `yaml:"timeout" env:"AI_TIMEOUT" env-default:"120"` //in seconds
	ModelName     string  `yaml:"modelName" env:"AI_MODEL_NAME" env-default:""`
	AIApiToken    string  `yaml:"aiapitoken" env:"AI_API_TOKEN" env-default:""`
	MaxTokens     int     `yaml:"maxTokens" env-default:"1024"`
	Temperature   float32 `yaml:"temperature" env-default:"0.2"`
	JobBufferSize int     `yaml:"jobBufferSize" env:"AI_BUFFER_SIZE" env-default:"100"`
	WorkersCount  int     `yaml:"workersCount" env:"AI_WORKERS_COUNT" env-default:"1"`
}

type TelemetryConfig struct {
	Endpoint      string  `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:""`
	ServiceName   string  `yaml:"serviceName" env-default:"eventsCatalog"`
	Insecure      bool    `yaml:"insecure" env-default:"true"`
	SamplingRatio float64 `yaml:"samplingRatio" env-default:"1"`
}

// SourceConfig describes one upstream listing source.
type SourceConfig struct {
	Name         string        `yaml:"name"` // unique source name, stored with every event
	Type         string        `yaml:"type"` // ticketmaster | eventbrite | humanitix | predicthq | meetup | mec
	Enabled      *bool         `yaml:"enabled"`
	BaseURL      string        `yaml:"baseURL"`
	APIKey       string        `yaml:"apiKey"`
	APIKeyEnv    string        `yaml:"apiKeyEnv"` // env var holding the key, used when apiKey is empty
	APISecret    string        `yaml:"apiSecret"` // OAuth client secret (meetup)
	APISecretEnv string        `yaml:"apiSecretEnv"`
	TokenURL     string        `yaml:"tokenURL"`
	Query        string        `yaml:"query"` // keyword search, for sources that need one
	City         string        `yaml:"city"`
	CountryCode  string        `yaml:"countryCode"`
	PageSize     int           `yaml:"pageSize"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	Backoff      time.Duration `yaml:"backoff"`
	MaxBackoff   time.Duration `yaml:"maxBackoff"`
	Timezone     string        `yaml:"timezone"` // IANA zone for listings that print local times
}
