package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const Prefix = "GYMTALK"

// Config is read from the environment. Every key may be given with or
// without the GYMTALK_ prefix, so GYMTALK_PORT and PORT both work.
type Config struct {
	Port     string `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	GinMode  string `envconfig:"GIN_MODE" default:"debug" validate:"oneof=debug release test"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	JWTSecret     string `envconfig:"JWT_SECRET" required:"true" validate:"required"`
	InternalToken string `envconfig:"INTERNAL_TOKEN"`

	StoreDriver   string `envconfig:"STORE_DRIVER" default:"mongo" validate:"oneof=mongo badger"`
	MongoURI      string `envconfig:"MONGODB_URI" default:"mongodb://127.0.0.1:27017" validate:"required_if=StoreDriver mongo"`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"gymtalk" validate:"required"`
	BadgerPath    string `envconfig:"BADGER_PATH" default:"data/messages" validate:"required_if=StoreDriver badger"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0" validate:"min=0"`
	EventsChannel string `envconfig:"EVENTS_CHANNEL" default:"gymtalk:domain-events"`

	PushTimeout       time.Duration `envconfig:"PUSH_TIMEOUT" default:"5s" validate:"gt=0"`
	ChannelBuffer     int           `envconfig:"CHANNEL_BUFFER" default:"256" validate:"min=1"`
	DirectoryCacheTTL time.Duration `envconfig:"DIRECTORY_CACHE_TTL" default:"30s" validate:"gt=0"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5500,http://127.0.0.1:5500"`
	RateLimit   int      `envconfig:"RATE_LIMIT" default:"60" validate:"min=1"`
}

// Load reads an optional .env file and then the process environment.
func Load(files ...string) (Config, error) {
	_ = godotenv.Load(files...)

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) Addr() string {
	return ":" + c.Port
}
