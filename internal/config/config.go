package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConf struct {
	Env             string `mapstructure:"env"`
	Name            string `mapstructure:"name"`
	Port            int    `mapstructure:"port"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
	ReadTimeout     int    `mapstructure:"read_timeout_seconds"`
	WriteTimeout    int    `mapstructure:"write_timeout_seconds"`
}

type StoreConf struct {
	Driver string `mapstructure:"driver"` // mongo | memory
}

type MongoConf struct {
	URI              string `mapstructure:"uri"`
	Database         string `mapstructure:"database"`
	Collection       string `mapstructure:"collection"`
	OpTimeoutSeconds int    `mapstructure:"op_timeout_seconds"`
}

type RedisConf struct {
	Addr            string `mapstructure:"addr"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	Prefix          string `mapstructure:"prefix"`
	UserCacheTTLSec int    `mapstructure:"user_cache_ttl_seconds"`
}

type KafkaConf struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

type AWSConf struct {
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`
	Endpoint string `mapstructure:"endpoint"`
}

type S3Conf struct {
	PublicRead bool   `mapstructure:"public_read"`
	PresignTTL int    `mapstructure:"presign_ttl_seconds"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

type MediaConf struct {
	MaxUploadMB    int  `mapstructure:"max_upload_mb"`
	Thumbnails     bool `mapstructure:"thumbnails"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
}

type BreakerConf struct {
	MaxFailures uint32 `mapstructure:"max_failures"`
	IntervalSec int    `mapstructure:"interval_seconds"`
	TimeoutSec  int    `mapstructure:"timeout_seconds"`
}

type UsersConf struct {
	BaseURL        string      `mapstructure:"base_url"`
	TimeoutSeconds int         `mapstructure:"timeout_seconds"`
	Breaker        BreakerConf `mapstructure:"breaker"`
}

type JWTConf struct {
	Alg           string `mapstructure:"alg"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	HSSecret      string `mapstructure:"hs_secret"`
}

type StoriesConf struct {
	DefaultRadiusMeters float64 `mapstructure:"default_radius_meters"`
	MaxNearbyResults    int64   `mapstructure:"max_nearby_results"`
}

type RateLimitConf struct {
	PerMinute      int `mapstructure:"per_minute"`
	CreatesPerHour int `mapstructure:"creates_per_hour"`
}

type ConsulConf struct {
	Addr           string `mapstructure:"addr"`
	ServiceID      string `mapstructure:"service_id"`
	ServiceAddress string `mapstructure:"service_address"`
}

type Config struct {
	App       AppConf       `mapstructure:"app"`
	Store     StoreConf     `mapstructure:"store"`
	Mongo     MongoConf     `mapstructure:"mongodb"`
	Redis     RedisConf     `mapstructure:"redis"`
	Kafka     KafkaConf     `mapstructure:"kafka"`
	AWS       AWSConf       `mapstructure:"aws"`
	S3        S3Conf        `mapstructure:"s3"`
	Media     MediaConf     `mapstructure:"media"`
	Users     UsersConf     `mapstructure:"users"`
	JWT       JWTConf       `mapstructure:"jwt"`
	Stories   StoriesConf   `mapstructure:"stories"`
	RateLimit RateLimitConf `mapstructure:"ratelimit"`
	Consul    ConsulConf    `mapstructure:"consul"`
	Log       struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	// derived
	ShutdownTimeout time.Duration `mapstructure:"-"`
	ReadTimeout     time.Duration `mapstructure:"-"`
	WriteTimeout    time.Duration `mapstructure:"-"`
	StoreOpTimeout  time.Duration `mapstructure:"-"`
	UserCacheTTL    time.Duration `mapstructure:"-"`
	UsersTimeout    time.Duration `mapstructure:"-"`
	MediaTimeout    time.Duration `mapstructure:"-"`
	KafkaTimeout    time.Duration `mapstructure:"-"`
	PresignTTL      time.Duration `mapstructure:"-"`
	MaxUploadBytes  int64         `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("app.name", "story-service")
	v.SetDefault("app.port", 3004)
	v.SetDefault("app.shutdown_seconds", 15)
	v.SetDefault("app.read_timeout_seconds", 30)
	v.SetDefault("app.write_timeout_seconds", 30)

	v.SetDefault("store.driver", "mongo")

	v.SetDefault("mongodb.uri", "")
	v.SetDefault("mongodb.database", "beunreal")
	v.SetDefault("mongodb.collection", "stories")
	v.SetDefault("mongodb.op_timeout_seconds", 3)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "story")
	v.SetDefault("redis.user_cache_ttl_seconds", 300)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "stories.events")
	v.SetDefault("kafka.timeout_seconds", 2)

	v.SetDefault("aws.region", "")
	v.SetDefault("aws.bucket", "")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("s3.public_read", true)
	v.SetDefault("s3.presign_ttl_seconds", 25*60*60)
	v.SetDefault("s3.key_prefix", "stories")

	v.SetDefault("media.max_upload_mb", 10)
	v.SetDefault("media.thumbnails", true)
	v.SetDefault("media.timeout_seconds", 30)

	v.SetDefault("users.base_url", "")
	v.SetDefault("users.timeout_seconds", 3)
	v.SetDefault("users.breaker.max_failures", 5)
	v.SetDefault("users.breaker.interval_seconds", 60)
	v.SetDefault("users.breaker.timeout_seconds", 30)

	v.SetDefault("jwt.alg", "HS256")
	v.SetDefault("jwt.public_key_path", "")
	v.SetDefault("jwt.hs_secret", "")

	v.SetDefault("stories.default_radius_meters", 5000.0)
	v.SetDefault("stories.max_nearby_results", 200)

	v.SetDefault("ratelimit.per_minute", 120)
	v.SetDefault("ratelimit.creates_per_hour", 30)

	v.SetDefault("consul.addr", "")
	v.SetDefault("consul.service_id", "")
	v.SetDefault("consul.service_address", "")

	v.SetDefault("log.level", "info")
}

// Load reads path (optional: a missing file falls back to defaults) and
// applies STORY_* environment overrides, e.g. STORY_MONGODB_URI.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("STORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.derive()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) derive() {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	c.ShutdownTimeout = sec(c.App.ShutdownSeconds)
	c.ReadTimeout = sec(c.App.ReadTimeout)
	c.WriteTimeout = sec(c.App.WriteTimeout)
	c.StoreOpTimeout = sec(c.Mongo.OpTimeoutSeconds)
	c.UserCacheTTL = sec(c.Redis.UserCacheTTLSec)
	c.UsersTimeout = sec(c.Users.TimeoutSeconds)
	c.MediaTimeout = sec(c.Media.TimeoutSeconds)
	c.KafkaTimeout = sec(c.Kafka.TimeoutSeconds)
	c.PresignTTL = sec(c.S3.PresignTTL)
	c.MaxUploadBytes = int64(c.Media.MaxUploadMB) * 1024 * 1024

	// brokers from env arrive as one comma separated string
	var brokers []string
	for _, b := range c.Kafka.Brokers {
		for _, p := range strings.Split(b, ",") {
			if p = strings.TrimSpace(p); p != "" {
				brokers = append(brokers, p)
			}
		}
	}
	c.Kafka.Brokers = brokers
}

func (c *Config) validate() error {
	if c.App.Port <= 0 {
		return errors.New("app.port missing or invalid")
	}
	switch c.Store.Driver {
	case "mongo":
		if c.Mongo.URI == "" {
			return errors.New("mongodb.uri missing")
		}
		if c.Mongo.Database == "" || c.Mongo.Collection == "" {
			return errors.New("mongodb.database and mongodb.collection required")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver %q invalid (use mongo or memory)", c.Store.Driver)
	}
	switch strings.ToUpper(c.JWT.Alg) {
	case "RS256":
		if c.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path required for RS256")
		}
	case "HS256":
		if c.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret required for HS256")
		}
	default:
		return errors.New("invalid jwt.alg (use RS256 or HS256)")
	}
	if c.Stories.DefaultRadiusMeters <= 0 {
		return errors.New("stories.default_radius_meters must be positive")
	}
	if c.Media.MaxUploadMB <= 0 {
		return errors.New("media.max_upload_mb must be positive")
	}
	if c.AWS.Bucket != "" && c.AWS.Region == "" {
		return errors.New("aws.region required when aws.bucket is set")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c *Config) Development() bool {
	return c.App.Env == "development"
}
