package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the server
type Config struct {
	Server  ServerConfig
	MongoDB MongoDBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Show    ShowConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
}

// MongoDBConfig holds MongoDB settings
type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis settings. An empty Addr disables the version
// cache; streams then poll the blob store directly.
type RedisConfig struct {
	Addr string
}

// AuthConfig holds the shared director credential and token secret
type AuthConfig struct {
	Username  string
	Password  string
	JWTSecret string
}

// ShowConfig tunes the state engine
type ShowConfig struct {
	EventID      string
	PollInterval time.Duration
}

// Load reads configuration from config.yaml (optional) and the
// environment.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine, environment variables carry it
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults() {
	viper.SetDefault("Server.Port", "8080")
	viper.SetDefault("MongoDB.URI", "mongodb://localhost:27017")
	viper.SetDefault("MongoDB.Database", "heartstage")
	viper.SetDefault("Redis.Addr", "localhost:6379")
	viper.SetDefault("Auth.Username", "director")
	viper.SetDefault("Auth.Password", "password123")
	viper.SetDefault("Auth.JWTSecret", "change-me-before-showtime")
	viper.SetDefault("Show.EventID", "main")
	viper.SetDefault("Show.PollInterval", 3*time.Second)
}
