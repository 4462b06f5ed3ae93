package config

import (
	"os"
	"strconv"
)

type LinkedIn struct {
	AccessToken string
	AuthorURN   string
}

type Twitter struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
}

type Instagram struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
}

type Config struct {
	PostgresURI    string
	RedisURI       string
	ListenAddr     string
	WorkerCount    int
	PublishTimeout int // seconds, per platform call
	LinkedIn       LinkedIn
	Twitter        Twitter
	Instagram      Instagram
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI:    getEnv("POSTGRES_URI", ""),
		RedisURI:       getEnv("REDIS_URI", "127.0.0.1:6379"),
		ListenAddr:     getEnv("LISTEN_ADDR", ":3000"),
		WorkerCount:    getEnvInt("WORKER_COUNT", 20),
		PublishTimeout: getEnvInt("PUBLISH_TIMEOUT", 10),
		LinkedIn: LinkedIn{
			AccessToken: getEnv("LINKEDIN_ACCESS_TOKEN", ""),
			AuthorURN:   getEnv("LINKEDIN_AUTHOR_URN", "urn:li:person:me"),
		},
		Twitter: Twitter{
			APIKey:       getEnv("TWITTER_API_KEY", ""),
			APISecret:    getEnv("TWITTER_API_SECRET", ""),
			AccessToken:  getEnv("TWITTER_ACCESS_TOKEN", ""),
			AccessSecret: getEnv("TWITTER_ACCESS_SECRET", ""),
		},
		Instagram: Instagram{
			ClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
			ClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
			AccessToken:  getEnv("INSTAGRAM_ACCESS_TOKEN", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
