package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port               int
	Domain             string
	AuthSecret         string
	DataDir            string
	MaxUploadSizeMB    int
	SweepInterval      time.Duration
	UploadConcurrency  int
	UploadChunkSizeMB  int
	FFmpegPath         string
	FFprobePath        string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "7891"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	maxUploadSizeMB, err := strconv.Atoi(getEnv("MAX_UPLOAD_SIZE_MB", "200"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_SIZE_MB: %w", err)
	}

	sweepInterval, err := time.ParseDuration(getEnv("SWEEP_INTERVAL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}

	uploadConcurrency, err := strconv.Atoi(getEnv("UPLOAD_CONCURRENCY", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_CONCURRENCY: %w", err)
	}

	uploadChunkSizeMB, err := strconv.Atoi(getEnv("UPLOAD_CHUNK_SIZE_MB", "16"))
	if err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_CHUNK_SIZE_MB: %w", err)
	}

	authSecret := os.Getenv("AUTH_SECRET")
	if authSecret == "" {
		return nil, fmt.Errorf("AUTH_SECRET is required")
	}

	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	if clientID == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID is required")
	}
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if clientSecret == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_SECRET is required")
	}

	domain := getEnv("DOMAIN", "localhost:7891")

	return &Config{
		Port:               port,
		Domain:             domain,
		AuthSecret:         authSecret,
		DataDir:            getEnv("DATA_DIR", "/data"),
		MaxUploadSizeMB:    maxUploadSizeMB,
		SweepInterval:      sweepInterval,
		UploadConcurrency:  uploadConcurrency,
		UploadChunkSizeMB:  uploadChunkSizeMB,
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		GoogleClientID:     clientID,
		GoogleClientSecret: clientSecret,
		// Google redirects here cross-site, so the target must be the
		// frontend callback page, not a cookie-authenticated API route:
		// SameSite=Strict means the session cookie never rides along on the
		// redirect. The page then relays the code to the API same-site.
		GoogleRedirectURL: getEnv("GOOGLE_REDIRECT_URL", "http://"+domain+"/auth/google/callback"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
