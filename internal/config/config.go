package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServiceName    string
	Env            string
	Addr           string
	DBPath         string
	PaymentTimeout time.Duration
	// PaymentSuccessRate only applies to the simulated gateway.
	PaymentSuccessRate float64
}

func Load() *Config {
	return &Config{
		ServiceName:        getEnv("SERVICE_NAME", "recyclemart"),
		Env:                getEnv("ENV", "dev"),
		Addr:               getEnv("ADDR", ":8080"),
		DBPath:             getEnv("DB_PATH", ""),
		PaymentTimeout:     getDuration("PAYMENT_TIMEOUT", 5*time.Second),
		PaymentSuccessRate: getFloat("PAYMENT_SUCCESS_RATE", 0.7),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
