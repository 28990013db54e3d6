package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Summary returns the non-secret settings that are safe to expose on the
// health endpoint.
func Summary() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"app_version":        Global.App.Version,
		"app_env":            Global.App.Environment,
		"app_debug":          Global.App.Debug,
		"db_driver":          Global.Database.Driver,
		"valkey_enabled":     Global.Database.ValkeyEnabled,
		"gupshup_configured": Global.Gupshup.Configured(),
		"gupshup_app":        Global.Gupshup.AppName,
		"amo_configured":     Global.Amo.Configured(),
		"amo_subdomain":      Global.Amo.Subdomain,
		"amo_token_store":    Global.Amo.TokenStore,
		"http_timeout":       Global.HTTP.Timeout.String(),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}

// getEnvDuration accepts Go durations ("45s") or a bare number of milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
