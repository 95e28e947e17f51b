// Package config resolves the enhancement core's configuration from the
// environment, following the same getEnv helper idiom the rest of the
// stack uses for anything reading process configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"textenhancer/internal/logging"
	"textenhancer/internal/providers"
)

// Config is the fully resolved configuration for one process.
type Config struct {
	Enhancement EnhancementConfig
	Providers   []providers.Config
	AuditSink   AuditSinkConfig
}

// EnhancementConfig holds the master switches for the Orchestrator.
type EnhancementConfig struct {
	Enabled                bool
	TimeoutSeconds         int
	MaxRetries             int
	UseVisionWhenAvailable bool
}

// AuditSinkConfig holds the options for the optional audit trail.
type AuditSinkConfig struct {
	Enabled           bool
	Backend           string // "memory" (default) | "redis" | "file"
	FilePathTemplate  string
	MaxSizeBytes      int64
	MaxFiles          int
	FlushInterval     time.Duration
	S3Bucket          string
	S3Region          string
	S3Prefix          string
	RedisAddress      string
}

// defaultPriorities is the fallback provider order used when
// PROVIDERS_PRIORITY is unset or fails to parse, matching the documented
// default order.
var defaultPriorities = map[string]int{
	"groq":     1,
	"deepseek": 2,
	"gemini":   3,
	"localllm": 4,
}

var knownProviders = []string{"groq", "deepseek", "gemini", "localllm"}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return strings.EqualFold(val, "true") || val == "1"
}

// parsePriorities parses a "name:priority,name:priority" string. Any
// malformed entry (bad separator, non-integer priority) discards the
// whole string and falls back to the documented default order, logging a
// warning rather than failing configuration load.
func parsePriorities(raw string) map[string]int {
	if strings.TrimSpace(raw) == "" {
		return defaultPriorities
	}

	out := make(map[string]int)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			logging.Warningf("malformed PROVIDERS_PRIORITY entry %q, falling back to default order", entry)
			return defaultPriorities
		}
		name := strings.TrimSpace(parts[0])
		priority, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			logging.Warningf("malformed PROVIDERS_PRIORITY entry %q, falling back to default order", entry)
			return defaultPriorities
		}
		out[name] = priority
	}
	if len(out) == 0 {
		return defaultPriorities
	}
	return out
}

func envKeyName(provider string) string {
	return strings.ToUpper(provider)
}

// resolveCredential reads <NAME>_API_KEY, or decrypts
// <NAME>_ENCRYPTED_CREDENTIAL via ENHANCEMENT_CREDENTIAL_KEY when set.
func resolveCredential(provider string) (string, error) {
	prefix := envKeyName(provider)

	if encrypted := os.Getenv(prefix + "_ENCRYPTED_CREDENTIAL"); encrypted != "" {
		keyB64 := os.Getenv("ENHANCEMENT_CREDENTIAL_KEY")
		if keyB64 == "" {
			return "", fmt.Errorf("%s_ENCRYPTED_CREDENTIAL set but ENHANCEMENT_CREDENTIAL_KEY is not", prefix)
		}
		enc, err := NewEncryptionFromBase64(keyB64)
		if err != nil {
			return "", fmt.Errorf("failed to build credential decryptor: %w", err)
		}
		plain, err := enc.Decrypt(encrypted)
		if err != nil {
			return "", fmt.Errorf("failed to decrypt %s_ENCRYPTED_CREDENTIAL: %w", prefix, err)
		}
		return plain, nil
	}

	return os.Getenv(prefix + "_API_KEY"), nil
}

// Load reads the enumerated options from the environment. A provider
// absent from PROVIDERS_PRIORITY or missing its credential (for cloud
// providers) is skipped with a warning; LocalLLM never requires a
// credential.
func Load() (*Config, error) {
	priorities := parsePriorities(getEnvString("PROVIDERS_PRIORITY", ""))

	var providerConfigs []providers.Config
	for _, name := range knownProviders {
		priority, listed := priorities[name]
		if !listed {
			logging.Warningf("provider %q absent from PROVIDERS_PRIORITY, disabling", name)
			continue
		}

		prefix := envKeyName(name)
		credential, err := resolveCredential(name)
		if err != nil {
			return nil, err
		}

		if name != "localllm" && credential == "" {
			logging.Warningf("provider %q has no credential configured, disabling", name)
			continue
		}

		baseURL := getEnvString(prefix+"_BASE_URL", defaultBaseURL(name))
		textModel := getEnvString(prefix+"_MODEL", defaultTextModel(name))
		visionModel := getEnvString(prefix+"_VISION_MODEL", defaultVisionModel(name))

		providerConfigs = append(providerConfigs, providers.Config{
			Name:        name,
			Enabled:     true,
			Credential:  credential,
			BaseURL:     baseURL,
			TextModel:   textModel,
			VisionModel: visionModel,
			Priority:    priority,
			Timeout:     float64(getEnvInt("ENHANCEMENT_TIMEOUT_SECONDS", 30)),
			MaxRetries:  getEnvInt("ENHANCEMENT_MAX_RETRIES", 2),
		})
	}

	cfg := &Config{
		Enhancement: EnhancementConfig{
			Enabled:                getEnvBool("ENHANCEMENT_ENABLED", true),
			TimeoutSeconds:         getEnvInt("ENHANCEMENT_TIMEOUT_SECONDS", 30),
			MaxRetries:             getEnvInt("ENHANCEMENT_MAX_RETRIES", 2),
			UseVisionWhenAvailable: getEnvBool("ENHANCEMENT_USE_VISION_WHEN_AVAILABLE", true),
		},
		Providers: providerConfigs,
		AuditSink: AuditSinkConfig{
			Enabled:          getEnvBool("AUDIT_SINK_ENABLED", false),
			Backend:          getEnvString("AUDIT_SINK_BACKEND", "memory"),
			FilePathTemplate: getEnvString("AUDIT_SINK_FILE_PATH_TEMPLATE", "./audit/enhancements-%s.jsonl"),
			MaxSizeBytes:     getEnvInt64("AUDIT_SINK_MAX_SIZE_BYTES", 10_485_760),
			MaxFiles:         getEnvInt("AUDIT_SINK_MAX_FILES", 5),
			FlushInterval:    getEnvDuration("AUDIT_SINK_FLUSH_INTERVAL", 60*time.Second),
			S3Bucket:         getEnvString("AUDIT_SINK_S3_BUCKET", ""),
			S3Region:         getEnvString("AUDIT_SINK_S3_REGION", "us-east-1"),
			S3Prefix:         getEnvString("AUDIT_SINK_S3_PREFIX", "audit/"),
			RedisAddress:     getEnvString("AUDIT_SINK_REDIS_ADDRESS", "localhost:6379"),
		},
	}

	return cfg, nil
}

func defaultBaseURL(name string) string {
	switch name {
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "deepseek":
		return "https://api.deepseek.com"
	case "gemini":
		return "https://generativelanguage.googleapis.com/v1beta"
	case "localllm":
		return "http://localhost:11434/api"
	default:
		return ""
	}
}

func defaultTextModel(name string) string {
	switch name {
	case "groq":
		return "llama-3.3-70b-versatile"
	case "deepseek":
		return "deepseek-chat"
	case "gemini":
		return "gemini-1.5-flash"
	case "localllm":
		return "llama3"
	default:
		return ""
	}
}

func defaultVisionModel(name string) string {
	switch name {
	case "groq":
		return "llama-3.2-11b-vision-preview"
	case "gemini":
		return "gemini-1.5-flash"
	default:
		return ""
	}
}
