package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is the settings file looked up in the working directory.
const DefaultPath = "appsettings.toml"

type Config struct {
	SubscriptionID string `toml:"subscription_id"`
	ResourceGroup  string `toml:"resource_group"`
	AccountName    string `toml:"account_name"`
	AadTenantID    string `toml:"aad_tenant_id"`
	AadClientID    string `toml:"aad_client_id"`
	AadSecret      string `toml:"aad_secret"`
	AadEndpoint    string `toml:"aad_endpoint"`
	ArmEndpoint    string `toml:"arm_endpoint"`
	ArmAadAudience string `toml:"arm_aad_audience"`

	InputFile     string `toml:"input_file"`
	OverlayFile   string `toml:"overlay_file"`
	OutputDir     string `toml:"output_dir"`
	TransformName string `toml:"transform_name"`
	OverlayLabel  string `toml:"overlay_label"`

	PollIntervalSeconds    int `toml:"poll_interval_seconds"`
	PollMaxIntervalSeconds int `toml:"poll_max_interval_seconds"`
	PollTimeoutMinutes     int `toml:"poll_timeout_minutes"`
	UploadSASHours         int `toml:"upload_sas_hours"`
	DownloadSASHours       int `toml:"download_sas_hours"`
	DownloadConcurrency    int `toml:"download_concurrency"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	DatabaseURL       string `toml:"database_url"`
	RedisAddr         string `toml:"redis_addr"`
	RedisDB           int    `toml:"redis_db"`
	WorkerConcurrency int    `toml:"worker_concurrency"`
	WorkerLockPath    string `toml:"worker_lock_path"`
	JobTimeoutMinutes int    `toml:"job_timeout_minutes"`
	HTTPAddr          string `toml:"http_addr"`
	APIToken          string `toml:"api_token"`
	APIDataDir        string `toml:"api_data_dir"`

	S3Endpoint           string `toml:"s3_endpoint"`
	S3PublicEndpoint     string `toml:"s3_public_endpoint"`
	S3AccessKey          string `toml:"s3_access_key"`
	S3SecretKey          string `toml:"s3_secret_key"`
	S3Bucket             string `toml:"s3_bucket"`
	S3Region             string `toml:"s3_region"`
	S3UsePathStyle       bool   `toml:"s3_use_path_style"`
	PublishURLTTLMinutes int    `toml:"publish_url_ttl_minutes"`
}

// Default returns the settings used when neither the file nor the
// environment provides a value.
func Default() Config {
	return Config{
		AadEndpoint:    "https://login.microsoftonline.com/",
		ArmEndpoint:    "https://management.azure.com/",
		ArmAadAudience: "https://management.core.windows.net/",

		InputFile:     "ignite.mp4",
		OverlayFile:   "AMSLogo.png",
		OutputDir:     "Output",
		TransformName: "OverlayTransform",
		OverlayLabel:  "logo",

		PollIntervalSeconds:    10,
		PollMaxIntervalSeconds: 60,
		PollTimeoutMinutes:     120,
		UploadSASHours:         2,
		DownloadSASHours:       1,

		LogLevel:  "info",
		LogFormat: "console",

		RedisAddr:         "localhost:6379",
		WorkerConcurrency: 1,
		WorkerLockPath:    "overlay-worker.lock",
		JobTimeoutMinutes: 180,
		HTTPAddr:          ":8080",
		APIDataDir:        "data",

		S3Region:             "us-east-1",
		S3UsePathStyle:       true,
		PublishURLTTLMinutes: 60,
	}
}

// Load builds the configuration from defaults, the optional settings file at
// path (DefaultPath when empty) and the process environment, in that order.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("open config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.SubscriptionID = getEnv("AZURE_SUBSCRIPTION_ID", c.SubscriptionID)
	c.ResourceGroup = getEnv("AZURE_RESOURCE_GROUP", c.ResourceGroup)
	c.AccountName = getEnv("AZURE_MEDIA_SERVICES_ACCOUNT_NAME", c.AccountName)
	c.AadTenantID = getEnv("AZURE_TENANT_ID", c.AadTenantID)
	c.AadClientID = getEnv("AZURE_CLIENT_ID", c.AadClientID)
	c.AadSecret = getEnv("AZURE_CLIENT_SECRET", c.AadSecret)
	c.AadEndpoint = getEnv("AZURE_AAD_ENDPOINT", c.AadEndpoint)
	c.ArmEndpoint = getEnv("AZURE_ARM_ENDPOINT", c.ArmEndpoint)
	c.ArmAadAudience = getEnv("AZURE_ARM_AAD_AUDIENCE", c.ArmAadAudience)

	c.InputFile = getEnv("INPUT_FILE", c.InputFile)
	c.OverlayFile = getEnv("OVERLAY_FILE", c.OverlayFile)
	c.OutputDir = getEnv("OUTPUT_DIR", c.OutputDir)
	c.TransformName = getEnv("TRANSFORM_NAME", c.TransformName)
	c.OverlayLabel = getEnv("OVERLAY_LABEL", c.OverlayLabel)

	c.PollIntervalSeconds = getEnvInt("POLL_INTERVAL_SECONDS", c.PollIntervalSeconds)
	c.PollMaxIntervalSeconds = getEnvInt("POLL_MAX_INTERVAL_SECONDS", c.PollMaxIntervalSeconds)
	c.PollTimeoutMinutes = getEnvInt("POLL_TIMEOUT_MINUTES", c.PollTimeoutMinutes)
	c.UploadSASHours = getEnvInt("UPLOAD_SAS_HOURS", c.UploadSASHours)
	c.DownloadSASHours = getEnvInt("DOWNLOAD_SAS_HOURS", c.DownloadSASHours)
	c.DownloadConcurrency = getEnvInt("DOWNLOAD_CONCURRENCY", c.DownloadConcurrency)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", c.WorkerConcurrency)
	c.WorkerLockPath = getEnv("WORKER_LOCK_PATH", c.WorkerLockPath)
	c.JobTimeoutMinutes = getEnvInt("JOB_TIMEOUT_MINUTES", c.JobTimeoutMinutes)
	c.HTTPAddr = getEnv("APP_HTTP_ADDR", c.HTTPAddr)
	c.APIToken = getEnv("API_TOKEN", c.APIToken)
	c.APIDataDir = getEnv("API_DATA_DIR", c.APIDataDir)

	c.S3Endpoint = getEnv("S3_ENDPOINT", c.S3Endpoint)
	c.S3PublicEndpoint = getEnv("S3_PUBLIC_ENDPOINT", c.S3PublicEndpoint)
	c.S3AccessKey = getEnv("S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = getEnv("S3_SECRET_KEY", c.S3SecretKey)
	c.S3Bucket = getEnv("S3_BUCKET", c.S3Bucket)
	c.S3Region = getEnv("S3_REGION", c.S3Region)
	c.S3UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", c.S3UsePathStyle)
	c.PublishURLTTLMinutes = getEnvInt("PUBLISH_URL_TTL_MINUTES", c.PublishURLTTLMinutes)
}

// MissingSettingsError lists the Azure settings that must be filled in
// before the service can be reached.
type MissingSettingsError struct {
	Keys []string
}

func (e *MissingSettingsError) Error() string {
	return "missing required settings: " + strings.Join(e.Keys, ", ")
}

// ValidateAzure checks the settings needed to authenticate and address the
// media services account.
func (c Config) ValidateAzure() error {
	required := []struct {
		key   string
		value string
	}{
		{"subscription_id", c.SubscriptionID},
		{"resource_group", c.ResourceGroup},
		{"account_name", c.AccountName},
		{"aad_tenant_id", c.AadTenantID},
		{"aad_client_id", c.AadClientID},
		{"aad_secret", c.AadSecret},
		{"arm_endpoint", c.ArmEndpoint},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return &MissingSettingsError{Keys: missing}
	}
	return nil
}

func (c Config) PollInterval() time.Duration {
	return seconds(c.PollIntervalSeconds, 10)
}

func (c Config) PollMaxInterval() time.Duration {
	return seconds(c.PollMaxIntervalSeconds, 60)
}

func (c Config) PollTimeout() time.Duration {
	return minutes(c.PollTimeoutMinutes, 120)
}

func (c Config) UploadSASTTL() time.Duration {
	return hours(c.UploadSASHours, 2)
}

func (c Config) DownloadSASTTL() time.Duration {
	return hours(c.DownloadSASHours, 1)
}

func (c Config) JobTimeout() time.Duration {
	return minutes(c.JobTimeoutMinutes, 180)
}

func (c Config) PublishURLTTL() time.Duration {
	return minutes(c.PublishURLTTLMinutes, 60)
}

// PublishEnabled reports whether downloaded results are copied to S3.
func (c Config) PublishEnabled() bool {
	return strings.TrimSpace(c.S3Endpoint) != "" && strings.TrimSpace(c.S3Bucket) != ""
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

func minutes(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Minute
}

func hours(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Hour
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

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}
