// config.go: ExamWatch configuration structs and loading
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/logger"
	"github.com/examwatch/examwatch/internal/secrets"
)

const appDirName = "examwatch"

// MainSettings holds process-wide identity values.
type MainSettings struct {
	Name    string `yaml:"name"`
	Version string `yaml:"-" mapstructure:"-"` // set from build info at startup
}

// RateLimitSettings throttles frame submissions per client IP.
type RateLimitSettings struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`   // sustained requests per second
	Burst   int     `yaml:"burst"` // bucket size
}

// WebServerSettings configures the HTTP API.
type WebServerSettings struct {
	Enabled        bool              `yaml:"enabled"`
	Host           string            `yaml:"host"`
	Port           string            `yaml:"port"`
	StaticDir      string            `yaml:"staticdir"`      // dashboard assets, empty disables
	BodyLimit      string            `yaml:"bodylimit"`      // echo size string such as "10M"
	AllowOrigins   []string          `yaml:"alloworigins"`   // CORS origins
	MaxConnections int               `yaml:"maxconnections"` // concurrent connection cap, 0 is unlimited
	RateLimit      RateLimitSettings `yaml:"ratelimit"`
}

// SQLiteSettings configures the embedded store.
type SQLiteSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MySQLSettings configures the production store.
type MySQLSettings struct {
	Enabled      bool   `yaml:"enabled"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`     // may reference ${ENV_VAR}
	PasswordFile string `yaml:"passwordfile"` // replaces Password when set
	Database     string `yaml:"database"`
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
}

// OutputSettings selects the event store. MySQL wins when both are enabled.
type OutputSettings struct {
	SQLite SQLiteSettings `yaml:"sqlite"`
	MySQL  MySQLSettings  `yaml:"mysql"`
}

// DetectionSettings tunes the reference face-count detector.
type DetectionSettings struct {
	NoFaceConfidence        float64 `yaml:"nofaceconfidence"`
	MultipleFacesConfidence float64 `yaml:"multiplefacesconfidence"`
	GridSize                int     `yaml:"gridsize"` // downsampled cell edge in pixels
	MinRegionCells          int     `yaml:"minregioncells"`
	MinAspect               float64 `yaml:"minaspect"` // height/width lower bound
	MaxAspect               float64 `yaml:"maxaspect"` // height/width upper bound
	MaxPixels               int     `yaml:"maxpixels"` // decoded frame width*height bound
}

// QuerySettings configures the read path.
type QuerySettings struct {
	CameraCacheTTL time.Duration `yaml:"cameracachettl"` // 0 disables roster caching
	DefaultLimit   int           `yaml:"defaultlimit"`
}

// MQTTSettings configures fan-out of saved events.
type MQTTSettings struct {
	Enabled      bool   `yaml:"enabled"`
	Broker       string `yaml:"broker"`
	ClientID     string `yaml:"clientid"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"passwordfile"` // replaces Password when set
	Topic        string `yaml:"topic"`        // prefix; camera id is appended
	QoS          byte   `yaml:"qos"`
	Retain       bool   `yaml:"retain"`
}

// KafkaSettings configures streaming frame intake.
type KafkaSettings struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"groupid"`
	Version string   `yaml:"version"` // Kafka protocol version, empty for client default
}

// EvidenceSettings configures snapshot upload of frames that produced findings.
type EvidenceSettings struct {
	Enabled       bool   `yaml:"enabled"`
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"accesskey"`
	SecretKey     string `yaml:"secretkey"`
	SecretKeyFile string `yaml:"secretkeyfile"` // replaces SecretKey when set
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	UseSSL        bool   `yaml:"usessl"`
}

// TelemetrySettings configures metrics exposition and error reporting.
type TelemetrySettings struct {
	Enabled   bool   `yaml:"enabled"`   // expose /metrics
	SentryDSN string `yaml:"sentrydsn"` // empty disables error reporting
}

// Settings is the root configuration.
type Settings struct {
	Main      MainSettings         `yaml:"main"`
	Logging   logger.LoggingConfig `yaml:"logging"`
	WebServer WebServerSettings    `yaml:"webserver"`
	Output    OutputSettings       `yaml:"output"`
	Detection DetectionSettings    `yaml:"detection"`
	Query     QuerySettings        `yaml:"query"`
	MQTT      MQTTSettings         `yaml:"mqtt"`
	Kafka     KafkaSettings        `yaml:"kafka"`
	Evidence  EvidenceSettings     `yaml:"evidence"`
	Telemetry TelemetrySettings    `yaml:"telemetry"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads config.yaml and environment overrides into the global settings.
// A default config file is written when none exists.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return nil, err
	}

	settings, err := load(viper.GetViper(), configPaths)
	if err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// load is Load against an explicit viper instance and search path list.
func load(v *viper.Viper, configPaths []string) (*Settings, error) {
	if err := initViper(v, configPaths); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, fmt.Errorf("error resolving secrets: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// resolveSecrets replaces credential fields with the contents of their
// secret files or their expanded ${ENV} references. Disabled integrations
// are skipped.
func resolveSecrets(s *Settings) error {
	var fields []secrets.Field
	if s.Output.MySQL.Enabled {
		fields = append(fields, secrets.Field{Name: "output.mysql.password", FilePath: s.Output.MySQL.PasswordFile, Value: &s.Output.MySQL.Password})
	}
	if s.MQTT.Enabled {
		fields = append(fields, secrets.Field{Name: "mqtt.password", FilePath: s.MQTT.PasswordFile, Value: &s.MQTT.Password})
	}
	if s.Evidence.Enabled {
		fields = append(fields,
			secrets.Field{Name: "evidence.accesskey", Value: &s.Evidence.AccessKey},
			secrets.Field{Name: "evidence.secretkey", FilePath: s.Evidence.SecretKeyFile, Value: &s.Evidence.SecretKey})
	}
	return secrets.ResolveAll(fields...)
}

func initViper(v *viper.Viper, configPaths []string) error {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		return err
	}

	err := v.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(v, configPaths)
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig renders the current defaults to config.yaml in the
// first search path that can be written.
func createDefaultConfig(v *viper.Viper, configPaths []string) error {
	if len(configPaths) == 0 {
		return errors.Newf("no config paths to write default config to").
			Category(errors.CategoryConfiguration).
			Build()
	}

	defaults := &Settings{}
	if err := v.Unmarshal(defaults); err != nil {
		return fmt.Errorf("error building default config: %w", err)
	}

	var lastErr error
	for _, dir := range configPaths {
		configPath := filepath.Join(dir, "config.yaml")
		if err := SaveYAMLConfig(configPath, defaults); err != nil {
			lastErr = err
			continue
		}
		logger.Global().Module("config").Info("created default config file",
			logger.String("path", configPath))
		return v.ReadInConfig()
	}

	return errors.New(lastErr).
		Category(errors.CategoryFileIO).
		Context("operation", "write_default_config").
		Build()
}

// GetSettings returns the settings loaded by the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath through a temp file and rename.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempName := tempFile.Name()
	defer os.Remove(tempName) //nolint:errcheck // best-effort cleanup after rename

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPaths returns the config search paths. When a config.yaml
// already exists in one of them only that path is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "get_home_directory").
			Build()
	}

	configPaths := []string{
		".",
		filepath.Join(homeDir, ".config", appDirName),
	}
	if runtime.GOOS != "windows" {
		configPaths = append(configPaths, filepath.Join("/etc", appDirName))
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// ListenAddress returns host:port for the HTTP server.
func (w *WebServerSettings) ListenAddress() string {
	return w.Host + ":" + w.Port
}

// DSN returns the go-sql-driver/mysql data source name.
func (m *MySQLSettings) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		m.Username, m.Password, m.Host, m.Port, m.Database)
}
