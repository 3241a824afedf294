package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	settings, err := load(viper.New(), []string{dir})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
	assert.Equal(t, "ExamWatch", settings.Main.Name)
	assert.Equal(t, "8000", settings.WebServer.Port)
	assert.True(t, settings.Output.SQLite.Enabled)
	assert.InDelta(t, DefaultNoFaceConfidence, settings.Detection.NoFaceConfidence, 1e-9)
	assert.InDelta(t, DefaultMultipleFacesConfidence, settings.Detection.MultipleFacesConfidence, 1e-9)
	assert.Equal(t, DefaultCameraCacheTTL, settings.Query.CameraCacheTTL)
	assert.Equal(t, 40_000_000, settings.Detection.MaxPixels)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)

	// the written file must load back to the same values
	reloaded, err := load(viper.New(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, settings.Detection, reloaded.Detection)
	assert.Equal(t, settings.Query, reloaded.Query)
}

func TestLoadReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	yamlData := `
webserver:
  enabled: true
  port: "9090"
output:
  sqlite:
    enabled: false
  mysql:
    enabled: true
    host: db.internal
    database: proctoring
query:
  cameracachettl: 0s
  defaultlimit: 25
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlData), 0o600))

	settings, err := load(viper.New(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, "9090", settings.WebServer.Port)
	assert.True(t, settings.Output.MySQL.Enabled)
	assert.Equal(t, "db.internal", settings.Output.MySQL.Host)
	assert.Equal(t, time.Duration(0), settings.Query.CameraCacheTTL)
	assert.Equal(t, 25, settings.Query.DefaultLimit)
	assert.Contains(t, settings.Output.MySQL.DSN(), "@tcp(db.internal:3306)/proctoring")
}

func TestEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EXAMWATCH_PORT", "8443")
	t.Setenv("EXAMWATCH_NOFACE_CONFIDENCE", "0.8")
	t.Setenv("EXAMWATCH_MQTT_CLIENTID", "cam-gateway")

	settings, err := load(viper.New(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, "8443", settings.WebServer.Port)
	assert.InDelta(t, 0.8, settings.Detection.NoFaceConfidence, 1e-9)
	assert.Equal(t, "cam-gateway", settings.MQTT.ClientID)
}

func TestInvalidEnvironmentValueIsReported(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EXAMWATCH_NOFACE_CONFIDENCE", "1.5")

	_, err := load(viper.New(), []string{dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXAMWATCH_NOFACE_CONFIDENCE")
}

func validSettings() *Settings {
	return &Settings{
		WebServer: WebServerSettings{Enabled: true, Port: "8000"},
		Output:    OutputSettings{SQLite: SQLiteSettings{Enabled: true, Path: "x.db"}},
		Detection: DetectionSettings{
			NoFaceConfidence:        0.95,
			MultipleFacesConfidence: 0.9,
			GridSize:                4,
			MinRegionCells:          12,
			MinAspect:               0.6,
			MaxAspect:               2.5,
		},
		Query: QuerySettings{CameraCacheTTL: time.Second, DefaultLimit: 50},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"bad port", func(s *Settings) { s.WebServer.Port = "http" }, "webserver.port"},
		{"negative connection cap", func(s *Settings) { s.WebServer.MaxConnections = -1 }, "maxconnections"},
		{"no store", func(s *Settings) { s.Output.SQLite.Enabled = false }, "no event store"},
		{"confidence above one", func(s *Settings) { s.Detection.NoFaceConfidence = 1.2 }, "nofaceconfidence"},
		{"negative pixel limit", func(s *Settings) { s.Detection.MaxPixels = -1 }, "maxpixels"},
		{"inverted aspect", func(s *Settings) { s.Detection.MaxAspect = 0.1 }, "minaspect"},
		{"zero limit", func(s *Settings) { s.Query.DefaultLimit = 0 }, "defaultlimit"},
		{"kafka without topic", func(s *Settings) {
			s.Kafka = KafkaSettings{Enabled: true, Brokers: []string{"k:9092"}, GroupID: "g"}
		}, "kafka"},
		{"mqtt bad qos", func(s *Settings) {
			s.MQTT = MQTTSettings{Enabled: true, Broker: "tcp://b:1883", Topic: "t", QoS: 3}
		}, "mqtt.qos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadResolvesSecrets(t *testing.T) {
	dir := t.TempDir()
	pwFile := filepath.Join(dir, "mysql_password")
	require.NoError(t, os.WriteFile(pwFile, []byte("from-file\n"), 0o600))
	t.Setenv("EW_TEST_MQTT_PASSWORD", "from-env")

	yamlData := `
output:
  sqlite:
    enabled: false
  mysql:
    enabled: true
    host: db.internal
    database: proctoring
    password: ignored
    passwordfile: ` + pwFile + `
mqtt:
  enabled: true
  broker: tcp://broker:1883
  topic: exam
  password: ${EW_TEST_MQTT_PASSWORD}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlData), 0o600))

	settings, err := load(viper.New(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, "from-file", settings.Output.MySQL.Password)
	assert.Equal(t, "from-env", settings.MQTT.Password)
}

func TestLoadReportsMissingSecretFile(t *testing.T) {
	dir := t.TempDir()
	yamlData := `
evidence:
  enabled: true
  endpoint: minio:9000
  bucket: evidence
  secretkeyfile: ` + filepath.Join(dir, "missing") + `
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlData), 0o600))

	_, err := load(viper.New(), []string{dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evidence.secretkey")
}
