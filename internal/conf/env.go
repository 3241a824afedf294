// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every automatically bound environment variable, e.g.
// EXAMWATCH_WEBSERVER_PORT for webserver.port.
const EnvPrefix = "EXAMWATCH"

type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

// getEnvBindings lists variables with short names used by container setups.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"webserver.port", "EXAMWATCH_PORT", validateEnvPort},
		{"output.mysql.enabled", "EXAMWATCH_MYSQL_ENABLED", validateEnvBool},
		{"output.mysql.host", "EXAMWATCH_MYSQL_HOST", nil},
		{"output.mysql.port", "EXAMWATCH_MYSQL_PORT", validateEnvPort},
		{"output.mysql.username", "EXAMWATCH_MYSQL_USER", nil},
		{"output.mysql.password", "EXAMWATCH_MYSQL_PASSWORD", nil},
		{"output.mysql.database", "EXAMWATCH_MYSQL_DATABASE", nil},
		{"output.sqlite.path", "EXAMWATCH_SQLITE_PATH", nil},
		{"detection.nofaceconfidence", "EXAMWATCH_NOFACE_CONFIDENCE", validateEnvConfidence},
		{"detection.multiplefacesconfidence", "EXAMWATCH_MULTIPLEFACES_CONFIDENCE", validateEnvConfidence},
		{"mqtt.broker", "EXAMWATCH_MQTT_BROKER", validateEnvURL},
		{"evidence.accesskey", "EXAMWATCH_EVIDENCE_ACCESS_KEY", nil},
		{"evidence.secretkey", "EXAMWATCH_EVIDENCE_SECRET_KEY", nil},
		{"telemetry.sentrydsn", "EXAMWATCH_SENTRY_DSN", nil},
	}
}

func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvConfidence(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 || f > 1 {
		return fmt.Errorf("must be a number between 0 and 1")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be a URL such as tcp://host:1883")
	}
	return nil
}

// configureEnvironmentVariables enables EXAMWATCH_* overrides for every key
// plus the explicit short-name bindings.
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return bindEnvVars(v)
}
