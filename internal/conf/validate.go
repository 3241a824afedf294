// conf/validate.go

package conf

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateWebServerSettings,
		validateOutputSettings,
		validateDetectionSettings,
		validateQuerySettings,
		validateIntegrationSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateWebServerSettings(s *Settings) error {
	if !s.WebServer.Enabled {
		return nil
	}
	port, err := strconv.Atoi(s.WebServer.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("webserver.port %q is not a valid port", s.WebServer.Port)
	}
	if s.WebServer.MaxConnections < 0 {
		return fmt.Errorf("webserver.maxconnections must not be negative")
	}
	if s.WebServer.RateLimit.Enabled && (s.WebServer.RateLimit.RPS <= 0 || s.WebServer.RateLimit.Burst < 1) {
		return fmt.Errorf("webserver.ratelimit requires rps > 0 and burst >= 1")
	}
	return nil
}

func validateOutputSettings(s *Settings) error {
	switch {
	case s.Output.MySQL.Enabled:
		if s.Output.MySQL.Host == "" || s.Output.MySQL.Database == "" {
			return fmt.Errorf("output.mysql requires host and database")
		}
	case s.Output.SQLite.Enabled:
		if s.Output.SQLite.Path == "" {
			return fmt.Errorf("output.sqlite.path must be set")
		}
	default:
		return fmt.Errorf("no event store enabled, enable output.sqlite or output.mysql")
	}
	return nil
}

func validateDetectionSettings(s *Settings) error {
	var errs []string
	d := &s.Detection

	if d.NoFaceConfidence < 0 || d.NoFaceConfidence > 1 {
		errs = append(errs, "detection.nofaceconfidence must be within [0,1]")
	}
	if d.MultipleFacesConfidence < 0 || d.MultipleFacesConfidence > 1 {
		errs = append(errs, "detection.multiplefacesconfidence must be within [0,1]")
	}
	if d.GridSize < 1 {
		errs = append(errs, "detection.gridsize must be at least 1")
	}
	if d.MinRegionCells < 1 {
		errs = append(errs, "detection.minregioncells must be at least 1")
	}
	if d.MaxPixels < 0 {
		errs = append(errs, "detection.maxpixels must not be negative")
	}
	if d.MinAspect <= 0 || d.MaxAspect < d.MinAspect {
		errs = append(errs, "detection.minaspect must be positive and not above detection.maxaspect")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, ", "))
	}
	return nil
}

func validateQuerySettings(s *Settings) error {
	if s.Query.CameraCacheTTL < 0 {
		return fmt.Errorf("query.cameracachettl must not be negative")
	}
	if s.Query.DefaultLimit < 1 {
		return fmt.Errorf("query.defaultlimit must be at least 1")
	}
	return nil
}

func validateIntegrationSettings(s *Settings) error {
	var errs []string

	if s.MQTT.Enabled {
		if s.MQTT.Broker == "" || s.MQTT.Topic == "" {
			errs = append(errs, "mqtt requires broker and topic")
		}
		if s.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1 or 2")
		}
	}
	if s.Kafka.Enabled && (len(s.Kafka.Brokers) == 0 || s.Kafka.Topic == "" || s.Kafka.GroupID == "") {
		errs = append(errs, "kafka requires brokers, topic and groupid")
	}
	if s.Evidence.Enabled && (s.Evidence.Endpoint == "" || s.Evidence.Bucket == "") {
		errs = append(errs, "evidence requires endpoint and bucket")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, ", "))
	}
	return nil
}
