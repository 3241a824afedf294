// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/examwatch/examwatch/internal/logger"
)

// Default values shared with the packages that consume them.
const (
	DefaultNoFaceConfidence        = 0.95
	DefaultMultipleFacesConfidence = 0.90
	DefaultCameraCacheTTL          = 10 * time.Second
	DefaultRecentLimit             = 50
)

func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("main.name", "ExamWatch")

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", true)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.host", "0.0.0.0")
	v.SetDefault("webserver.port", "8000")
	v.SetDefault("webserver.staticdir", "")
	v.SetDefault("webserver.bodylimit", "10M")
	v.SetDefault("webserver.alloworigins", []string{"*"})
	v.SetDefault("webserver.maxconnections", 0)
	v.SetDefault("webserver.ratelimit.enabled", false)
	v.SetDefault("webserver.ratelimit.rps", 10.0)
	v.SetDefault("webserver.ratelimit.burst", 20)

	v.SetDefault("output.sqlite.enabled", true)
	v.SetDefault("output.sqlite.path", "examwatch.db")
	v.SetDefault("output.mysql.enabled", false)
	v.SetDefault("output.mysql.username", "examwatch")
	v.SetDefault("output.mysql.password", "")
	v.SetDefault("output.mysql.database", "examwatch")
	v.SetDefault("output.mysql.host", "localhost")
	v.SetDefault("output.mysql.port", "3306")

	v.SetDefault("detection.nofaceconfidence", DefaultNoFaceConfidence)
	v.SetDefault("detection.multiplefacesconfidence", DefaultMultipleFacesConfidence)
	v.SetDefault("detection.gridsize", 4)
	v.SetDefault("detection.minregioncells", 12)
	v.SetDefault("detection.minaspect", 0.6)
	v.SetDefault("detection.maxaspect", 2.5)
	v.SetDefault("detection.maxpixels", 40_000_000)

	v.SetDefault("query.cameracachettl", DefaultCameraCacheTTL)
	v.SetDefault("query.defaultlimit", DefaultRecentLimit)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientid", "examwatch")
	v.SetDefault("mqtt.topic", "examwatch/behaviors")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "examwatch.frames")
	v.SetDefault("kafka.groupid", "examwatch")

	v.SetDefault("evidence.enabled", false)
	v.SetDefault("evidence.endpoint", "localhost:9000")
	v.SetDefault("evidence.bucket", "examwatch-evidence")
	v.SetDefault("evidence.usessl", false)

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.sentrydsn", "")
}
