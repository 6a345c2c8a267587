// Package config loads settings from flags, environment, .env and a TOML file.
package config

import (
	"io/fs"
	"strings"

	"codeberg.org/mutker/serverroom/internal/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "SERVERROOM"
	DefaultEnvFile    = ".env"
	DefaultConfigName = "serverroom"
	DefaultLogLevel   = LogLevelInfo

	defaultInterval       = 2.0
	defaultBlinkInterval  = 0.5
	defaultHistoryHorizon = 600.0
	defaultEventCapacity  = 100
	defaultMetricsDB      = "/var/lib/serverroom/metrics.db"
	defaultBatchSize      = 10
	defaultBatchTimeout   = 5
	defaultKafkaTopic     = "serverroom-events"
)

type Config struct {
	Interval float64
	LogLevel LogLevel
	LogFile  string
	Seed     int64

	ServerTempMin float64
	ServerTempMax float64
	RoomTempMin   float64
	RoomTempMax   float64
	CPULoadMin    float64
	CPULoadMax    float64

	WarningTemp  float64
	CriticalTemp float64
	WarningCPU   float64
	CriticalCPU  float64

	BlinkInterval    float64
	HistoryHorizon   float64
	EventLogCapacity int

	APIListen string
	Dashboard bool

	Metrics             bool
	MetricsDB           string
	MetricsBatchSize    int
	MetricsBatchTimeout int

	OTLPEndpoint string
	OTLPInsecure bool

	KafkaBrokers []string
	KafkaTopic   string

	PidFile string

	// ConfigFile is the file that was read, if any
	ConfigFile string
}

type flagSpec struct {
	key   string
	flag  string
	usage string
}

// Keys bound to command line flags. Defaults come from setDefaults.
var flagSpecs = []flagSpec{
	{"interval", "interval", "Seconds between simulation ticks"},
	{"log_level", "log-level", "Log level (debug, info, warning, error)"},
	{"log_file", "log-file", "Write logs to this file instead of stdout"},
	{"seed", "seed", "Noise seed; 0 picks a random one"},
	{"server_temp_min", "server-temp-min", "Lowest simulated server temperature"},
	{"server_temp_max", "server-temp-max", "Highest simulated server temperature"},
	{"room_temp_min", "room-temp-min", "Lowest room temperature"},
	{"room_temp_max", "room-temp-max", "Highest room temperature"},
	{"cpu_load_min", "cpu-load-min", "Lowest simulated CPU load"},
	{"cpu_load_max", "cpu-load-max", "Highest simulated CPU load"},
	{"warning_temp", "warning-temp", "Temperature at which a server is in warning"},
	{"critical_temp", "critical-temp", "Temperature at which a server is critical"},
	{"warning_cpu", "warning-cpu", "CPU load at which a server is in warning"},
	{"critical_cpu", "critical-cpu", "CPU load at which a server is critical"},
	{"blink_interval", "blink-interval", "Seconds between alarm indicator toggles"},
	{"history_horizon", "history-horizon", "Seconds of snapshot history to keep"},
	{"event_log_capacity", "event-log-capacity", "Maximum number of event log records"},
	{"api_listen", "api-listen", "HTTP API listen address; empty disables the API"},
	{"dashboard", "dashboard", "Show the terminal dashboard"},
	{"metrics", "metrics", "Export samples to SQLite"},
	{"metrics_db", "metrics-db", "SQLite database path"},
	{"metrics_batch_size", "metrics-batch-size", "Samples per database write"},
	{"metrics_batch_timeout", "metrics-batch-timeout", "Seconds between forced database writes"},
	{"otlp_endpoint", "otlp-endpoint", "OTLP gRPC endpoint; empty disables export"},
	{"otlp_insecure", "otlp-insecure", "Disable TLS for OTLP"},
	{"kafka_brokers", "kafka-brokers", "Kafka seed brokers; empty disables publishing"},
	{"kafka_topic", "kafka-topic", "Kafka topic for events"},
	{"pid_file", "pid-file", "PID file path"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("log_file", "")
	v.SetDefault("seed", 0)
	v.SetDefault("server_temp_min", 35.0)
	v.SetDefault("server_temp_max", 90.0)
	v.SetDefault("room_temp_min", 20.0)
	v.SetDefault("room_temp_max", 30.0)
	v.SetDefault("cpu_load_min", 20.0)
	v.SetDefault("cpu_load_max", 100.0)
	v.SetDefault("warning_temp", 70.0)
	v.SetDefault("critical_temp", 85.0)
	v.SetDefault("warning_cpu", 70.0)
	v.SetDefault("critical_cpu", 90.0)
	v.SetDefault("blink_interval", defaultBlinkInterval)
	v.SetDefault("history_horizon", defaultHistoryHorizon)
	v.SetDefault("event_log_capacity", defaultEventCapacity)
	v.SetDefault("api_listen", "")
	v.SetDefault("dashboard", false)
	v.SetDefault("metrics", false)
	v.SetDefault("metrics_db", defaultMetricsDB)
	v.SetDefault("metrics_batch_size", defaultBatchSize)
	v.SetDefault("metrics_batch_timeout", defaultBatchTimeout)
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("otlp_insecure", false)
	v.SetDefault("kafka_brokers", []string{})
	v.SetDefault("kafka_topic", defaultKafkaTopic)
	v.SetDefault("pid_file", "") // empty resolves to pid.DefaultPath
}

func newFlagSet(v *viper.Viper) *pflag.FlagSet {
	fs := pflag.NewFlagSet(DefaultConfigName, pflag.ContinueOnError)
	fs.String("config", "", "Path to a TOML configuration file")

	for _, spec := range flagSpecs {
		switch def := v.Get(spec.key).(type) {
		case bool:
			fs.Bool(spec.flag, def, spec.usage)
		case int:
			fs.Int(spec.flag, def, spec.usage)
		case float64:
			fs.Float64(spec.flag, def, spec.usage)
		case []string:
			fs.StringSlice(spec.flag, def, spec.usage)
		default:
			fs.String(spec.flag, v.GetString(spec.key), spec.usage)
		}
	}

	return fs
}

// Load reads the configuration. Precedence, highest first: flags in args,
// environment (including .env), config file, defaults.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{
		envPrefix: DefaultEnvPrefix,
		envFile:   DefaultEnvFile,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	flags := newFlagSet(v)
	if err := flags.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	for _, spec := range flagSpecs {
		if err := v.BindPFlag(spec.key, flags.Lookup(spec.flag)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	configPath := o.configPath
	if f := flags.Lookup("config"); f != nil && f.Changed {
		configPath = f.Value.String()
	}
	if configPath == "" {
		configPath = v.GetString("config")
	}

	v.SetConfigType("toml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath("/etc/serverroom")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{
		Interval:            v.GetFloat64("interval"),
		LogLevel:            LogLevel(strings.ToLower(v.GetString("log_level"))),
		LogFile:             v.GetString("log_file"),
		Seed:                v.GetInt64("seed"),
		ServerTempMin:       v.GetFloat64("server_temp_min"),
		ServerTempMax:       v.GetFloat64("server_temp_max"),
		RoomTempMin:         v.GetFloat64("room_temp_min"),
		RoomTempMax:         v.GetFloat64("room_temp_max"),
		CPULoadMin:          v.GetFloat64("cpu_load_min"),
		CPULoadMax:          v.GetFloat64("cpu_load_max"),
		WarningTemp:         v.GetFloat64("warning_temp"),
		CriticalTemp:        v.GetFloat64("critical_temp"),
		WarningCPU:          v.GetFloat64("warning_cpu"),
		CriticalCPU:         v.GetFloat64("critical_cpu"),
		BlinkInterval:       v.GetFloat64("blink_interval"),
		HistoryHorizon:      v.GetFloat64("history_horizon"),
		EventLogCapacity:    v.GetInt("event_log_capacity"),
		APIListen:           v.GetString("api_listen"),
		Dashboard:           v.GetBool("dashboard"),
		Metrics:             v.GetBool("metrics"),
		MetricsDB:           v.GetString("metrics_db"),
		MetricsBatchSize:    v.GetInt("metrics_batch_size"),
		MetricsBatchTimeout: v.GetInt("metrics_batch_timeout"),
		OTLPEndpoint:        v.GetString("otlp_endpoint"),
		OTLPInsecure:        v.GetBool("otlp_insecure"),
		KafkaBrokers:        splitList(v.GetStringSlice("kafka_brokers")),
		KafkaTopic:          v.GetString("kafka_topic"),
		PidFile:             v.GetString("pid_file"),
		ConfigFile:          v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// splitList accepts both repeated values and a single comma separated string
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	invalid := func(field string, value any) error {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value any
		}{
			Field: field,
			Value: value,
		})
	}

	if !c.LogLevel.IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	positive := []struct {
		field string
		value float64
	}{
		{"interval", c.Interval},
		{"blink_interval", c.BlinkInterval},
		{"history_horizon", c.HistoryHorizon},
		{"event_log_capacity", float64(c.EventLogCapacity)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return invalid(p.field, p.value)
		}
	}

	ranges := []struct {
		field    string
		min, max float64
	}{
		{"server_temp", c.ServerTempMin, c.ServerTempMax},
		{"room_temp", c.RoomTempMin, c.RoomTempMax},
		{"cpu_load", c.CPULoadMin, c.CPULoadMax},
		{"temp_thresholds", c.WarningTemp, c.CriticalTemp},
		{"cpu_thresholds", c.WarningCPU, c.CriticalCPU},
	}
	for _, r := range ranges {
		if r.min > r.max {
			return errFactory.WithData(errors.ErrInvalidRange, struct {
				Field string
				Min   float64
				Max   float64
			}{
				Field: r.field,
				Min:   r.min,
				Max:   r.max,
			})
		}
	}

	if c.Metrics {
		if c.MetricsDB == "" {
			return invalid("metrics_db", c.MetricsDB)
		}
		if c.MetricsBatchSize < 1 {
			return invalid("metrics_batch_size", c.MetricsBatchSize)
		}
		if c.MetricsBatchTimeout < 0 {
			return invalid("metrics_batch_timeout", c.MetricsBatchTimeout)
		}
	}

	return nil
}
