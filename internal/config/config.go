// Package config loads the run configuration. Values come from, in order of
// precedence: command-line flags, MESHJOIN_* environment variables (a .env
// file may seed them), an optional YAML/JSON/TOML file, and defaults.
//
// Keys are dotted ("runtime.segment_size"); the matching environment variable
// upper-cases the key and replaces dots with underscores
// (MESHJOIN_RUNTIME_SEGMENT_SIZE).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"meshjoin/internal/meshjoin"
	"meshjoin/internal/storage"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "MESHJOIN"

// Endpoint describes one database. Either DSN is set, or the discrete parts
// from which BuildDSN assembles one.
type Endpoint struct {
	Kind     string `mapstructure:"kind"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// Params are extra driver options appended to a built DSN
	// ("sslmode=disable", "encrypt=disable").
	Params string `mapstructure:"params"`
}

// Source is the operational database transactions and dimensions are read from.
type Source struct {
	Endpoint `mapstructure:",squash"`
	Tables   storage.SourceTables `mapstructure:"tables"`
}

// Warehouse is the star-schema database facts are loaded into.
type Warehouse struct {
	Endpoint `mapstructure:",squash"`
	Tables   storage.WarehouseTables `mapstructure:"tables"`
	// AutoCreateSchema creates missing warehouse tables before the run.
	AutoCreateSchema bool `mapstructure:"auto_create_schema"`
}

// Runtime tunes the engine.
type Runtime struct {
	SegmentSize   int    `mapstructure:"segment_size"`
	PartitionSize int    `mapstructure:"partition_size"`
	RefreshPolicy string `mapstructure:"refresh_policy"`
	FactDedup     string `mapstructure:"fact_dedup"`
}

// Metrics selects the metrics backend: "none", "prometheus" (Pushgateway)
// or "datadog" (DogStatsD).
type Metrics struct {
	Backend          string   `mapstructure:"backend"`
	PushgatewayURL   string   `mapstructure:"pushgateway_url"`
	DatadogAddr      string   `mapstructure:"datadog_addr"`
	DatadogNamespace string   `mapstructure:"datadog_namespace"`
	DatadogTags      []string `mapstructure:"datadog_tags"`
}

// Log configures the process logger.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the complete run configuration.
type Config struct {
	Job       string    `mapstructure:"job"`
	Source    Source    `mapstructure:"source"`
	Warehouse Warehouse `mapstructure:"warehouse"`
	Runtime   Runtime   `mapstructure:"runtime"`
	Metrics   Metrics   `mapstructure:"metrics"`
	Log       Log       `mapstructure:"log"`
}

// defaults lists every key with its default. Registering each key is also
// what lets AutomaticEnv resolve it during Unmarshal.
var defaults = map[string]any{
	"job": meshjoin.DefaultJob,

	"source.kind":                "mysql",
	"source.dsn":                 "",
	"source.host":                "localhost",
	"source.port":                0,
	"source.name":                "",
	"source.user":                "",
	"source.password":            "",
	"source.params":              "",
	"source.tables.transactions": "transactions",
	"source.tables.customers":    "customers",
	"source.tables.products":     "products",

	"warehouse.kind":               "mysql",
	"warehouse.dsn":                "",
	"warehouse.host":               "localhost",
	"warehouse.port":               0,
	"warehouse.name":               "",
	"warehouse.user":               "",
	"warehouse.password":           "",
	"warehouse.params":             "",
	"warehouse.tables.product":     "product",
	"warehouse.tables.customer":    "customer",
	"warehouse.tables.store":       "store",
	"warehouse.tables.supplier":    "supplier",
	"warehouse.tables.time":        "time_dim",
	"warehouse.tables.sales":       "sales",
	"warehouse.auto_create_schema": false,

	"runtime.segment_size":   meshjoin.DefaultSegmentSize,
	"runtime.partition_size": meshjoin.DefaultPartitionSize,
	"runtime.refresh_policy": string(meshjoin.RefreshPerMiss),
	"runtime.fact_dedup":     string(meshjoin.DedupOrderID),

	"metrics.backend":           "none",
	"metrics.pushgateway_url":   "",
	"metrics.datadog_addr":      "127.0.0.1:8125",
	"metrics.datadog_namespace": "meshjoin.",
	"metrics.datadog_tags":      []string{},

	"log.level":  "info",
	"log.format": "json",
}

// flagKeys maps command-line flags to config keys.
var flagKeys = []struct {
	flag, key, usage string
	isInt             bool
}{
	{"job", "job", "job name used in logs and metric labels", false},
	{"source-kind", "source.kind", "source database kind (mysql, postgres, sqlite, mssql)", false},
	{"source-dsn", "source.dsn", "source DSN; overrides host/port/name/user/password", false},
	{"source-host", "source.host", "source host", false},
	{"source-port", "source.port", "source port (0 = driver default)", true},
	{"source-name", "source.name", "source database name (file path for sqlite)", false},
	{"source-user", "source.user", "source user", false},
	{"source-password", "source.password", "source password", false},
	{"warehouse-kind", "warehouse.kind", "warehouse database kind (mysql, postgres, sqlite, mssql)", false},
	{"warehouse-dsn", "warehouse.dsn", "warehouse DSN; overrides host/port/name/user/password", false},
	{"warehouse-host", "warehouse.host", "warehouse host", false},
	{"warehouse-port", "warehouse.port", "warehouse port (0 = driver default)", true},
	{"warehouse-name", "warehouse.name", "warehouse database name (file path for sqlite)", false},
	{"warehouse-user", "warehouse.user", "warehouse user", false},
	{"warehouse-password", "warehouse.password", "warehouse password", false},
	{"segment-size", "runtime.segment_size", "transactions per segment (default 200)", true},
	{"partition-size", "runtime.partition_size", "rows per dimension partition (default 200)", true},
	{"refresh-policy", "runtime.refresh_policy", "partition refresh policy: per-miss or per-segment", false},
	{"fact-dedup", "runtime.fact_dedup", "fact duplicate policy: order_id, time_id or none", false},
	{"metrics-backend", "metrics.backend", "metrics backend: none, prometheus or datadog", false},
	{"pushgateway-url", "metrics.pushgateway_url", "Prometheus Pushgateway URL", false},
	{"datadog-addr", "metrics.datadog_addr", "DogStatsD address", false},
	{"log-level", "log.level", "log level: debug, info, warn, error", false},
	{"log-format", "log.format", "log format: json or console", false},
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags defines the config flags on fs and binds them to v. Flag defaults
// are zero values; the effective defaults live in v.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	for _, f := range flagKeys {
		if f.isInt {
			fs.Int(f.flag, 0, f.usage)
		} else {
			fs.String(f.flag, "", f.usage)
		}
		if err := v.BindPFlag(f.key, fs.Lookup(f.flag)); err != nil {
			return fmt.Errorf("config: bind flag %s: %w", f.flag, err)
		}
	}
	return nil
}

// LoadDotEnv seeds the process environment from a .env file. Variables that
// are already set win. A missing default ".env" is not an error; a missing
// explicitly named file is.
func LoadDotEnv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !isNotExist(err) {
			return fmt.Errorf("config: load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

func isNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }

// Load reads file (if not empty) into v and decodes the result.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// EngineConfig converts the runtime section into engine settings. Policy
// names are validated by the engine.
func (c Config) EngineConfig() meshjoin.Config {
	return meshjoin.Config{
		Job:           c.Job,
		SegmentSize:   c.Runtime.SegmentSize,
		PartitionSize: c.Runtime.PartitionSize,
		RefreshPolicy: meshjoin.RefreshPolicy(strings.ToLower(strings.TrimSpace(c.Runtime.RefreshPolicy))),
		FactDedup:     meshjoin.FactDedup(strings.ToLower(strings.TrimSpace(c.Runtime.FactDedup))),
	}
}

// SourceConfig is what the storage factory needs to open the source.
func (c Config) SourceConfig() (storage.SourceConfig, error) {
	dsn, err := BuildDSN(c.Source.Endpoint)
	if err != nil {
		return storage.SourceConfig{}, fmt.Errorf("source: %w", err)
	}
	return storage.SourceConfig{Kind: c.Source.Kind, DSN: dsn, Tables: c.Source.Tables}, nil
}

// WarehouseConfig is what the storage factory needs to open the warehouse.
func (c Config) WarehouseConfig() (storage.WarehouseConfig, error) {
	dsn, err := BuildDSN(c.Warehouse.Endpoint)
	if err != nil {
		return storage.WarehouseConfig{}, fmt.Errorf("warehouse: %w", err)
	}
	return storage.WarehouseConfig{Kind: c.Warehouse.Kind, DSN: dsn, Tables: c.Warehouse.Tables}, nil
}

// defaultPorts are used when Endpoint.Port is 0.
var defaultPorts = map[string]int{
	"mysql":    3306,
	"postgres": 5432,
	"mssql":    1433,
}

// BuildDSN returns e.DSN when set, otherwise a DSN for e.Kind assembled from
// the discrete parts.
func BuildDSN(e Endpoint) (string, error) {
	if e.DSN != "" {
		return e.DSN, nil
	}
	if e.Name == "" {
		return "", fmt.Errorf("either dsn or name is required")
	}

	port := e.Port
	if port == 0 {
		port = defaultPorts[e.Kind]
	}
	addr := net.JoinHostPort(e.Host, strconv.Itoa(port))
	params, err := url.ParseQuery(e.Params)
	if err != nil {
		return "", fmt.Errorf("params: %w", err)
	}

	switch e.Kind {
	case "sqlite":
		if len(params) == 0 {
			return e.Name, nil
		}
		return "file:" + e.Name + "?" + params.Encode(), nil

	case "mysql":
		mc := mysql.NewConfig()
		mc.User = e.User
		mc.Passwd = e.Password
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = e.Name
		mc.ParseTime = true
		for k := range params {
			if mc.Params == nil {
				mc.Params = map[string]string{}
			}
			mc.Params[k] = params.Get(k)
		}
		return mc.FormatDSN(), nil

	case "postgres":
		u := url.URL{Scheme: "postgres", Host: addr, Path: "/" + e.Name, RawQuery: params.Encode()}
		if e.User != "" {
			u.User = url.UserPassword(e.User, e.Password)
		}
		return u.String(), nil

	case "mssql":
		params.Set("database", e.Name)
		u := url.URL{Scheme: "sqlserver", Host: addr, RawQuery: params.Encode()}
		if e.User != "" {
			u.User = url.UserPassword(e.User, e.Password)
		}
		return u.String(), nil
	}
	return "", fmt.Errorf("cannot build a DSN for kind %q", e.Kind)
}
