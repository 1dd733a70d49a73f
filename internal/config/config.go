// Package config implements the Handle (spec.md §3, §4.L): per-repository
// configuration consumed by the scheduler, metadata flow, and package
// façade. Grounded on the teacher's internal/mirror.Config - same TOML +
// "env" struct-tag layering, same reflection-based environment override
// pass, same LogConfig.Apply slog wiring - generalized from one
// APT-mirror's settings to one repository Handle's option set (spec.md
// §3's full list).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/go-librepo/librepo/internal/urlsubst"
)

// Checks is the verify_checksums/verify_signature bitset (spec.md §3).
type Checks uint8

const (
	VerifyChecksums Checks = 1 << iota
	VerifySignature
)

func (c Checks) Has(bit Checks) bool { return c&bit != 0 }

// SignatureBackend selects between the two interchangeable OpenPGP
// back-ends (spec.md §4.F).
type SignatureBackend string

const (
	BackendAgent SignatureBackend = "agent"
	BackendRaw   SignatureBackend = "raw"
)

// LogConfig mirrors the teacher's LogConfig: level/format feeding
// slog.SetDefault, plus the same progress-bar visibility heuristic
// (verbose logging and progress bars compete for the same terminal).
type LogConfig struct {
	Level  string `toml:"level" env:"LIBREPO_LOG_LEVEL"`
	Format string `toml:"format" env:"LIBREPO_LOG_FORMAT"`
}

// Apply configures the global slog logger, exactly as the teacher's
// LogConfig.Apply does.
func (lc *LogConfig) Apply() error {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return errors.New("invalid log level: " + lc.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(lc.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "plain", "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return errors.New("invalid log format: " + lc.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// ShouldShowProgress reports whether progress bars should be drawn.
// Progress bars are shown only at the less-verbose log levels (warn,
// error), exactly as the teacher's LogConfig.ShouldShowProgress does,
// so bar output doesn't interleave with info/debug log lines on the
// same terminal.
func (lc *LogConfig) ShouldShowProgress() bool {
	level := strings.ToLower(lc.Level)
	return level == "error" || level == "warn" || level == "warning"
}

// TLSOptions is the subset of the teacher's TLSConfig this Handle
// exposes (spec.md §3's "TLS options").
type TLSOptions struct {
	MinVersion         string `toml:"min_version" env:"LIBREPO_TLS_MIN_VERSION"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify" env:"LIBREPO_TLS_INSECURE_SKIP_VERIFY"`
	CACertFile         string `toml:"ca_cert_file" env:"LIBREPO_TLS_CA_CERT_FILE"`
	ClientCertFile     string `toml:"client_cert_file" env:"LIBREPO_TLS_CLIENT_CERT_FILE"`
	ClientKeyFile      string `toml:"client_key_file" env:"LIBREPO_TLS_CLIENT_KEY_FILE"`
}

// Handle is the per-repository configuration object spec.md §3/§4.L
// describes. Field names follow the spec's indicative option names.
type Handle struct {
	URLs          []string `toml:"urls"`
	MirrorlistURL string   `toml:"mirrorlist_url"`
	MetalinkURL   string   `toml:"metalink_url"`

	DestinationDir string `toml:"destination_dir" env:"LIBREPO_DESTINATION_DIR"`

	Checks Checks `toml:"-"`

	DataFileAllowlist []string `toml:"data_file_allowlist,omitempty"`
	DataFileBlocklist []string `toml:"data_file_blocklist,omitempty"`

	UpdateMode bool `toml:"update_mode"`
	LocalOnly  bool `toml:"local_only"`

	MaxParallelConnections int   `toml:"max_parallel_connections" env:"LIBREPO_MAX_PARALLEL_CONNECTIONS"`
	MaxConnectionsPerHost  int   `toml:"max_connections_per_host" env:"LIBREPO_MAX_CONNECTIONS_PER_HOST"`
	MaxMirrorRetries       int   `toml:"max_mirror_retries" env:"LIBREPO_MAX_MIRROR_RETRIES"`
	MaxSpeed               int64 `toml:"max_speed" env:"LIBREPO_MAX_SPEED"`

	ResumeDownloads bool   `toml:"resume_downloads"`
	ConnectTimeout  int    `toml:"connect_timeout_seconds" env:"LIBREPO_CONNECT_TIMEOUT_SECONDS"`
	UserAgent       string `toml:"user_agent" env:"LIBREPO_USER_AGENT"`

	ProxyURL string `toml:"proxy_url" env:"LIBREPO_PROXY_URL"`

	TLS TLSOptions `toml:"tls"`

	SignatureBackend SignatureBackend `toml:"signature_backend"`

	URLSubstitutionVars urlsubst.Vars `toml:"-"`

	FastestMirrorCachePath string `toml:"fastest_mirror_cache_path"`
	ProbeFastestMirror     bool   `toml:"probe_fastest_mirror"`

	Interruptible bool `toml:"interruptible"`

	Log LogConfig `toml:"log"`
}

// New builds a Handle with the spec's recommended defaults (spec.md §3).
func New() *Handle {
	return &Handle{
		MaxParallelConnections: 5,
		MaxConnectionsPerHost:  2,
		MaxMirrorRetries:       0,
		SignatureBackend:       BackendAgent,
	}
}

// Check validates the Handle, grounded on the teacher's Config.Check.
func (h *Handle) Check() error {
	if h.DestinationDir == "" {
		return errors.New("destination_dir is not set")
	}
	if !path.IsAbs(h.DestinationDir) {
		return errors.New("destination_dir must be an absolute path")
	}
	if len(h.URLs) == 0 && h.MirrorlistURL == "" && h.MetalinkURL == "" {
		return errors.New("no_url: one of urls, mirrorlist_url, or metalink_url must be set")
	}
	if h.MaxConnectionsPerHost < -1 {
		return errors.New("max_connections_per_host must be >= -1")
	}
	switch h.SignatureBackend {
	case BackendAgent, BackendRaw, "":
	default:
		return fmt.Errorf("invalid signature_backend %q", h.SignatureBackend)
	}
	return nil
}

// ApplyEnvironmentVariables overrides TOML-loaded values from "env"-tagged
// fields, exactly the way the teacher's ApplyEnvironmentVariables does
// (environment wins over file).
func (h *Handle) ApplyEnvironmentVariables() error {
	return applyEnvToStruct(h)
}

func applyEnvToStruct(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return errors.New("applyEnvToStruct requires a pointer to struct")
	}
	rv = rv.Elem()
	rt := rv.Type()

	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		if envTag := fieldType.Tag.Get("env"); envTag != "" {
			if err := setFieldFromEnv(field, envTag); err != nil {
				return fmt.Errorf("setting field %s from environment: %w", fieldType.Name, err)
			}
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := applyEnvToStruct(field.Addr().Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}

func setFieldFromEnv(field reflect.Value, envVar string) error {
	envValue := os.Getenv(envVar)
	if envValue == "" {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int, reflect.Int64:
		intVal, err := strconv.ParseInt(envValue, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %s", envVar, envValue)
		}
		field.SetInt(intVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(envValue)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %s", envVar, envValue)
		}
		field.SetBool(boolVal)
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}
