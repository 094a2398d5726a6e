// Package config loads the service configuration from YAML with environment
// overrides for secrets and deployment-specific values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/auth"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/lifecycle"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

type Config struct {
	Environment string          `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Auth        AuthConfig      `yaml:"auth"`
	Kafka       KafkaConfig     `yaml:"kafka"`
	Outbox      OutboxConfig    `yaml:"outbox"`
	SLA         SLAConfig       `yaml:"sla"`
	Lifecycle   LifecycleConfig `yaml:"lifecycle"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	TopicPrefix  string        `yaml:"topic_prefix"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type OutboxConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BatchSize    int           `yaml:"batch_size"`
	MaxAttempts  int           `yaml:"max_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type SLAConfig struct {
	// SweepSchedule is a six-field cron expression (seconds first). Empty
	// disables the sweep.
	SweepSchedule      string  `yaml:"sweep_schedule"`
	Concurrency        int     `yaml:"concurrency"`
	AcknowledgmentDays float64 `yaml:"acknowledgment_days"`
	FirstResponseDays  float64 `yaml:"first_response_days"`
	InvestigationDays  float64 `yaml:"investigation_days"`
}

// LifecycleConfig overrides parts of the default transition table. Keys are
// status names. Edges replaces the whole edge list of each status it names;
// the other overrides apply on top of it.
type LifecycleConfig struct {
	Edges          map[string][]EdgeConfig `yaml:"edges"`
	MinDwellHours  map[string]float64 `yaml:"min_dwell_hours"`
	RequiredRoles  map[string]string  `yaml:"required_roles"`
	StateSLADays   map[string]float64 `yaml:"state_sla_days"`
	MinNotesLength *int               `yaml:"min_notes_length"`
	MinNotesWords  *int               `yaml:"min_notes_words"`
}

type EdgeConfig struct {
	To                       string `yaml:"to"`
	RequiresRole             string `yaml:"requires_role"`
	RequiresDocumentation    bool   `yaml:"requires_documentation"`
	BlockedByCriticalSignals bool   `yaml:"blocked_by_critical_signals"`
}

// Default returns a configuration suitable for local development.
func Default() Config {
	return Config{
		Environment: "development",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{MaxConns: 10},
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour},
		Kafka: KafkaConfig{
			TopicPrefix:  "union.",
			BatchSize:    100,
			BatchTimeout: 50 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		},
		Outbox: OutboxConfig{
			Enabled:      true,
			BatchSize:    10,
			MaxAttempts:  5,
			PollInterval: time.Second,
		},
		SLA: SLAConfig{
			SweepSchedule:      "0 */15 * * * *",
			Concurrency:        8,
			AcknowledgmentDays: sla.AcknowledgmentWindow.Days,
			FirstResponseDays:  sla.FirstResponseWindow.Days,
			InvestigationDays:  sla.InvestigationWindow.Days,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("config unmarshal: %w", err)
		}
	}
	if err := applyEnvOverrides(&c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyEnvOverrides lets UNION_* variables, DATABASE_URL and JWT_SECRET win
// over the file.
func applyEnvOverrides(c *Config) error {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("UNION_ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("UNION_HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("UNION_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("UNION_KAFKA_TOPIC_PREFIX"); v != "" {
		c.Kafka.TopicPrefix = v
	}
	if v := os.Getenv("UNION_OUTBOX_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: UNION_OUTBOX_ENABLED: %w", err)
		}
		c.Outbox.Enabled = b
	}
	if v, ok := os.LookupEnv("UNION_SLA_SWEEP_SCHEDULE"); ok {
		c.SLA.SweepSchedule = v
	}
	if v := os.Getenv("UNION_AUTH_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: UNION_AUTH_TOKEN_TTL: %w", err)
		}
		c.Auth.TokenTTL = d
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("config: database url required (DATABASE_URL)"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("config: jwt secret required (JWT_SECRET)"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("config: server addr required"))
	}
	for _, days := range []float64{c.SLA.AcknowledgmentDays, c.SLA.FirstResponseDays, c.SLA.InvestigationDays} {
		if days <= 0 || days > sla.MaxWindowDays {
			errs = append(errs, fmt.Errorf("config: sla windows must be positive and at most %d days", sla.MaxWindowDays))
			break
		}
	}
	if _, err := c.Rules(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Windows returns the milestone SLA windows.
func (c Config) Windows() sla.Windows {
	w := sla.DefaultWindows()
	w.Acknowledgment.Days = c.SLA.AcknowledgmentDays
	w.FirstResponse.Days = c.SLA.FirstResponseDays
	w.Investigation.Days = c.SLA.InvestigationDays
	return w
}

// Rules builds the transition table from the defaults plus overrides and
// validates it.
func (c Config) Rules() (lifecycle.Rules, error) {
	rules := lifecycle.DefaultRules()
	lc := c.Lifecycle

	for name, edges := range lc.Edges {
		from, ok := lifecycle.ParseStatus(name)
		if !ok {
			return lifecycle.Rules{}, fmt.Errorf("config: edges: unknown status %q", name)
		}
		parsed := make([]lifecycle.Edge, 0, len(edges))
		for _, ec := range edges {
			to, ok := lifecycle.ParseStatus(ec.To)
			if !ok {
				return lifecycle.Rules{}, fmt.Errorf("config: edges: %s: unknown target %q", from, ec.To)
			}
			edge := lifecycle.Edge{
				To:                       to,
				RequiresDocumentation:    ec.RequiresDocumentation,
				BlockedByCriticalSignals: ec.BlockedByCriticalSignals,
			}
			if ec.RequiresRole != "" {
				if edge.RequiresRole, ok = auth.ParseRole(ec.RequiresRole); !ok {
					return lifecycle.Rules{}, fmt.Errorf("config: edges: %s -> %s: unknown role %q", from, to, ec.RequiresRole)
				}
			}
			parsed = append(parsed, edge)
		}
		rules.SetEdges(from, parsed)
	}
	for name, hours := range lc.MinDwellHours {
		status, ok := lifecycle.ParseStatus(name)
		if !ok {
			return lifecycle.Rules{}, fmt.Errorf("config: min_dwell_hours: unknown status %q", name)
		}
		if hours < 0 {
			return lifecycle.Rules{}, fmt.Errorf("config: min_dwell_hours: negative value for %s", status)
		}
		rules.SetMinDwell(status, time.Duration(hours*float64(time.Hour)))
	}
	for name, roleName := range lc.RequiredRoles {
		status, ok := lifecycle.ParseStatus(name)
		if !ok {
			return lifecycle.Rules{}, fmt.Errorf("config: required_roles: unknown status %q", name)
		}
		var role auth.Role
		if roleName != "" {
			if role, ok = auth.ParseRole(roleName); !ok {
				return lifecycle.Rules{}, fmt.Errorf("config: required_roles: unknown role %q", roleName)
			}
		}
		rules.SetRequiredRole(status, role)
	}
	for name, days := range lc.StateSLADays {
		status, ok := lifecycle.ParseStatus(name)
		if !ok {
			return lifecycle.Rules{}, fmt.Errorf("config: state_sla_days: unknown status %q", name)
		}
		rules.SetSLAWindowDays(status, days)
	}
	if lc.MinNotesLength != nil {
		rules.MinNotesLength = *lc.MinNotesLength
	}
	if lc.MinNotesWords != nil {
		rules.MinNotesWords = *lc.MinNotesWords
	}

	if err := rules.Validate(); err != nil {
		return lifecycle.Rules{}, err
	}
	return rules, nil
}
