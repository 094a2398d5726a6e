package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/auth"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/lifecycle"
)

const sampleYAML = `
environment: staging
server:
  addr: ":9090"
  read_timeout: 5s
database:
  url: postgres://file/db
  max_conns: 4
auth:
  jwt_secret: from-file
kafka:
  brokers: ["kafka-1:9092"]
sla:
  sweep_schedule: "0 0 * * * *"
  investigation_days: 20
lifecycle:
  edges:
    rejected:
      - to: closed
        requires_role: admin
        requires_documentation: true
  min_dwell_hours:
    investigation: 48
  required_roles:
    resolved: steward
  state_sla_days:
    resolved: 5
  min_notes_words: 5
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Environment != "staging" || cfg.Server.Addr != ":9090" {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Fatalf("expected 5s read timeout got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 15*time.Second {
		t.Fatalf("expected default write timeout got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Database.MaxConns != 4 {
		t.Fatalf("expected max conns 4 got %d", cfg.Database.MaxConns)
	}
	if w := cfg.Windows(); w.Investigation.Days != 20 || w.Acknowledgment.Days != 2 {
		t.Fatalf("unexpected windows %+v", w)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("UNION_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("UNION_OUTBOX_ENABLED", "false")
	t.Setenv("UNION_AUTH_TOKEN_TTL", "2h")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.URL != "postgres://env/db" || cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("expected env to win got %+v %+v", cfg.Database, cfg.Auth)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Outbox.Enabled {
		t.Fatal("expected outbox disabled")
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Fatalf("expected 2h ttl got %v", cfg.Auth.TokenTTL)
	}
}

func TestLoad_RequiresSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	_, err := Load("")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected both secrets reported got %v", err)
	}
}

func TestConfig_Rules(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rules, err := cfg.Rules()
	if err != nil {
		t.Fatalf("rules: %v", err)
	}

	if got := rules.States[lifecycle.StatusInvestigation].MinDwell; got != 48*time.Hour {
		t.Fatalf("expected 48h dwell got %v", got)
	}
	edge, ok := rules.Edge(lifecycle.StatusInvestigation, lifecycle.StatusResolved)
	if !ok || edge.RequiresRole != auth.RoleSteward {
		t.Fatalf("expected steward requirement got %+v", edge)
	}
	if got := rules.States[lifecycle.StatusResolved].SLAWindow.Days; got != 5 {
		t.Fatalf("expected 5 day window on resolved got %v", got)
	}
	if got := rules.Targets(lifecycle.StatusRejected); len(got) != 1 || got[0] != lifecycle.StatusClosed {
		t.Fatalf("expected rejected to lead only to closed, got %v", got)
	}
	edge, ok = rules.Edge(lifecycle.StatusRejected, lifecycle.StatusClosed)
	if !ok || edge.RequiresRole != auth.RoleAdmin || !edge.RequiresDocumentation || edge.BlockedByCriticalSignals {
		t.Fatalf("unexpected configured edge %+v", edge)
	}
	if rules.MinNotesWords != 5 || rules.MinNotesLength != lifecycle.DefaultMinNotesLength {
		t.Fatalf("unexpected notes thresholds %d/%d", rules.MinNotesLength, rules.MinNotesWords)
	}
}

func TestConfig_RulesRejectsUnknownNames(t *testing.T) {
	cases := []LifecycleConfig{
		{MinDwellHours: map[string]float64{"archived": 1}},
		{RequiredRoles: map[string]string{"closed": "chair"}},
		{StateSLADays: map[string]float64{"pending": 3}},
		{StateSLADays: map[string]float64{"resolved": 50000}},
		{Edges: map[string][]EdgeConfig{"archived": {{To: "closed"}}}},
		{Edges: map[string][]EdgeConfig{"rejected": {{To: "archived"}}}},
		{Edges: map[string][]EdgeConfig{"rejected": {{To: "closed", RequiresRole: "chair"}}}},
		{Edges: map[string][]EdgeConfig{"closed": {{To: "under_review"}}}},
	}
	for _, lc := range cases {
		cfg := Default()
		cfg.Lifecycle = lc
		if _, err := cfg.Rules(); err == nil {
			t.Fatalf("%+v: expected error", lc)
		}
	}
}

func TestConfig_ValidateBoundsSLAWindows(t *testing.T) {
	cfg := Default()
	cfg.Database.URL = "postgres://x/db"
	cfg.Auth.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.SLA.InvestigationDays = 2000
	if err := cfg.Validate(); err != nil {
		t.Fatalf("2000 day window should validate: %v", err)
	}
	cfg.SLA.InvestigationDays = 40000
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "sla windows") {
		t.Fatalf("expected window bound error, got %v", err)
	}
}
