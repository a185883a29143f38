package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestNewDefault(t *testing.T) {
	t.Parallel()

	cfg := NewDefault()
	if !reflect.DeepEqual(cfg.Engine.Branches, []string{"0101", "0103", "0104", "0105"}) {
		t.Fatalf("default branches = %v", cfg.Engine.Branches)
	}
	if cfg.Engine.WindowSize != 5 || cfg.Engine.WindowEnd != "" {
		t.Fatalf("unexpected window defaults %+v", cfg.Engine)
	}
	if !cfg.Engine.SummaryFillMissing || cfg.Engine.DetailFillMissing {
		t.Fatalf("summary should fill and detail should not by default")
	}
	if cfg.Engine.BranchTimeout != 5*time.Minute {
		t.Fatalf("branch timeout = %s", cfg.Engine.BranchTimeout)
	}
	if cfg.Database.Driver != "postgres" || cfg.Policy.Sheet != "Plan1" {
		t.Fatalf("unexpected defaults %+v %+v", cfg.Database, cfg.Policy)
	}
}

func TestFromViper_CommaSeparatedLists(t *testing.T) {
	t.Parallel()

	v := viper.New()
	setDefaults(v)
	v.Set("ENGINE_BRANCHES", "0101, 0105,,")
	v.Set("SERVER_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	v.Set("DB_DRIVER", "PGX")

	cfg := FromViper(v)
	if !reflect.DeepEqual(cfg.Engine.Branches, []string{"0101", "0105"}) {
		t.Fatalf("branches = %v", cfg.Engine.Branches)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Fatalf("origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Database.Driver != "pgx" {
		t.Fatalf("driver = %q", cfg.Database.Driver)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Parallel()

	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=n sslmode=disable"
	if got := c.DSN(); got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
}
