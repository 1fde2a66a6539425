package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PGUSER", "")
	t.Setenv("PGPASSWORD", "")
	t.Setenv("APPLES_DB_DSN", "")

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("默认配置加载失败: %v", err)
	}
	if cfg.Source.URL != DefaultSourceURL {
		t.Fatalf("source.url 默认值不正确: %s", cfg.Source.URL)
	}
	if !cfg.CSV.Enabled || cfg.CSV.Path != "apples_to_apples_snapshot_v2.csv" {
		t.Fatalf("csv defaults wrong: %+v", cfg.CSV)
	}
	if cfg.Source.RequestTimeout != 25*time.Second {
		t.Fatalf("request timeout default wrong: %s", cfg.Source.RequestTimeout)
	}
	if cfg.SMTP.Port != 587 || !cfg.SMTP.StartTLS {
		t.Fatalf("smtp defaults wrong: %+v", cfg.SMTP)
	}
	if _, err := cfg.Database.ResolveDSN(); err != ErrDatabaseNotConfigured {
		t.Fatalf("没有 PGUSER/PGPASSWORD 时应返回 ErrDatabaseNotConfigured, 实际 %v", err)
	}
}

func TestLoadLegacyEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGUSER", "scraper")
	t.Setenv("PGPASSWORD", "s3cret pass")
	t.Setenv("ALERTS_DB", "/tmp/alerts.db")
	t.Setenv("ALERT_SMTP_HOST", "smtp.example.com")
	t.Setenv("ALERT_SMTP_PORT", "2525")

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	dsn, err := cfg.Database.ResolveDSN()
	if err != nil {
		t.Fatalf("resolve dsn: %v", err)
	}
	want := "host=db.internal port=5432 dbname=apples_db user=scraper password='s3cret pass' connect_timeout=10"
	if dsn != want {
		t.Fatalf("dsn mismatch:\n got %s\nwant %s", dsn, want)
	}
	if cfg.Alerts.DBPath != "/tmp/alerts.db" {
		t.Fatalf("ALERTS_DB not honoured: %q", cfg.Alerts.DBPath)
	}
	if cfg.SMTP.Host != "smtp.example.com" || cfg.SMTP.Port != 2525 {
		t.Fatalf("smtp env not honoured: %+v", cfg.SMTP)
	}
}

func TestExplicitDSNWins(t *testing.T) {
	d := DatabaseConfig{DSN: "postgres://u:p@h/db", User: "ignored"}
	dsn, err := d.ResolveDSN()
	if err != nil || dsn != "postgres://u:p@h/db" {
		t.Fatalf("explicit dsn should win: %q %v", dsn, err)
	}
}

func TestLoadConfigFileAndEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	cfgPath := filepath.Join(dir, "appleswatch.yaml")
	content := []byte("csv:\n  path: out/rates.csv\nsource:\n  insecure_skip_verify: true\n")
	if err := os.WriteFile(cfgPath, content, 0o600); err != nil {
		t.Fatal(err)
	}
	envPath := filepath.Join(dir, "custom.env")
	if err := os.WriteFile(envPath, []byte("APPLESWATCH_SCHEDULER_CRON=*/5 * * * *\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("APPLESWATCH_SCHEDULER_CRON") })

	cfg, err := Load(cfgPath, envPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CSV.Path != "out/rates.csv" || !cfg.Source.InsecureSkipVerify {
		t.Fatalf("config file values not applied: %+v %+v", cfg.CSV, cfg.Source)
	}
	if cfg.Scheduler.Cron != "*/5 * * * *" {
		t.Fatalf(".env value not applied: %q", cfg.Scheduler.Cron)
	}

	if _, err := Load(cfgPath, filepath.Join(dir, "missing.env")); err == nil {
		t.Fatal("explicit missing env file should fail")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Source:    SourceConfig{URL: DefaultSourceURL},
			CSV:       CSVConfig{Enabled: true, Path: "x.csv"},
			SMTP:      SMTPConfig{Port: 587},
			Scheduler: SchedulerConfig{Cron: "0 */6 * * *", Timezone: "UTC"},
			Export:    ExportConfig{MaxDataPoints: 10},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	cfg := base()
	cfg.Source.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty source url should fail")
	}

	cfg = base()
	cfg.CSV.Path = " "
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled csv without path should fail")
	}

	cfg = base()
	cfg.Scheduler.Timezone = "Mars/Olympus_Mons"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown time zone should fail")
	}

	cfg = base()
	cfg.Alerts.Telegram.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("telegram without token should fail")
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory and restores it when the test finishes.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}
