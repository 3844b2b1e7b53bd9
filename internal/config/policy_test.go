package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zaqqye/seb_proctoring/internal/proctoring"
)

func TestLoadPolicyMissingFile(t *testing.T) {
	p, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if p.DefaultMaxAttempts != 10 || p.HistoryLimit != 50 {
		t.Errorf("got %+v, want defaults", p)
	}
}

func TestLoadPolicyOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	body := `
default_max_attempts: 5
default_cooldown: 15s
cooldowns:
  gaze_deviation: 45s
tiers:
  phone_usage: major
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.DefaultMaxAttempts != 5 {
		t.Errorf("max = %d, want 5", p.DefaultMaxAttempts)
	}
	if p.DefaultCooldown != 15*time.Second {
		t.Errorf("default cooldown = %v, want 15s", p.DefaultCooldown)
	}
	if d := p.Cooldown(proctoring.GazeDeviation); d != 45*time.Second {
		t.Errorf("gaze cooldown = %v, want 45s", d)
	}
	if d := p.Cooldown(proctoring.SpeakingDetected); d != 30*time.Second {
		t.Errorf("speaking cooldown = %v, want default 30s kept", d)
	}
	if sev, _ := p.Classify(proctoring.PhoneUsage, nil); sev != proctoring.SeverityMajor {
		t.Errorf("phone severity = %s, want major", sev)
	}
	if p.HistoryLimit != 50 {
		t.Errorf("history limit = %d, want untouched 50", p.HistoryLimit)
	}
}

func TestParsePolicyRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"max too high", "default_max_attempts: 51"},
		{"max zero", "default_max_attempts: 0"},
		{"bad tier", "tiers:\n  gaze_deviation: severe"},
		{"negative cooldown", "default_cooldown: -1s"},
		{"not yaml", "default_max_attempts: [1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := proctoring.DefaultPolicy()
			if err := ParsePolicy([]byte(tt.body), &p); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDumpPolicyRoundTrips(t *testing.T) {
	out, err := DumpPolicy(proctoring.DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "default_max_attempts: 10") {
		t.Errorf("dump missing max attempts:\n%s", out)
	}
	p := proctoring.DefaultPolicy()
	if err := ParsePolicy(out, &p); err != nil {
		t.Errorf("dumped policy does not parse back: %v", err)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("SEND_TIMEOUT_MS", "150")
	t.Setenv("DISPATCH_WORKERS", "not-a-number")
	t.Setenv("JOURNAL_ENABLED", "false")
	t.Setenv("JWT_EXPIRES_IN", "15")

	cfg := Load()
	if cfg.SendTimeout != 150*time.Millisecond {
		t.Errorf("send timeout = %v, want 150ms", cfg.SendTimeout)
	}
	if cfg.DispatchWorkers != 8 {
		t.Errorf("workers = %d, want fallback 8", cfg.DispatchWorkers)
	}
	if cfg.JournalEnabled {
		t.Error("journal should be disabled")
	}
	if cfg.TokenTTL() != 15*time.Minute {
		t.Errorf("ttl = %v, want 15m", cfg.TokenTTL())
	}
}
