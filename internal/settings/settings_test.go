package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/speedwagon-io/hevt/internal/lib/logger/sl"
	"github.com/speedwagon-io/hevt/internal/model"
)

func TestCooldownDuration(t *testing.T) {
	cases := map[Cooldown]time.Duration{
		"60":  60 * time.Second,
		" 5 ": 5 * time.Second,
		"":    0,
		"abc": 0,
		"-3":  0,
		"1.5": 0,
		"0":   0,
	}
	for in, want := range cases {
		s := Settings{Cooldown: in}
		if got := s.CooldownDuration(); got != want {
			t.Fatalf("cooldown %q: got %s want %s", in, got, want)
		}
	}
}

func TestTargetsOrderAndSkipEmpty(t *testing.T) {
	s := Settings{GroupID: " C123 ", UserID: "U456"}
	got := s.Targets()
	if len(got) != 2 || got[0] != (model.Target{Kind: model.TargetGroup, ID: "C123"}) || got[1].Kind != model.TargetUser {
		t.Fatalf("unexpected targets: %+v", got)
	}

	if n := len((Settings{UserID: "U1"}).Targets()); n != 1 {
		t.Fatalf("expected one target, got %d", n)
	}
	if n := len((Settings{}).Targets()); n != 0 {
		t.Fatalf("expected no targets, got %d", n)
	}
}

func TestCooldownAcceptsNumber(t *testing.T) {
	var s Settings
	if err := json.Unmarshal([]byte(`{"cooldown": 15}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.CooldownDuration() != 15*time.Second {
		t.Fatalf("expected 15s, got %s", s.CooldownDuration())
	}
}

func TestFileStorePreservesSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "line_config.json")
	initial := `{"access_token":"tok","channel_secret":"shh","group_id":"C1","cooldown":"30","enabled":true}`
	if err := os.WriteFile(path, []byte(initial), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	fs, err := NewFileStore(sl.Discard(), path, "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	snap := fs.Snapshot()
	if !snap.Enabled || snap.AccessToken != "tok" || snap.Template != DefaultTemplate {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	snap.ChannelSecret = ""
	snap.UserID = "U9"
	if err := fs.Update(snap); err != nil {
		t.Fatalf("update: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var onDisk Settings
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if onDisk.ChannelSecret != "shh" || onDisk.UserID != "U9" {
		t.Fatalf("unexpected persisted settings: %+v", onDisk)
	}
}

func TestFileStoreTokenOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "line_config.json")
	fs, err := NewFileStore(sl.Discard(), path, "env-token")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if got := fs.Snapshot().AccessToken; got != "env-token" {
		t.Fatalf("expected env override, got %q", got)
	}
	if got := fs.Snapshot().Cooldown; got != DefaultCooldown {
		t.Fatalf("expected default cooldown, got %q", got)
	}
}

func TestRedacted(t *testing.T) {
	s := Settings{AccessToken: "secret", ChannelSecret: "x"}.Redacted()
	if s.AccessToken == "secret" || s.ChannelSecret != "" {
		t.Fatalf("secrets leaked: %+v", s)
	}
}
