package settings

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/speedwagon-io/hevt/internal/model"
)

const (
	DefaultTemplate = "⚠️ 溫度警報：Max={max:.2f}°C, Avg={avg:.2f}°C, DiffArea={diff_area} @ {now}"
	DefaultCooldown = "60"

	// RedactedToken replaces the access token in API responses.
	RedactedToken = "********"
)

// Settings is the notification configuration owned by the Config Store.
type Settings struct {
	Enabled       bool     `json:"enabled"`
	AccessToken   string   `json:"access_token"`
	ChannelSecret string   `json:"channel_secret,omitempty"`
	GroupID       string   `json:"group_id"`
	UserID        string   `json:"user_id"`
	Template      string   `json:"template"`
	Cooldown      Cooldown `json:"cooldown"`
}

// Cooldown keeps the raw configured value; the file may hold a number or a string.
type Cooldown string

func (c *Cooldown) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Cooldown(s)
		return nil
	}
	*c = Cooldown(string(data))
	return nil
}

func Defaults() Settings {
	return Settings{
		Template: DefaultTemplate,
		Cooldown: DefaultCooldown,
	}
}

func (s Settings) Credentials() model.Credentials {
	return model.Credentials{AccessToken: strings.TrimSpace(s.AccessToken)}
}

// Targets returns the configured recipients, group first, skipping empty ids.
func (s Settings) Targets() []model.Target {
	all := []model.Target{
		{Kind: model.TargetGroup, ID: strings.TrimSpace(s.GroupID)},
		{Kind: model.TargetUser, ID: strings.TrimSpace(s.UserID)},
	}
	return lo.Filter(all, func(t model.Target, _ int) bool {
		return t.ID != ""
	})
}

// CooldownDuration parses the configured cooldown in whole seconds.
// Empty, non-numeric and negative values all mean no cooldown.
func (s Settings) CooldownDuration() time.Duration {
	raw := strings.TrimSpace(string(s.Cooldown))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

// Redacted hides secrets for API responses.
func (s Settings) Redacted() Settings {
	out := s
	if out.AccessToken != "" {
		out.AccessToken = RedactedToken
	}
	out.ChannelSecret = ""
	return out
}
