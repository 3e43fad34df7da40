package manager

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/arkmire/steamtrade/tradeoffer"
	"github.com/pelletier/go-toml/v2"
)

// FileConfig is the on-disk shape of Config (spec.md §6's knob set),
// decoded from TOML so a host can keep its credentials and tuning
// knobs in a config file instead of wiring Config literals by hand.
type FileConfig struct {
	APIKey                   string `toml:"api_key"`
	IntervalMs               int64  `toml:"interval_ms"`
	CancelTimeMs             int64  `toml:"cancel_time_ms"`
	PendingCancelTimeMs      int64  `toml:"pending_cancel_time_ms"`
	CancelOfferCount         int64  `toml:"cancel_offer_count"`
	CancelOfferCountMinAgeMs int64  `toml:"cancel_offer_count_min_age_ms"`
	GetDescriptions          bool   `toml:"get_descriptions"`
	Language                 string `toml:"language"`
	EnableQuotaTrim          bool   `toml:"enable_quota_trim"`
	ItemCacheCapacity        int    `toml:"item_cache_capacity"`
	ItemCacheTTLSeconds      int64  `toml:"item_cache_ttl_seconds"`
	IdentitySecret           string `toml:"identity_secret"`

	Log FileLogConfig `toml:"log"`
}

// FileLogConfig is LogConfig's on-disk shape, named and tagged the way
// ellavondegurechaff-gohye's bottemplate.LogConfig is.
type FileLogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

// LoadConfig reads and decodes a FileConfig from path, then converts it
// to a Config ready for New. The KeyDeriver field has no TOML
// representation — callers needing the dynamic-mode deriver set it on
// the returned Config directly.
func LoadConfig(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("manager: open config: %w", err)
	}
	defer file.Close()

	var fc FileConfig
	if err := toml.NewDecoder(file).Decode(&fc); err != nil {
		return Config{}, fmt.Errorf("manager: decode config: %w", err)
	}

	return Config{
		APIKey:                   tradeoffer.APIKey(fc.APIKey),
		IntervalMs:               fc.IntervalMs,
		CancelTimeMs:             fc.CancelTimeMs,
		PendingCancelTimeMs:      fc.PendingCancelTimeMs,
		CancelOfferCount:         fc.CancelOfferCount,
		CancelOfferCountMinAgeMs: fc.CancelOfferCountMinAgeMs,
		GetDescriptions:          fc.GetDescriptions,
		Language:                 fc.Language,
		EnableQuotaTrim:          fc.EnableQuotaTrim,
		ItemCacheCapacity:        fc.ItemCacheCapacity,
		ItemCacheTTLSeconds:      fc.ItemCacheTTLSeconds,
		IdentitySecret:           fc.IdentitySecret,
		Log: LogConfig{
			Level:     fc.Log.Level,
			Format:    fc.Log.Format,
			AddSource: fc.Log.AddSource,
		},
	}, nil
}
