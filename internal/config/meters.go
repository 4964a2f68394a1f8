package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// MeterEntry is one priced resource in the meter catalog file.
type MeterEntry struct {
	Resource    string `mapstructure:"resource"`
	Price       string `mapstructure:"price"`
	Asset       string `mapstructure:"asset"`
	Chain       string `mapstructure:"chain"`
	Description string `mapstructure:"description"`
	Version     string `mapstructure:"version"`
}

// DefaultMeterEntries is the compiled-in catalog used when no meters.yml is present.
func DefaultMeterEntries() []MeterEntry {
	return []MeterEntry{
		{
			Resource:    "payroll_execute",
			Price:       "1",
			Asset:       "USDC",
			Chain:       "avalanche",
			Description: "Execute a payroll settlement run",
			Version:     "v1",
		},
	}
}

// MeterCatalogHolder serves the current meter catalog. The catalog is loaded
// once at startup and hot-reloaded when the config file changes; readers only
// ever see a complete, validated snapshot.
type MeterCatalogHolder struct {
	current atomic.Value // holds []MeterEntry
}

func NewMeterCatalogHolder() (*MeterCatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("meters")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/paygate/config")
	v.AddConfigPath("/etc/paygate")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PAYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("meters", DefaultMeterEntries())
	}

	var entries []MeterEntry
	if err := v.UnmarshalKey("meters", &entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		entries = DefaultMeterEntries()
	}
	if err := validateMeterEntries(entries); err != nil {
		return nil, err
	}

	holder := &MeterCatalogHolder{}
	holder.current.Store(entries)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated []MeterEntry
		if err := v.UnmarshalKey("meters", &updated); err != nil {
			log.Printf("[meter-catalog] reload failed: %v", err)
			return
		}
		if err := validateMeterEntries(updated); err != nil {
			log.Printf("[meter-catalog] invalid catalog ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[meter-catalog] reloaded %d meters from %s", len(updated), e.Name)
	})

	return holder, nil
}

// Current returns the active catalog snapshot.
func (h *MeterCatalogHolder) Current() []MeterEntry {
	entries, _ := h.current.Load().([]MeterEntry)
	return entries
}

func validateMeterEntries(entries []MeterEntry) error {
	seen := map[string]struct{}{}
	for _, e := range entries {
		resource := strings.TrimSpace(e.Resource)
		if resource == "" {
			return errors.New("meter resource is required")
		}
		if _, dup := seen[resource]; dup {
			return errors.New("duplicate meter resource: " + resource)
		}
		seen[resource] = struct{}{}
		if strings.TrimSpace(e.Price) == "" {
			return errors.New("meter price is required: " + resource)
		}
		if strings.TrimSpace(e.Asset) == "" {
			return errors.New("meter asset is required: " + resource)
		}
		if strings.TrimSpace(e.Chain) == "" {
			return errors.New("meter chain is required: " + resource)
		}
	}
	return nil
}
