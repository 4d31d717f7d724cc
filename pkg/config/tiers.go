package config

import (
	"fmt"
	"os"

	"options-core/pkg/db"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// tierSeedFile is the on-disk shape of the duration tier seed.
type tierSeedFile struct {
	Tiers []struct {
		DurationSecs     int64   `yaml:"duration_secs"`
		ProfitMultiplier float64 `yaml:"profit_multiplier"`
		MinStakeUSD      string  `yaml:"min_stake_usd"`
	} `yaml:"tiers"`
}

// LoadTierSeed parses the YAML tier seed at path. Stakes are decimal strings
// so the file never carries float rounding into the ledger.
func LoadTierSeed(path string) ([]db.AssetTier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tier seed: %w", err)
	}

	var file tierSeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse tier seed: %w", err)
	}

	out := make([]db.AssetTier, 0, len(file.Tiers))
	for i, t := range file.Tiers {
		if t.DurationSecs <= 0 {
			return nil, fmt.Errorf("tier %d: non-positive duration %d", i, t.DurationSecs)
		}
		if t.ProfitMultiplier <= 1 {
			return nil, fmt.Errorf("tier %d: profit multiplier %v must exceed 1", i, t.ProfitMultiplier)
		}
		minStake, err := decimal.NewFromString(t.MinStakeUSD)
		if err != nil {
			return nil, fmt.Errorf("tier %d: min stake %q: %w", i, t.MinStakeUSD, err)
		}
		out = append(out, db.AssetTier{
			DurationSecs:     t.DurationSecs,
			ProfitMultiplier: t.ProfitMultiplier,
			MinStakeUSD:      minStake,
		})
	}
	return out, nil
}
