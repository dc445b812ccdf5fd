package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SymbolFee is one entry of the per-symbol fee list exported from the
// exchange account (binance tradeFee format).
type SymbolFee struct {
	Symbol          string `yaml:"symbol" json:"symbol"`
	MakerCommission string `yaml:"makerCommission" json:"makerCommission"`
	TakerCommission string `yaml:"takerCommission" json:"takerCommission"`
}

// LoadFeeFile loads a per-symbol fee list. JSON files are accepted as well
// since they are valid YAML.
func LoadFeeFile(path string) ([]SymbolFee, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fee file: %w", err)
	}
	var fees []SymbolFee
	if err := yaml.Unmarshal(data, &fees); err != nil {
		return nil, fmt.Errorf("failed to parse fee file: %w", err)
	}
	for i, f := range fees {
		if f.Symbol == "" {
			return nil, fmt.Errorf("fee entry %d has no symbol", i)
		}
	}
	return fees, nil
}
