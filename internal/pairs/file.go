package pairs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type pairsFile struct {
	Exchange  string    `yaml:"exchange"`
	UpdatedAt time.Time `yaml:"updated_at"`
	Pairs     []string  `yaml:"pairs"`
}

// FilePath is where the pairs of exchange are kept under dir.
func FilePath(dir, exchange string) string {
	return filepath.Join(dir, exchange+".yml")
}

// SaveFile writes the discovered pairs of exchange to dir, replacing the
// previous list atomically.
func SaveFile(dir, exchange string, list []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create pairs dir: %w", err)
	}

	data, err := yaml.Marshal(pairsFile{Exchange: exchange, UpdatedAt: time.Now().UTC(), Pairs: list})
	if err != nil {
		return fmt.Errorf("marshal pairs: %w", err)
	}

	path := FilePath(dir, exchange)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write pairs file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace pairs file: %w", err)
	}
	return nil
}

// LoadFile reads the pairs saved for exchange.
func LoadFile(dir, exchange string) ([]string, error) {
	data, err := os.ReadFile(FilePath(dir, exchange))
	if err != nil {
		return nil, fmt.Errorf("read pairs file: %w", err)
	}
	var f pairsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse pairs file: %w", err)
	}
	if len(f.Pairs) == 0 {
		return nil, fmt.Errorf("pairs file for %s is empty", exchange)
	}
	return f.Pairs, nil
}
