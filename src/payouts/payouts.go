package payouts

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/ekazakov-source/statka/src/logger"
)

// Config is the versioned CPA reference table injected into the ledger
// pipeline. Verticals maps vertical -> GEO -> CPA payout in the settlement
// currency; a nil payout means the GEO is disabled for that vertical and
// submitted entries for it are skipped without error.
//
// The table is static at runtime: it is loaded once at startup and handed to
// the services that need it, so tests can substitute fixtures.
type Config struct {
	Version   string                    `json:"version"`
	Verticals map[string]map[string]*int64 `json:"verticals"`
}

// Load reads a payout config from the specified file path.
// This should be called once from main.go after config is loaded.
func Load(filePath string) (*Config, error) {
	logger.L.Info("Loading payout tables", "path", filePath)
	file, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading payout data file '%s': %w", filePath, err)
	}

	var cfg Config
	if err := json.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling payout data from '%s': %w", filePath, err)
	}
	if len(cfg.Verticals) == 0 {
		return nil, fmt.Errorf("payout data from '%s' contains no verticals", filePath)
	}
	logger.L.Info("Payout tables loaded successfully.",
		"path", filePath, "version", cfg.Version, "verticalCount", len(cfg.Verticals))
	return &cfg, nil
}

// CPA returns the payout for (vertical, geo). ok is false when the vertical
// is unknown, the GEO is unknown, or the GEO is disabled for the vertical.
func (c *Config) CPA(vertical, geo string) (int64, bool) {
	table, found := c.Verticals[vertical]
	if !found {
		return 0, false
	}
	cpa, found := table[geo]
	if !found || cpa == nil {
		return 0, false
	}
	return *cpa, true
}

// HasVertical reports whether the vertical exists in the payout tables.
func (c *Config) HasVertical(vertical string) bool {
	_, found := c.Verticals[vertical]
	return found
}

// Verticals lists the configured verticals, sorted.
func (c *Config) VerticalNames() []string {
	names := make([]string, 0, len(c.Verticals))
	for v := range c.Verticals {
		names = append(names, v)
	}
	sort.Strings(names)
	return names
}

// Geos lists every GEO that appears in any vertical table, sorted. Disabled
// GEOs are included; the input form still renders them.
func (c *Config) Geos() []string {
	seen := make(map[string]bool)
	for _, table := range c.Verticals {
		for geo := range table {
			seen[geo] = true
		}
	}
	geos := make([]string, 0, len(seen))
	for geo := range seen {
		geos = append(geos, geo)
	}
	sort.Strings(geos)
	return geos
}
