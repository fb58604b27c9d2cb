package supply

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"signalflow/config"
	"signalflow/logger"
)

// Table holds circulating supply per base symbol, merged from the local
// table and a manual-override file. Overrides win whenever they carry a
// positive value. A missing or zero entry means the supply is unknown.
type Table struct {
	config config.SupplyConfig
	log    *logger.Log

	mu     sync.RWMutex
	local  map[string]float64
	manual map[string]float64
}

func NewTable(cfg config.SupplyConfig) *Table {
	return &Table{
		config: cfg,
		log:    logger.GetLogger(),
		local:  make(map[string]float64),
		manual: make(map[string]float64),
	}
}

// Load reads the local and manual supply files. A missing file contributes
// nothing; a corrupt file is an error so a bad deploy is noticed.
func (t *Table) Load() error {
	local, err := readSupplyFile(t.config.LocalFile)
	if err != nil {
		return fmt.Errorf("failed to load local supply table: %w", err)
	}
	manual, err := readSupplyFile(t.config.ManualFile)
	if err != nil {
		return fmt.Errorf("failed to load manual supply overrides: %w", err)
	}

	t.mu.Lock()
	t.local = local
	t.manual = manual
	t.mu.Unlock()

	t.log.WithComponent("supply_table").WithFields(logger.Fields{
		"local_entries":  len(local),
		"manual_entries": len(manual),
	}).Info("supply table loaded")
	return nil
}

// Get returns the circulating supply for a base symbol. Manual overrides take
// precedence. Absent or non-positive entries return ok=false.
func (t *Table) Get(base string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if v, ok := t.manual[base]; ok && v > 0 {
		return v, true
	}
	if v, ok := t.local[base]; ok && v > 0 {
		return v, true
	}
	return 0, false
}

// Merged returns the effective supply per base symbol, overrides applied.
func (t *Table) Merged() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]float64, len(t.local)+len(t.manual))
	for k, v := range t.local {
		if v > 0 {
			out[k] = v
		}
	}
	for k, v := range t.manual {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

// Set updates the local table entry for a base symbol in memory.
func (t *Table) Set(base string, supply float64) {
	t.mu.Lock()
	t.local[base] = supply
	t.mu.Unlock()
}

// Save writes the local table back to disk. Manual overrides are never
// written; they stay under operator control.
func (t *Table) Save() error {
	t.mu.RLock()
	snapshot := make(map[string]float64, len(t.local))
	for k, v := range t.local {
		snapshot[k] = v
	}
	t.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal supply table: %w", err)
	}

	tmp := t.config.LocalFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write supply table: %w", err)
	}
	if err := os.Rename(tmp, t.config.LocalFile); err != nil {
		return fmt.Errorf("failed to replace supply table: %w", err)
	}

	t.log.WithComponent("supply_table").WithFields(logger.Fields{"entries": len(snapshot)}).Info("supply table saved")
	return nil
}

func readSupplyFile(path string) (map[string]float64, error) {
	if path == "" {
		return map[string]float64{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]float64{}, nil
		}
		return nil, err
	}

	var table map[string]float64
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	if table == nil {
		table = map[string]float64{}
	}
	return table, nil
}
