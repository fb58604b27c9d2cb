package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"signalflow/internal/models"
	"signalflow/logger"
)

const (
	partitionPrefix = "oi_data_"
	partitionSuffix = ".json"
	dateLayout      = "2006-01-02"
)

// Store keeps open-interest observations in one JSON partition per calendar
// day. Appends accumulate in memory and become durable on Flush; partitions
// older than the retention window are evicted after every successful flush.
type Store struct {
	dir           string
	retentionDays int
	log           *logger.Log

	mu      sync.Mutex
	pending map[string][]pendingEntry

	now func() time.Time
}

type pendingEntry struct {
	symbol string
	obs    models.OIObservation
}

// NewStore creates a store rooted at dir, creating the directory when needed.
func NewStore(dir string, retentionDays int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &Store{
		dir:           dir,
		retentionDays: retentionDays,
		log:           logger.GetLogger(),
		pending:       make(map[string][]pendingEntry),
		now:           time.Now,
	}, nil
}

// Append records one observation for the current date partition. The entry is
// held in memory until the next Flush.
func (s *Store) Append(symbol string, obs models.OIObservation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.now().Format(dateLayout)
	s.pending[key] = append(s.pending[key], pendingEntry{symbol: symbol, obs: obs})
}

// Flush persists every pending entry for the given day, merging with whatever
// the partition already holds. Existing entries are preserved and new ones
// appended. On success the pending buffer for that day is cleared and expired
// partitions are evicted.
func (s *Store) Flush(day time.Time) error {
	key := day.Format(dateLayout)

	s.mu.Lock()
	entries := s.pending[key]
	s.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	log := s.log.WithComponent("history_store").WithFields(logger.Fields{"partition": key})

	partition := s.loadPartition(key)
	for _, e := range entries {
		partition[e.symbol] = append(partition[e.symbol], e.obs)
	}

	data, err := json.MarshalIndent(partition, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal partition %s: %w", key, err)
	}

	path := s.partitionPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write partition %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace partition %s: %w", key, err)
	}

	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()

	logger.LogDataFlowEntry(log, "collector", path, len(entries), "oi_observation")

	s.Evict(s.retentionDays)
	return nil
}

// Read returns every stored observation for symbol across the most recent
// dayCount partitions, ordered by timestamp ascending. Partitions that do not
// exist contribute nothing.
func (s *Store) Read(symbol string, dayCount int) []models.OIObservation {
	var out []models.OIObservation

	today := s.now()
	for i := 0; i < dayCount; i++ {
		key := today.AddDate(0, 0, -i).Format(dateLayout)
		partition := s.loadPartition(key)
		out = append(out, partition[symbol]...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Evict deletes every partition strictly older than now minus retentionDays.
// Deletion failures are logged and do not abort the caller.
func (s *Store) Evict(retentionDays int) {
	log := s.log.WithComponent("history_store")

	files, err := os.ReadDir(s.dir)
	if err != nil {
		log.WithError(err).Warn("failed to list history directory for eviction")
		return
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays).Format(dateLayout)
	deleted := 0
	for _, f := range files {
		name := f.Name()
		if !strings.HasPrefix(name, partitionPrefix) || !strings.HasSuffix(name, partitionSuffix) {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, partitionPrefix), partitionSuffix)
		if _, err := time.Parse(dateLayout, key); err != nil {
			log.WithFields(logger.Fields{"file": name}).Warn("skipping history file with unparsable date")
			continue
		}
		// Lexicographic order matches chronological order for this layout.
		if key >= cutoff {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			log.WithError(err).WithFields(logger.Fields{"file": name}).Warn("failed to delete expired partition")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		log.WithFields(logger.Fields{"deleted": deleted, "retention_days": retentionDays}).Info("evicted expired history partitions")
	}
}

func (s *Store) partitionPath(key string) string {
	return filepath.Join(s.dir, partitionPrefix+key+partitionSuffix)
}

// loadPartition reads one day of history. A missing or corrupt partition is
// treated as empty; corruption is logged but never fatal.
func (s *Store) loadPartition(key string) models.DayPartition {
	data, err := os.ReadFile(s.partitionPath(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithComponent("history_store").WithError(err).WithFields(logger.Fields{"partition": key}).Warn("failed to read partition")
		}
		return models.DayPartition{}
	}

	var partition models.DayPartition
	if err := json.Unmarshal(data, &partition); err != nil {
		s.log.WithComponent("history_store").WithError(err).WithFields(logger.Fields{"partition": key}).Warn("corrupt partition treated as empty")
		return models.DayPartition{}
	}
	if partition == nil {
		partition = models.DayPartition{}
	}
	return partition
}
