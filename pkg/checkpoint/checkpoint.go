package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"bhascraper/pkg/daterange"
	"bhascraper/pkg/logger"
)

const currentVersion = 1

// Month identifies one fixture query bucket
type Month struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}

// Counters accumulate per-run progress
type Counters struct {
	Fixtures  int `json:"fixtures"`
	Races     int `json:"races"`
	Results   int `json:"results"`
	Horses    int `json:"horses"`
	Skipped   int `json:"skipped"`
	Documents int `json:"documents"`
}

// Add folds other into c
func (c *Counters) Add(other Counters) {
	c.Fixtures += other.Fixtures
	c.Races += other.Races
	c.Results += other.Results
	c.Horses += other.Horses
	c.Skipped += other.Skipped
	c.Documents += other.Documents
}

// Checkpoint is the persisted state of a run over one date range
type Checkpoint struct {
	Range           string    `json:"range"`
	CompletedMonths []Month   `json:"completed_months"`
	Counters        Counters  `json:"counters"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int       `json:"version"`
}

// IsMonthDone reports whether m was fully processed in an earlier run
func (cp *Checkpoint) IsMonthDone(m Month) bool {
	return slices.Contains(cp.CompletedMonths, m)
}

// Manager handles checkpoint persistence for one date range
type Manager struct {
	path   string
	mu     sync.Mutex
	now    func() time.Time
	logger logger.Logger
}

// NewManager creates a manager storing the checkpoint for r under
// <dataDir>/checkpoints
func NewManager(dataDir string, r daterange.Range, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	dir := filepath.Join(dataDir, "checkpoints")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.checkpoint.json", r.Start.Format(daterange.Layout), r.End.Format(daterange.Layout))
	return &Manager{
		path:   filepath.Join(dir, name),
		now:    time.Now,
		logger: log.WithField("component", "checkpoint"),
	}, nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.path
}

// Create writes a fresh checkpoint for r
func (m *Manager) Create(r daterange.Range) (*Checkpoint, error) {
	now := m.now().UTC()
	cp := &Checkpoint{
		Range:     r.String(),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   currentVersion,
	}
	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"range": cp.Range,
		"path":  m.path,
	})
	return cp, nil
}

// Load reads the checkpoint; (nil, nil) when none exists
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Version > currentVersion {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported version %d", cp.Version, currentVersion)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"range":            cp.Range,
		"completed_months": len(cp.CompletedMonths),
		"documents":        cp.Counters.Documents,
		"updated_at":       cp.UpdatedAt,
	})
	return &cp, nil
}

// LoadOrCreate resumes the existing checkpoint for r or starts a new one
func (m *Manager) LoadOrCreate(r daterange.Range) (*Checkpoint, error) {
	cp, err := m.Load()
	if err != nil {
		return nil, err
	}
	if cp != nil {
		return cp, nil
	}
	return m.Create(r)
}

// Save writes the checkpoint to disk atomically
func (m *Manager) Save(cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp.UpdatedAt = m.now().UTC()

	tempPath := m.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"range":            cp.Range,
		"completed_months": len(cp.CompletedMonths),
	})
	return nil
}

// CompleteMonth records month as done with its counters and saves
func (m *Manager) CompleteMonth(cp *Checkpoint, month Month, counts Counters) error {
	if !cp.IsMonthDone(month) {
		cp.CompletedMonths = append(cp.CompletedMonths, month)
	}
	cp.Counters.Add(counts)
	return m.Save(cp)
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Info("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Backup copies the current checkpoint next to itself with a .backup suffix
func (m *Manager) Backup() error {
	if !m.Exists() {
		return nil
	}

	src, err := os.Open(m.path)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(m.path + ".backup")
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy checkpoint to backup: %w", err)
	}

	m.logger.Debug("Checkpoint backed up")
	return nil
}
