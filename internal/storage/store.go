// Package storage keeps finished runs on disk. Each run is a directory
// holding metadata.json, the configuration as config.yaml and the
// observation history as history.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/gridgym/internal/config"
	"github.com/san-kum/gridgym/internal/dynamo"
	"github.com/san-kum/gridgym/internal/history"
)

const (
	metadataFile = "metadata.json"
	configFile   = "config.yaml"
	historyFile  = "history.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Model     string             `json:"model"`
	Agent     string             `json:"agent"`
	Solver    string             `json:"solver"`
	Timestamp time.Time          `json:"timestamp"`
	TimeStep  float64            `json:"time_step"`
	TimeStart float64            `json:"time_start"`
	Episode   int                `json:"episode"`
	Steps     int                `json:"steps"`
	Status    string             `json:"status"`
	Return    float64            `json:"return"`
	Error     string             `json:"error,omitempty"`
	Columns   []string           `json:"columns"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Save writes one run. An empty meta.ID is replaced by a new UUID. cfg
// may be nil.
func (s *Store) Save(meta RunMetadata, cfg *config.Config, h history.History) (string, error) {
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	meta.Columns = h.Columns()
	meta.Metrics = finite(meta.Metrics)
	if math.IsInf(meta.Return, 0) || math.IsNaN(meta.Return) {
		// JSON has no infinities; the status records the failure.
		meta.Return = 0
	}

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if cfg != nil {
		if err := config.Save(filepath.Join(runDir, configFile), cfg); err != nil {
			return "", err
		}
	}

	if err := writeHistory(filepath.Join(runDir, historyFile), meta, h); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func writeHistory(path string, meta RunMetadata, h history.History) error {
	frame, err := h.Select(meta.Columns...)
	if err != nil {
		return err
	}

	csvFile, err := os.Create(path)
	if err != nil {
		return err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	header := append([]string{"time"}, meta.Columns...)
	if err := w.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for i := 0; i < frame.Len(); i++ {
		row[0] = strconv.FormatFloat(meta.TimeStart+float64(i)*meta.TimeStep, 'g', -1, 64)
		for j, series := range frame.Series {
			row[j+1] = strconv.FormatFloat(series[i], 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns the metadata of every stored run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadConfig returns the configuration stored with a run.
func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, configFile))
}

// LoadHistory reads a run's history and the time stamps of its rows.
// spec restores the column grouping and must flatten to the stored
// columns; a nil spec puts every column in its own group.
func (s *Store) LoadHistory(runID string, spec history.Spec) (*history.Full, []float64, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, historyFile))
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 || len(records[0]) == 0 || records[0][0] != "time" {
		return nil, nil, fmt.Errorf("%w: %s has no header", dynamo.ErrRecordLength, historyFile)
	}

	stored := records[0][1:]
	if spec == nil {
		spec = history.Names(stored...)
	} else if got := history.Flatten(spec); !slices.Equal(got, stored) {
		return nil, nil, fmt.Errorf("%w: stored columns %v do not match %v", dynamo.ErrRecordLength, stored, got)
	}
	h := history.NewFull()
	h.SetColumns(spec)
	times := make([]float64, 0, len(records)-1)
	for line, record := range records[1:] {
		values := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%s line %d: %w", historyFile, line+2, err)
			}
			values[j] = v
		}
		times = append(times, values[0])
		if err := h.Append(values[1:]); err != nil {
			return nil, nil, errors.Join(fmt.Errorf("%s line %d", historyFile, line+2), err)
		}
	}
	return h, times, nil
}

func finite(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		out[k] = v
	}
	return out
}
