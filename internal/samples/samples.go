// Package samples implements the file-backed voice-sample catalog: one WAV
// file per sample plus a single JSON index. Reference audio is
// silence-trimmed before storage so it is ready for voice cloning. Unnamed
// samples are working copies capped at a small retention count; named
// samples are kept until deleted.
package samples

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vietvoice/vvtts/pkg/audio"
	"github.com/vietvoice/vvtts/pkg/tts"
)

// MaxUnnamedSamples is the number of unnamed (working) samples retained;
// creating more evicts the oldest.
const MaxUnnamedSamples = 3

// indexFile is the JSON index name inside the samples directory.
const indexFile = "metadata.json"

// ErrNotFound is returned when a sample id is not in the catalog.
var ErrNotFound = errors.New("samples: not found")

// Sample is one catalog entry. The audio lives next to the index as {id}.wav.
type Sample struct {
	ID            string  `json:"id"`
	Name          string  `json:"name,omitempty"`
	ReferenceText string  `json:"reference_text"`
	CreatedAt     float64 `json:"created_at"`
	IsNamed       bool    `json:"is_named"`
}

// Store manages the samples directory. A single gateway process is the only
// writer; the mutex serialises its concurrent request handlers.
type Store struct {
	dir string

	mu sync.Mutex
}

// NewStore returns a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("samples: create dir %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Create trims silence from the raw audio, stores it as a WAV, and records
// the sample in the index. When the unnamed count exceeds the retention cap
// the oldest unnamed samples are evicted, audio files included.
func (s *Store) Create(raw []byte, referenceText, name string) (*Sample, error) {
	name = strings.TrimSpace(name)

	trimmed, err := audio.TrimSilence(raw, audio.DefaultSilenceThresholdDB)
	if err != nil {
		return nil, fmt.Errorf("samples: invalid audio: %w", err)
	}

	sample := &Sample{
		ID:            uuid.NewString()[:8],
		Name:          name,
		ReferenceText: referenceText,
		CreatedAt:     tts.Now(),
		IsNamed:       name != "",
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.audioPath(sample.ID), trimmed, 0o644); err != nil {
		return nil, fmt.Errorf("samples: write audio for %s: %w", sample.ID, err)
	}

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	index = append(index, *sample)
	index = s.evictOldUnnamed(index)

	if err := s.saveIndex(index); err != nil {
		return nil, err
	}
	return sample, nil
}

// List returns all samples, named first, then newest first.
func (s *Store) List() ([]Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(index, func(i, j int) bool {
		if index[i].IsNamed != index[j].IsNamed {
			return index[i].IsNamed
		}
		return index[i].CreatedAt > index[j].CreatedAt
	})
	return index, nil
}

// Audio returns the stored WAV bytes and reference text for a sample.
func (s *Store) Audio(id string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, "", err
	}
	var found *Sample
	for i := range index {
		if index[i].ID == id {
			found = &index[i]
			break
		}
	}
	if found == nil {
		return nil, "", ErrNotFound
	}

	data, err := os.ReadFile(s.audioPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("samples: read audio for %s: %w", id, err)
	}
	return data, found.ReferenceText, nil
}

// Delete removes a sample from the index and deletes its audio file.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	kept := index[:0]
	found := false
	for _, sample := range index {
		if sample.ID == id {
			found = true
			continue
		}
		kept = append(kept, sample)
	}
	if !found {
		return ErrNotFound
	}

	if err := s.saveIndex(kept); err != nil {
		return err
	}
	if err := os.Remove(s.audioPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("samples: remove audio for %s: %w", id, err)
	}
	return nil
}

// evictOldUnnamed drops the oldest unnamed samples beyond the retention
// cap, deleting their audio files.
func (s *Store) evictOldUnnamed(index []Sample) []Sample {
	var named, unnamed []Sample
	for _, sample := range index {
		if sample.IsNamed {
			named = append(named, sample)
		} else {
			unnamed = append(unnamed, sample)
		}
	}

	sort.SliceStable(unnamed, func(i, j int) bool {
		return unnamed[i].CreatedAt < unnamed[j].CreatedAt
	})
	for len(unnamed) > MaxUnnamedSamples {
		old := unnamed[0]
		unnamed = unnamed[1:]
		os.Remove(s.audioPath(old.ID))
	}

	return append(named, unnamed...)
}

func (s *Store) audioPath(id string) string {
	return filepath.Join(s.dir, id+".wav")
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, indexFile)
}

// loadIndex reads the JSON index; a missing file is an empty catalog.
func (s *Store) loadIndex() ([]Sample, error) {
	data, err := os.ReadFile(s.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("samples: read index: %w", err)
	}
	var index []Sample
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("samples: decode index: %w", err)
	}
	return index, nil
}

// saveIndex rewrites the index atomically (write-temp-then-rename) so a
// crashed write never leaves a torn file behind.
func (s *Store) saveIndex(index []Sample) error {
	if index == nil {
		index = []Sample{}
	}
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("samples: encode index: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, indexFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("samples: create temp index: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("samples: write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("samples: close temp index: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.indexPath()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("samples: replace index: %w", err)
	}
	return nil
}
