package samples

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vietvoice/vvtts/pkg/audio"
)

// voicedWAV returns a short WAV loud enough that silence trimming keeps it.
func voicedWAV() []byte {
	pcm := make([]byte, 3200) // 100 ms at 16 kHz mono
	for i := 0; i < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], 10000)
	}
	return audio.Encode(pcm, 16000, 1, 16)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func TestCreateAndAudio(t *testing.T) {
	store := newTestStore(t)

	sample, err := store.Create(voicedWAV(), "xin chào các bạn", "narrator")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(sample.ID) != 8 {
		t.Errorf("sample ID length = %d, want 8", len(sample.ID))
	}
	if !sample.IsNamed {
		t.Error("sample.IsNamed = false, want true")
	}

	data, refText, err := store.Audio(sample.ID)
	if err != nil {
		t.Fatalf("Audio() error = %v", err)
	}
	if refText != "xin chào các bạn" {
		t.Errorf("reference text = %q, want original", refText)
	}
	if _, err := audio.Parse(data); err != nil {
		t.Errorf("stored audio is not valid WAV: %v", err)
	}
}

func TestCreateRejectsInvalidAudio(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Create([]byte("not a wav"), "text", ""); err == nil {
		t.Error("Create() error = nil, want error for invalid audio")
	}
}

func TestUnnamedRetentionCap(t *testing.T) {
	store := newTestStore(t)

	var ids []string
	for i := 0; i < MaxUnnamedSamples+1; i++ {
		sample, err := store.Create(voicedWAV(), "text", "")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		ids = append(ids, sample.ID)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != MaxUnnamedSamples {
		t.Fatalf("List() returned %d samples, want %d", len(list), MaxUnnamedSamples)
	}

	// The oldest unnamed sample is evicted, audio file included.
	if _, _, err := store.Audio(ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("Audio(evicted) error = %v, want ErrNotFound", err)
	}
	if _, err := os.Stat(filepath.Join(store.dir, ids[0]+".wav")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("evicted audio file still exists: %v", err)
	}
}

func TestNamedSamplesNeverEvicted(t *testing.T) {
	store := newTestStore(t)

	named, err := store.Create(voicedWAV(), "text", "keeper")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for i := 0; i < MaxUnnamedSamples+2; i++ {
		if _, err := store.Create(voicedWAV(), "text", ""); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	if _, _, err := store.Audio(named.ID); err != nil {
		t.Errorf("Audio(named) error = %v, want named sample retained", err)
	}
}

func TestListOrder(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Create(voicedWAV(), "text", ""); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	named, err := store.Create(voicedWAV(), "text", "named")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	newest, err := store.Create(voicedWAV(), "text", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List() returned %d samples, want 3", len(list))
	}
	if list[0].ID != named.ID {
		t.Errorf("List()[0] = %q, want named sample %q first", list[0].ID, named.ID)
	}
	if list[1].ID != newest.ID {
		t.Errorf("List()[1] = %q, want newest unnamed %q", list[1].ID, newest.ID)
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	sample, err := store.Create(voicedWAV(), "text", "gone")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := store.Delete(sample.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, _, err := store.Audio(sample.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Audio() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(sample.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() of missing sample error = %v, want ErrNotFound", err)
	}
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	sample, err := store.Create(voicedWAV(), "persisted", "name")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() reopen error = %v", err)
	}
	_, refText, err := reopened.Audio(sample.ID)
	if err != nil {
		t.Fatalf("Audio() after reopen error = %v", err)
	}
	if refText != "persisted" {
		t.Errorf("reference text after reopen = %q, want %q", refText, "persisted")
	}
}
