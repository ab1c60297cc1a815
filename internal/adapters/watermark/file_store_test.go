package watermark

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghalamif/AegisWatch/internal/domain"
)

func TestFileStoreSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")
	store := NewFileStore(path, nil)

	ts := time.Date(2024, 3, 1, 11, 23, 0, 123456789, time.UTC)
	marks := domain.Watermarks{
		{Scope: "us-east-1", Entity: "lb-a", Metric: "AWS_ELB_LATENCY"}:       {Timestamp: ts, Value: 0.25, Statistic: domain.StatisticAverage},
		{Scope: "eu-west-1", Entity: "lb-b", Metric: "AWS_ELB_REQUEST_COUNT"}: {Timestamp: ts.Add(time.Minute), Value: 42, Statistic: domain.StatisticSum, Name: "CUSTOM"},
	}

	if err := store.Save(marks); err != nil {
		t.Fatalf("save: %v", err)
	}

	reopened := NewFileStore(path, nil)
	got := reopened.Load()
	if len(got) != len(marks) {
		t.Fatalf("expected %d keys, got %d", len(marks), len(got))
	}
	for k, want := range marks {
		have, ok := got[k]
		if !ok {
			t.Fatalf("missing key %s", k)
		}
		if !have.Timestamp.Equal(want.Timestamp) || have.Value != want.Value ||
			have.Statistic != want.Statistic || have.Name != want.Name {
			t.Fatalf("key %s: got %+v want %+v", k, have, want)
		}
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary snapshot left behind: %v", err)
	}
}

func TestFileStoreLoadMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent"), nil)
	got := store.Load()
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil map, got %#v", got)
	}
}

func TestFileStoreLoadCorruptSnapshots(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status")
	store := NewFileStore(path, nil)

	marks := domain.Watermarks{
		{Scope: "r1", Entity: "e1", Metric: "m1"}: {Timestamp: time.Unix(100, 0), Value: 5},
	}
	if err := store.Save(marks); err != nil {
		t.Fatalf("save: %v", err)
	}
	valid, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}

	flipped := append([]byte(nil), valid...)
	flipped[len(flipped)-1] ^= 0xFF

	cases := map[string][]byte{
		"empty":     {},
		"truncated": valid[:len(valid)/2],
		"header":    valid[:headerLen-1],
		"magic":     append([]byte("XXXX"), valid[4:]...),
		"checksum":  flipped,
		"garbage":   []byte("not a snapshot at all, just some text"),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if err := os.WriteFile(path, data, 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
			got := store.Load()
			if got == nil || len(got) != 0 {
				t.Fatalf("expected empty map for %s snapshot, got %#v", name, got)
			}
		})
	}
}

func TestFileStoreSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")
	store := NewFileStore(path, nil)
	key := domain.MetricKey{Scope: "r1", Entity: "e1", Metric: "m1"}

	if err := store.Save(domain.Watermarks{key: {Timestamp: time.Unix(100, 0)}}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.Save(domain.Watermarks{key: {Timestamp: time.Unix(160, 0), Value: 7}}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got := store.Load()
	if !got[key].Timestamp.Equal(time.Unix(160, 0)) || got[key].Value != 7 {
		t.Fatalf("expected second snapshot, got %+v", got[key])
	}
}

func TestPathDefaults(t *testing.T) {
	if got := Path("", ""); got != filepath.Join(os.TempDir(), DefaultBasename) {
		t.Fatalf("unexpected default path %s", got)
	}
	if got := Path("/var/lib/aegis", "status"); got != "/var/lib/aegis/status" {
		t.Fatalf("unexpected path %s", got)
	}
}
