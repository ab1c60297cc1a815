package watermark

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// DefaultBasename is the snapshot file name used when none is configured.
const DefaultBasename = "aegis-watch-elb-status"

// Path places basename inside dir, or the OS temporary directory when dir is
// empty.
func Path(dir, basename string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	if basename == "" {
		basename = DefaultBasename
	}
	return filepath.Join(dir, basename)
}

// FileStore keeps the watermark snapshot in a single file that is replaced
// atomically on every save.
type FileStore struct {
	mu   sync.Mutex
	path string
	obs  ports.Observability
}

func NewFileStore(path string, obs ports.Observability) *FileStore {
	return &FileStore{path: path, obs: obs}
}

func (f *FileStore) Load() domain.Watermarks {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logError("watermark_load_failed", err)
		}
		return domain.Watermarks{}
	}

	marks, err := decodeSnapshot(data)
	if err != nil {
		f.logError("watermark_snapshot_discarded", err)
		return domain.Watermarks{}
	}
	return marks
}

func (f *FileStore) Save(marks domain.Watermarks) error {
	data, err := encodeSnapshot(marks)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create watermark dir: %w", err)
	}

	tmp := f.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create temporary snapshot: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temporary snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temporary snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temporary snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename snapshot into place: %w", err)
	}

	// Make the rename itself durable.
	if dir, err := os.Open(filepath.Dir(f.path)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}

func (f *FileStore) logError(msg string, err error) {
	if f.obs != nil {
		f.obs.LogError(msg, err, ports.Field{Key: "path", Value: f.path})
	}
}

var _ ports.WatermarkStore = (*FileStore)(nil)
