package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// FileRotator is an io.Writer over a log file that rotates by size and by
// day. Rotated files are optionally gzipped and pruned by age and count.
type FileRotator struct {
	config *Config
	now    func() time.Time

	mu     sync.Mutex
	file   *os.File
	size   int64
	opened time.Time

	// bg tracks compression and pruning of rotated files.
	bg sync.WaitGroup
}

// NewFileRotator opens cfg.FilePath for appending, creating its directory.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	r := &FileRotator{config: cfg, now: time.Now}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) open() error {
	f, err := os.OpenFile(r.config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.file, r.size, r.opened = f, st.Size(), r.now()
	return nil
}

// Write appends p, rotating first when p would overflow MaxSize or the day
// has changed since the file was opened.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.due(int64(len(p))) {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *FileRotator) due(incoming int64) bool {
	limit := r.config.MaxSize << 20
	if limit > 0 && r.size > 0 && r.size+incoming > limit {
		return true
	}
	y1, m1, d1 := r.opened.Date()
	y2, m2, d2 := r.now().Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

// Rotate moves the current file aside and starts a new one.
func (r *FileRotator) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotate()
}

func (r *FileRotator) rotate() error {
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		if err != nil {
			return fmt.Errorf("close current log: %w", err)
		}
	}

	stem, ext := r.stem()
	moved := filepath.Join(filepath.Dir(r.config.FilePath),
		stem+"-"+r.now().Format("20060102-150405.000000000")+ext)
	if err := os.Rename(r.config.FilePath, moved); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("rename log file: %w", err)
	}
	if err := r.open(); err != nil {
		return err
	}

	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		if r.config.Compress {
			if err := gzipFile(moved); err == nil {
				os.Remove(moved)
			}
		}
		r.prune()
	}()
	return nil
}

func (r *FileRotator) stem() (string, string) {
	base := filepath.Base(r.config.FilePath)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

// gzipFile writes src.gz next to src. On failure the partial archive is
// removed and src is left alone.
func gzipFile(src string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	dst := src + ".gz"
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	zw := gzip.NewWriter(out)
	zw.Name = filepath.Base(src)
	zw.ModTime = time.Now()
	if _, err = io.Copy(zw, in); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// backup is a rotated log file.
type backup struct {
	path string
	mod  time.Time
}

// backups lists rotated files, oldest first.
func (r *FileRotator) backups() []backup {
	stem, ext := r.stem()
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(r.config.FilePath), stem+"-*"+ext+"*"))

	out := make([]backup, 0, len(matches))
	for _, m := range matches {
		if st, err := os.Stat(m); err == nil {
			out = append(out, backup{path: m, mod: st.ModTime()})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].mod.Equal(out[j].mod) {
			return out[i].mod.Before(out[j].mod)
		}
		return out[i].path < out[j].path
	})
	return out
}

// prune keeps at most MaxBackups rotated files and drops any older than
// MaxAge days.
func (r *FileRotator) prune() {
	files := r.backups()
	if keep := r.config.MaxBackups; keep > 0 && len(files) > keep {
		for _, f := range files[:len(files)-keep] {
			os.Remove(f.path)
		}
		files = files[len(files)-keep:]
	}
	if r.config.MaxAge <= 0 {
		return
	}
	cutoff := r.now().AddDate(0, 0, -r.config.MaxAge)
	for _, f := range files {
		if f.mod.Before(cutoff) {
			os.Remove(f.path)
		}
	}
}

// Close waits for background compression, then closes the file.
func (r *FileRotator) Close() error {
	r.bg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Sync commits the current file to disk.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

// GetLogFiles lists the current log file and then its backups, oldest first.
func (r *FileRotator) GetLogFiles() ([]string, error) {
	r.bg.Wait()

	files := []string{r.config.FilePath}
	for _, b := range r.backups() {
		files = append(files, b.path)
	}
	return files, nil
}
