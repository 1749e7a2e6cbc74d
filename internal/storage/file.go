package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	logx "winova/pkg/logx"
)

// fileStore is the memory store plus an append-only journal per collection:
//
//	<dir>/<collection>.jsonl   one {"seq":N,"doc":{...}} object per line
//
// Journals are replayed on open. Lines that fail to decode are skipped.
type fileStore struct {
	*memoryStore

	dir   string
	log   logx.Logger
	files map[string]*os.File
}

type journalLine struct {
	Seq int64          `json:"seq"`
	Doc map[string]any `json:"doc"`
}

func openFile(cfg Config, log logx.Logger) (Gateway, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	fs := &fileStore{
		memoryStore: newMemoryStore(),
		dir:         dir,
		log:         log,
		files:       map[string]*os.File{},
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	for _, p := range paths {
		col := strings.TrimSuffix(filepath.Base(p), ".jsonl")
		if !validCollection(col) {
			continue
		}
		n, skipped, err := fs.replay(col, p)
		if err != nil {
			return nil, err
		}
		log.Debug("journal replayed", logx.String("collection", col), logx.Int("docs", n), logx.Int("skipped", skipped))
	}
	// Keep per-collection order stable after replay.
	for col, es := range fs.cols {
		sortEntries(es, "", false)
		fs.cols[col] = es
	}

	fs.appendHook = fs.append
	fs.closeHook = fs.closeFiles
	return fs, nil
}

func (s *fileStore) replay(col, path string) (n, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var ln journalLine
		if err := json.Unmarshal(sc.Bytes(), &ln); err != nil || ln.Doc == nil {
			skipped++
			continue
		}
		s.load(col, entry{seq: ln.Seq, doc: ln.Doc})
		n++
	}
	return n, skipped, sc.Err()
}

// append runs under memoryStore.mu.
func (s *fileStore) append(col string, e entry) error {
	f := s.files[col]
	if f == nil {
		var err error
		f, err = os.OpenFile(filepath.Join(s.dir, col+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		s.files[col] = f
	}
	return json.NewEncoder(f).Encode(journalLine{Seq: e.seq, Doc: e.doc})
}

// closeFiles runs under memoryStore.mu.
func (s *fileStore) closeFiles() error {
	var first error
	for col, f := range s.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.files, col)
	}
	return first
}
