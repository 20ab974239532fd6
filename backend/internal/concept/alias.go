package concept

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"mindcoach/backend/pkg/errors"
	"mindcoach/backend/pkg/logger"
)

// AliasPair maps one non-canonical variant to its canonical concept name
type AliasPair struct {
	Alias     string `json:"alias"`
	Canonical string `json:"canonical"`
}

// aliasFile is the persisted representation, a single JSON document read
// wholesale at load time and rewritten wholesale on append.
type aliasFile struct {
	Aliases map[string]string `json:"aliases"`
}

// AliasTable is the persisted alias -> canonical mapping, held fully in
// memory. Reads run against a consistent snapshot; Reload swaps the snapshot
// atomically. Appends are serialized by a single in-process mutex, so the
// table assumes a single writer process.
type AliasTable struct {
	path   string
	logger *zap.Logger

	mu         sync.RWMutex // guards table and canonicals
	table      map[string]string
	canonicals []string // sorted distinct canonical names, stable iteration order

	writeMu sync.Mutex // serializes Append against the persisted file
}

// NewAliasTable loads the alias table from path. A missing or unreadable
// file yields an empty table, never an error: the alias dictionary is a
// best-effort enrichment.
func NewAliasTable(path string) *AliasTable {
	t := &AliasTable{
		path:   path,
		logger: logger.Named("alias"),
	}
	t.load()
	return t
}

// Lookup returns the canonical name for a lexically-normalized alias
func (t *AliasTable) Lookup(normalized string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	canonical, ok := t.table[normalized]
	return canonical, ok
}

// Canonicals returns a snapshot of all known canonical names, sorted.
// The order is stable across calls for the same table contents, which is
// what makes similarity tie-breaking deterministic.
func (t *AliasTable) Canonicals() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, len(t.canonicals))
	copy(out, t.canonicals)
	return out
}

// Len returns the number of alias entries
func (t *AliasTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.table)
}

// Reload re-reads the persisted table and atomically replaces the in-memory
// snapshot. Callable at any time.
func (t *AliasTable) Reload() {
	t.load()
}

// Append merges new pairs into the persisted table and reloads the in-memory
// snapshot. An alias that already exists is overwritten by the new canonical
// (last write wins). Pairs with an empty side, or whose alias equals their
// canonical, are skipped. On a disk write failure the in-memory table is left
// untouched and the error is returned for the caller to log.
func (t *AliasTable) Append(pairs []AliasPair) error {
	if len(pairs) == 0 {
		return nil
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	raw := t.readFile()
	if raw.Aliases == nil {
		raw.Aliases = make(map[string]string)
	}

	added := 0
	for _, p := range pairs {
		if p.Alias == "" || p.Canonical == "" || p.Alias == p.Canonical {
			continue
		}
		raw.Aliases[p.Alias] = p.Canonical
		added++
	}
	if added == 0 {
		return nil
	}

	if err := t.writeFile(raw); err != nil {
		return errors.NewAliasPersist(t.path, err)
	}

	t.load()
	t.logger.Info("Alias table appended",
		zap.Int("pairs", added),
		zap.Int("total", t.Len()))
	return nil
}

// load reads the persisted file, normalizes every entry lexically, and swaps
// the snapshot in under the write lock.
func (t *AliasTable) load() {
	raw := t.readFile()

	table := make(map[string]string, len(raw.Aliases))
	canonicalSet := make(map[string]struct{}, len(raw.Aliases))
	for alias, canonical := range raw.Aliases {
		aliasNorm := NormalizeLexical(alias)
		canonicalNorm := NormalizeLexical(canonical)
		if aliasNorm == "" || canonicalNorm == "" {
			continue
		}
		table[aliasNorm] = canonicalNorm
		canonicalSet[canonicalNorm] = struct{}{}
	}

	canonicals := make([]string, 0, len(canonicalSet))
	for name := range canonicalSet {
		canonicals = append(canonicals, name)
	}
	sort.Strings(canonicals)

	t.mu.Lock()
	t.table = table
	t.canonicals = canonicals
	t.mu.Unlock()
}

// readFile parses the persisted table, returning an empty document when the
// file is missing or malformed.
func (t *AliasTable) readFile() aliasFile {
	var raw aliasFile

	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.logger.Warn("Failed to read alias table, using empty table",
				zap.String("path", t.path), zap.Error(err))
		}
		return raw
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		t.logger.Warn("Failed to parse alias table, using empty table",
			zap.String("path", t.path), zap.Error(err))
		return aliasFile{}
	}
	return raw
}

// writeFile persists the table with write-temp + rename so a crashed write
// never leaves a half-written table behind.
func (t *AliasTable) writeFile(raw aliasFile) error {
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding alias table: %w", err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating alias directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".aliases-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing alias table: %w", err)
	}
	return nil
}
