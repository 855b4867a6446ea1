// Package migrate moves legacy flat-named objects into the
// hierarchical key layout. Legacy uploads were stored as
// "<prefix><CODE>_<workerID>.<ext>" directly under the prefix; the
// current layout is "<prefix><workerID>/<CODE>.<ext>".
package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/tomliptrot/handwriting-app/internal/storage"
)

var extPattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|webp)$`)

// Entry is a single legacy object and its destination.
type Entry struct {
	OldKey   string
	NewKey   string
	WorkerID string
	Code     string
}

// Report summarizes one migration run.
type Report struct {
	Migrated    int
	Skipped     int
	Failed      int
	Unparseable []string
}

// Migrator rewrites legacy keys in an object store.
type Migrator struct {
	store  storage.ObjectStore
	prefix string
	logger *slog.Logger
}

// New creates a Migrator over the given store and key prefix.
func New(store storage.ObjectStore, prefix string, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{store: store, prefix: prefix, logger: logger}
}

// ParseLegacyFilename splits a flat filename into its code and worker
// parts. Worker IDs cannot contain underscores, so the split is at the
// last underscore; the code part may contain any number of them.
func ParseLegacyFilename(name string) (code, workerID, ext string, ok bool) {
	m := extPattern.FindString(name)
	if m == "" {
		return "", "", "", false
	}
	base := strings.TrimSuffix(name, m)
	idx := strings.LastIndex(base, "_")
	if idx <= 0 || idx == len(base)-1 {
		return "", "", "", false
	}
	return base[:idx], base[idx+1:], strings.TrimPrefix(m, "."), true
}

// Scan lists legacy objects under the prefix and plans their moves.
// Objects already in the hierarchical layout are left alone.
func (m *Migrator) Scan(ctx context.Context) ([]Entry, []string, error) {
	objects, err := m.store.List(ctx, m.prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("list objects: %w", err)
	}

	var entries []Entry
	var unparseable []string
	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.Key, m.prefix)
		if strings.Contains(rel, "/") {
			continue
		}
		code, workerID, ext, ok := ParseLegacyFilename(rel)
		if !ok {
			unparseable = append(unparseable, obj.Key)
			continue
		}
		entries = append(entries, Entry{
			OldKey:   obj.Key,
			NewKey:   m.prefix + path.Join(workerID, code+"."+ext),
			WorkerID: workerID,
			Code:     code,
		})
	}
	return entries, unparseable, nil
}

// Run migrates every parseable legacy object. With dryRun set it only
// reports what would happen. Each object is copied, verified at the
// destination, then deleted; a failure on one object does not stop the
// rest.
func (m *Migrator) Run(ctx context.Context, dryRun bool) (Report, error) {
	entries, unparseable, err := m.Scan(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{Unparseable: unparseable}
	for _, key := range unparseable {
		m.logger.Warn("skipping unparseable legacy object", "key", key)
		report.Skipped++
	}

	for _, e := range entries {
		if dryRun {
			m.logger.Info("would migrate", "from", e.OldKey, "to", e.NewKey)
			report.Migrated++
			continue
		}
		if err := m.migrateOne(ctx, e); err != nil {
			m.logger.Error("migration failed", "key", e.OldKey, "error", err)
			report.Failed++
			continue
		}
		report.Migrated++
	}
	return report, nil
}

func (m *Migrator) migrateOne(ctx context.Context, e Entry) error {
	exists, err := m.store.Exists(ctx, e.NewKey)
	if err != nil {
		return fmt.Errorf("check destination: %w", err)
	}
	if exists {
		// Already migrated on a previous run; just clear the original.
		m.logger.Info("destination exists, removing legacy copy", "key", e.OldKey)
		return m.store.Delete(ctx, e.OldKey)
	}

	if err := m.store.Copy(ctx, e.OldKey, e.NewKey); err != nil {
		return fmt.Errorf("copy to %s: %w", e.NewKey, err)
	}
	exists, err = m.store.Exists(ctx, e.NewKey)
	if err != nil {
		return fmt.Errorf("verify %s: %w", e.NewKey, err)
	}
	if !exists {
		return fmt.Errorf("copy to %s not visible, leaving original in place", e.NewKey)
	}
	return m.store.Delete(ctx, e.OldKey)
}

// Verify returns the legacy keys still parseable as flat uploads. A
// clean store returns an empty slice.
func (m *Migrator) Verify(ctx context.Context) ([]string, error) {
	entries, _, err := m.Scan(ctx)
	if err != nil {
		return nil, err
	}
	var remaining []string
	for _, e := range entries {
		remaining = append(remaining, e.OldKey)
	}
	return remaining, nil
}
