package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
)

var (
	// ErrNoApps is returned when the directory holds no discovery files
	ErrNoApps = errors.New("no running bridge found")

	// ErrAmbiguous is returned when several apps run and none was named
	ErrAmbiguous = errors.New("several bridges running, pick one with --app")
)

// Record is what a running bridge publishes about itself
type Record struct {
	AppID     string    `json:"app_id"`
	Port      int       `json:"port"`
	Token     string    `json:"token"`
	PID       int       `json:"pid"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// Path returns the discovery file for appID
func Path(dir, appID string) string {
	return filepath.Join(dir, appID+".json")
}

// Write publishes rec atomically. The file holds the token, so it is
// readable by the owner only.
func Write(dir string, rec Record) (string, error) {
	if rec.AppID == "" {
		return "", errors.New("discovery record has no app id")
	}
	if strings.ContainsAny(rec.AppID, `/\`) {
		return "", fmt.Errorf("invalid app id %q", rec.AppID)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create discovery dir: %w", err)
	}

	data, err := sonic.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode discovery record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+rec.AppID+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create discovery file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return "", fmt.Errorf("chmod discovery file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write discovery file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close discovery file: %w", err)
	}

	path := Path(dir, rec.AppID)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publish discovery file: %w", err)
	}
	return path, nil
}

// Remove deletes the discovery file for appID. A missing file is not an
// error.
func Remove(dir, appID string) error {
	if err := os.Remove(Path(dir, appID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Read loads one discovery file
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if rec.AppID == "" {
		rec.AppID = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	return rec, nil
}

// List returns every readable record in dir sorted by app id. Unreadable
// files are skipped.
func List(dir string) ([]Record, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "*.json", doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	records := make([]Record, 0, len(matches))
	for _, m := range matches {
		rec, err := Read(filepath.Join(dir, m))
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].AppID < records[j].AppID })
	return records, nil
}

// Find resolves the bridge to talk to: the named app when appID is set,
// otherwise the only one running
func Find(dir, appID string) (Record, error) {
	if appID != "" {
		rec, err := Read(Path(dir, appID))
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, fmt.Errorf("%w for app %q in %s", ErrNoApps, appID, dir)
		}
		return rec, err
	}

	records, err := List(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, fmt.Errorf("%w in %s", ErrNoApps, dir)
		}
		return Record{}, err
	}
	switch len(records) {
	case 0:
		return Record{}, fmt.Errorf("%w in %s", ErrNoApps, dir)
	case 1:
		return records[0], nil
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.AppID
	}
	return Record{}, fmt.Errorf("%w: %s", ErrAmbiguous, strings.Join(ids, ", "))
}
