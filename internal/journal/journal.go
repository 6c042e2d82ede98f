package journal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/freeoffice/fieldcam/internal/models"
)

// Entry records one captured photo and where it ended up
type Entry struct {
	SessionID      string   `parquet:"session_id"`
	CapturedAt     int64    `parquet:"captured_at"`
	FileName       string   `parquet:"file_name"`
	Title          string   `parquet:"title"`
	LocationStatus string   `parquet:"location_status"`
	Latitude       *float64 `parquet:"latitude,optional"`
	Longitude      *float64 `parquet:"longitude,optional"`
	Coordinates    string   `parquet:"coordinates"`
	Address        string   `parquet:"address"`
	Reason         string   `parquet:"reason"`
	Width          int32    `parquet:"width"`
	Height         int32    `parquet:"height"`
	SizeBytes      int64    `parquet:"size_bytes"`
	Slot           string   `parquet:"slot"`
	ServerPath     string   `parquet:"server_path"`
}

// NewEntry fills an entry from a saved capture
func NewEntry(sessionID, title string, file models.File, loc models.LocationSnapshot, width, height int, capturedAt time.Time) Entry {
	e := Entry{
		SessionID:      sessionID,
		CapturedAt:     capturedAt.UnixMilli(),
		FileName:       file.Name,
		Title:          title,
		LocationStatus: loc.Status.String(),
		Coordinates:    loc.Coordinates,
		Address:        loc.Address,
		Reason:         loc.Reason,
		Width:          int32(width),
		Height:         int32(height),
		SizeBytes:      int64(len(file.Data)),
	}
	if loc.Status == models.LocationResolved {
		lat, lon := loc.Latitude, loc.Longitude
		e.Latitude = &lat
		e.Longitude = &lon
	}
	return e
}

// Time returns the capture time in UTC
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.CapturedAt).UTC()
}

// Journal is a parquet file of capture entries. Parquet files cannot be
// appended in place, so every Append rewrites the file.
type Journal struct {
	path string
	mu   sync.Mutex
}

func Open(path string) *Journal {
	return &Journal{path: path}
}

func (j *Journal) Path() string {
	return j.path
}

// Append adds entries to the journal
func (j *Journal) Append(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	existing, err := read(j.path)
	if err != nil {
		return err
	}
	all := append(existing, entries...)

	if dir := filepath.Dir(j.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	tmp := j.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create journal file: %w", err)
	}

	writer := parquet.NewGenericWriter[Entry](file)
	if _, err := writer.Write(all); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write journal rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to finish journal: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close journal: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("failed to replace journal: %w", err)
	}

	slog.Debug("Journal updated", "path", j.path, "added", len(entries), "total", len(all))
	return nil
}

// Entries reads every entry. A missing journal has none.
func (j *Journal) Entries() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return read(j.path)
}

func read(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat journal: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Entry](pf)
	defer reader.Close()

	entries := make([]Entry, 0, pf.NumRows())
	for {
		// fresh batch each time, the reader reuses pointer fields of rows
		rows := make([]Entry, 128)
		n, err := reader.Read(rows)
		entries = append(entries, rows[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read journal rows: %w", err)
		}
	}
	return entries, nil
}
