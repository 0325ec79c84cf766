// Package db stores the most recent radar reading in sqlite and exposes the
// database on the debug admin routes.
package db

import (
	"compress/gzip"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/rd03d/internal/monitoring"
	"github.com/banshee-data/rd03d/internal/rd03d"
)

type DB struct {
	*sql.DB
	path string
}

// NewDB opens the sqlite database at path and migrates it to the latest
// schema.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting across connections.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Reading is one successfully decoded target set.
type Reading struct {
	ID         string          `json:"reading_id"`
	Mode       string          `json:"mode"`
	RecordedAt time.Time       `json:"recorded_at"`
	Targets    rd03d.TargetSet `json:"targets"`
}

// NewReading stamps a target set with a fresh reading ID.
func NewReading(mode rd03d.Mode, targets rd03d.TargetSet, at time.Time) Reading {
	return Reading{
		ID:         uuid.NewString(),
		Mode:       mode.String(),
		RecordedAt: at,
		Targets:    targets,
	}
}

// RecordLatest replaces the stored reading with r.
func (db *DB) RecordLatest(r Reading) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if len(r.Targets) > rd03d.MaxTargets {
		return fmt.Errorf("reading has %d targets, max %d", len(r.Targets), rd03d.MaxTargets)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO latest_reading (id, reading_id, mode, recorded_at) VALUES (1, ?, ?, ?)`,
		r.ID, r.Mode, r.RecordedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to record reading: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM latest_targets`); err != nil {
		return fmt.Errorf("failed to clear targets: %w", err)
	}
	for i, t := range r.Targets {
		if _, err := tx.Exec(
			`INSERT INTO latest_targets (slot, x, y, speed, pixel_distance, distance, angle) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			i+1, t.X, t.Y, t.Speed, t.PixelDistance, t.Distance, t.Angle,
		); err != nil {
			return fmt.Errorf("failed to record target %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}

// Latest returns the stored reading, or nil if nothing has been recorded.
func (db *DB) Latest() (*Reading, error) {
	var (
		r          Reading
		recordedAt int64
	)
	err := db.QueryRow(`SELECT reading_id, mode, recorded_at FROM latest_reading WHERE id = 1`).
		Scan(&r.ID, &r.Mode, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.RecordedAt = time.Unix(0, recordedAt).UTC()

	rows, err := db.Query(`SELECT x, y, speed, pixel_distance, distance, angle FROM latest_targets ORDER BY slot`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t rd03d.Target
		if err := rows.Scan(&t.X, &t.Y, &t.Speed, &t.PixelDistance, &t.Distance, &t.Angle); err != nil {
			return nil, err
		}
		r.Targets = append(r.Targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}

// AttachAdminRoutes mounts live SQL and a database backup download on the
// tsweb debug page.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Radar DB",
	})

	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.handleBackup))
	return nil
}

func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("rd03d-backup-%d.db", time.Now().UnixNano()))
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("Failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/gzip")

	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()
	if _, err := io.Copy(gzipWriter, backupFile); err != nil {
		monitoring.Logf("Failed to write backup: %v", err)
	}
}
