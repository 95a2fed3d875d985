package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"trafficcam/internal/model"
	"trafficcam/internal/repository"
)

// CameraRepository implements repository.CameraRepository for SQLite.
type CameraRepository struct {
	db *DB
}

// NewCameraRepository creates a new SQLite camera repository.
func NewCameraRepository(db *DB) *CameraRepository {
	return &CameraRepository{db: db}
}

// Insert adds a camera and fills in its ID and CreatedAt.
func (r *CameraRepository) Insert(cam *model.Camera) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	if cam.CreatedAt.IsZero() {
		cam.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.Conn().Exec(`
		INSERT INTO cameras (name, source_url, location, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, cam.Name, cam.SourceURL, cam.Location, cam.IsActive, cam.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, repository.ErrDuplicateSource
		}
		return 0, fmt.Errorf("failed to insert camera: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read camera id: %w", err)
	}
	cam.ID = id
	return id, nil
}

// GetByID retrieves a camera by its ID. A missing camera yields nil, nil.
func (r *CameraRepository) GetByID(id int64) (*model.Camera, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`
		SELECT id, name, source_url, location, is_active, created_at
		FROM cameras WHERE id = ?
	`, id)
	return scanCamera(row)
}

// GetBySourceURL retrieves a camera by its source locator.
func (r *CameraRepository) GetBySourceURL(sourceURL string) (*model.Camera, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`
		SELECT id, name, source_url, location, is_active, created_at
		FROM cameras WHERE source_url = ?
	`, sourceURL)
	return scanCamera(row)
}

// GetAll returns cameras ordered by id with offset/limit paging. A negative
// limit returns every camera from skip on; a zero limit returns none.
func (r *CameraRepository) GetAll(skip, limit int) ([]model.Camera, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	if skip < 0 {
		skip = 0
	}
	if limit < 0 {
		limit = -1 // no limit in SQLite
	}

	rows, err := r.db.Conn().Query(`
		SELECT id, name, source_url, location, is_active, created_at
		FROM cameras ORDER BY id LIMIT ? OFFSET ?
	`, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to query cameras: %w", err)
	}
	defer rows.Close()

	cameras := make([]model.Camera, 0)
	for rows.Next() {
		var cam model.Camera
		var location sql.NullString
		if err := rows.Scan(&cam.ID, &cam.Name, &cam.SourceURL, &location, &cam.IsActive, &cam.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan camera: %w", err)
		}
		cam.Location = location.String
		cameras = append(cameras, cam)
	}

	return cameras, rows.Err()
}

// Delete removes a camera. Returns repository.ErrCameraNotFound when nothing was deleted.
func (r *CameraRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM cameras WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete camera: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return repository.ErrCameraNotFound
	}
	return nil
}

func scanCamera(row *sql.Row) (*model.Camera, error) {
	var cam model.Camera
	var location sql.NullString
	err := row.Scan(&cam.ID, &cam.Name, &cam.SourceURL, &location, &cam.IsActive, &cam.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}
	cam.Location = location.String
	return &cam, nil
}
