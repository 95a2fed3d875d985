package sqlite

import (
	"fmt"
	"time"

	"trafficcam/internal/model"
)

// TrafficLogRepository implements repository.TrafficLogRepository for SQLite.
type TrafficLogRepository struct {
	db *DB
}

// NewTrafficLogRepository creates a new SQLite traffic log repository.
func NewTrafficLogRepository(db *DB) *TrafficLogRepository {
	return &TrafficLogRepository{db: db}
}

// Insert stores one traffic snapshot.
func (r *TrafficLogRepository) Insert(entry *model.TrafficLog) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	result, err := r.db.Conn().Exec(`
		INSERT INTO traffic_logs (camera_id, session_id, car, motorcycle, bus, truck, total_vehicles, flow_rate, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.CameraID, entry.SessionID, entry.Car, entry.Motorcycle, entry.Bus, entry.Truck,
		entry.TotalVehicles, entry.FlowRate, entry.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("failed to insert traffic log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read traffic log id: %w", err)
	}
	entry.ID = id
	return id, nil
}

// GetByCamera returns the newest entries for a camera first.
func (r *TrafficLogRepository) GetByCamera(cameraID string, limit int) ([]model.TrafficLog, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Conn().Query(`
		SELECT id, camera_id, session_id, car, motorcycle, bus, truck, total_vehicles, flow_rate, timestamp
		FROM traffic_logs WHERE camera_id = ?
		ORDER BY timestamp DESC, id DESC LIMIT ?
	`, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query traffic logs: %w", err)
	}
	defer rows.Close()

	logs := make([]model.TrafficLog, 0)
	for rows.Next() {
		var e model.TrafficLog
		if err := rows.Scan(&e.ID, &e.CameraID, &e.SessionID, &e.Car, &e.Motorcycle, &e.Bus, &e.Truck,
			&e.TotalVehicles, &e.FlowRate, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan traffic log: %w", err)
		}
		logs = append(logs, e)
	}

	return logs, rows.Err()
}

// DeleteByCamera removes the history of a camera.
func (r *TrafficLogRepository) DeleteByCamera(cameraID string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM traffic_logs WHERE camera_id = ?`, cameraID); err != nil {
		return fmt.Errorf("failed to delete traffic logs: %w", err)
	}
	return nil
}
