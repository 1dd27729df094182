package tracking

import (
	"database/sql"
	"log/slog"
	"time"
)

// Recorder writes volume and mute events to the history database. Insert
// failures are logged and swallowed so history never disturbs the control
// path.
type Recorder struct {
	db  *sql.DB
	now func() time.Time
}

// NewRecorder creates a recorder over an open history database.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

// RecordVolume stores a volume change.
func (r *Recorder) RecordVolume(engine, sink string, volume int) {
	r.insert(engine, sink, KindVolume, volume)
}

// RecordMute stores a mute change.
func (r *Recorder) RecordMute(engine, sink string, mute bool) {
	value := 0
	if mute {
		value = 1
	}
	r.insert(engine, sink, KindMute, value)
}

func (r *Recorder) insert(engine, sink, kind string, value int) {
	_, err := r.db.Exec(
		"INSERT INTO volume_events (timestamp, engine, sink, kind, value) VALUES (?, ?, ?, ?, ?)",
		r.now().Unix(), engine, sink, kind, value)
	if err != nil {
		slog.Warn("failed to record history event",
			"engine", engine, "sink", sink, "kind", kind, "error", err)
		return
	}

	slog.Debug("history event recorded",
		"engine", engine, "sink", sink, "kind", kind, "value", value)
}
