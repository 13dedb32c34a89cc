package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kscape/xbee-go/internal/connectors"
	"github.com/kscape/xbee-go/internal/packet"
)

// Session identifies one run of the link, so frames from different runs can
// be told apart.
type Session struct {
	ID        string
	Transport string
	Target    string
	StartedAt time.Time
}

// FrameRecord is one journaled packet.
type FrameRecord struct {
	ID         int64
	SessionID  string
	Direction  connectors.Direction
	FrameType  packet.FrameType
	FrameID    uint8
	HasFrameID bool
	Data       []byte
	Fields     packet.Fields
	// DecodeError is set for frames that arrived but could not be decoded.
	DecodeError string
	RecordedAt  time.Time
}

// FrameRepo stores captured frames in SQLite.
type FrameRepo struct {
	db *sql.DB
}

func NewFrameRepo(db *sql.DB) *FrameRepo {
	return &FrameRepo{db: db}
}

func (r *FrameRepo) StartSession(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions(session_id, transport, target, started_at)
		VALUES(?, ?, ?, ?)
	`, s.ID, s.Transport, nullableString(s.Target), timeToUnixMillis(s.StartedAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

func (r *FrameRepo) Insert(ctx context.Context, rec FrameRecord) (int64, error) {
	fieldsJSON, err := marshalFields(rec.Fields)
	if err != nil {
		return 0, fmt.Errorf("marshal fields: %w", err)
	}
	var frameID any
	if rec.HasFrameID {
		frameID = int(rec.FrameID)
	}
	data := rec.Data
	if data == nil {
		data = []byte{}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO frames(session_id, direction, frame_type, frame_id, data, fields_json, decode_error, recorded_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.SessionID,
		string(rec.Direction),
		int(rec.FrameType),
		frameID,
		data,
		fieldsJSON,
		nullableString(rec.DecodeError),
		timeToUnixMillis(rec.RecordedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert frame: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read frame id: %w", err)
	}

	return id, nil
}

// ListRecent returns up to limit frames, newest first. An empty sessionID
// lists frames of every session.
func (r *FrameRepo) ListRecent(ctx context.Context, sessionID string, limit int) ([]FrameRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, direction, frame_type, frame_id, data, fields_json, decode_error, recorded_at
		FROM frames
		WHERE (? = '' OR session_id = ?)
		ORDER BY id DESC
		LIMIT ?
	`, sessionID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []FrameRecord
	for rows.Next() {
		var (
			rec        FrameRecord
			direction  string
			frameType  int
			frameID    sql.NullInt64
			fieldsJSON sql.NullString
			decodeErr  sql.NullString
			recordedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &direction, &frameType, &frameID, &rec.Data, &fieldsJSON, &decodeErr, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		rec.Direction = connectors.Direction(direction)
		rec.FrameType = packet.FrameType(uint8(frameType))
		if frameID.Valid {
			rec.FrameID = uint8(frameID.Int64)
			rec.HasFrameID = true
		}
		if fieldsJSON.Valid {
			if err := json.Unmarshal([]byte(fieldsJSON.String), &rec.Fields); err != nil {
				return nil, fmt.Errorf("decode fields of frame %d: %w", rec.ID, err)
			}
		}
		rec.DecodeError = decodeErr.String
		rec.RecordedAt = unixMillisToTime(recordedAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frames: %w", err)
	}

	return out, nil
}

func (r *FrameRepo) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM frames WHERE session_id = ?`, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count frames: %w", err)
	}

	return count, nil
}

// Prune keeps the newest keep frames and deletes the rest. keep <= 0 is a
// no-op.
func (r *FrameRepo) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM frames
		WHERE id <= (SELECT id FROM frames ORDER BY id DESC LIMIT 1 OFFSET ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune frames: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read pruned rows: %w", err)
	}

	return n, nil
}

func marshalFields(fields packet.Fields) (any, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	return string(raw), nil
}

// RecordFromEvent converts a bus packet event into a journal record.
func RecordFromEvent(sessionID string, ev connectors.PacketEvent) FrameRecord {
	rec := FrameRecord{
		SessionID:  sessionID,
		Direction:  ev.Direction,
		Fields:     ev.Fields,
		RecordedAt: ev.At,
	}
	if ev.Err != nil {
		rec.DecodeError = ev.Err.Error()
	}
	if ev.Packet == nil {
		// Keep the undecodable frame as tag and body, like decoded ones.
		if len(ev.Data) > 0 {
			rec.FrameType = packet.FrameType(ev.Data[0])
			rec.Data = append([]byte(nil), ev.Data[1:]...)
		}
		return rec
	}
	rec.FrameType = ev.Packet.FrameType()
	rec.Data = ev.Packet.Body()
	if at, ok := ev.Packet.(*packet.ATCommandPacket); ok {
		rec.FrameID = at.FrameID()
		rec.HasFrameID = true
	}

	return rec
}
