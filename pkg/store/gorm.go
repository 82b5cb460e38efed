package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/harunnryd/serena/pkg/errorsx"
	"github.com/harunnryd/serena/pkg/lead"
)

// CallLog is one phone call, keyed by the Twilio stream SID.
type CallLog struct {
	ID         uint   `gorm:"primaryKey"`
	StreamSID  string `gorm:"column:stream_sid;uniqueIndex;size:64"`
	CallSID    string `gorm:"size:64"`
	FromNumber string `gorm:"size:32"`
	StartTime  time.Time
	EndTime    *time.Time
	Status     string `gorm:"size:32"`
	EndReason  string `gorm:"size:64"`
	LeadInfo   datatypes.JSON
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CallTurn is one transcript line within a call.
type CallTurn struct {
	ID        uint   `gorm:"primaryKey"`
	StreamSID string `gorm:"column:stream_sid;index;size:64"`
	Direction string `gorm:"size:16"`
	Text      string
	Timestamp time.Time
	Metadata  datatypes.JSON
	CreatedAt time.Time
}

// GormStore persists calls and turns through GORM. Works against
// Postgres in production and sqlite in tests.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&CallLog{}, &CallTurn{}); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	return &GormStore{db: db}, nil
}

// OpenPostgres dials the database URL and returns a migrated store.
func OpenPostgres(url string, debug bool) (*GormStore, error) {
	level := gormlogger.Silent
	if debug {
		level = gormlogger.Info
	}
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	return NewGormStore(db)
}

func (s *GormStore) LogCallStart(ctx context.Context, start CallStart) error {
	startTime := start.StartTime
	if startTime.IsZero() {
		startTime = time.Now().UTC()
	}
	row := CallLog{
		StreamSID:  start.StreamSID,
		CallSID:    start.CallSID,
		FromNumber: start.FromNumber,
		StartTime:  startTime,
		Status:     StatusInProgress,
	}
	err := s.db.WithContext(ctx).
		Where(CallLog{StreamSID: start.StreamSID}).
		FirstOrCreate(&row).Error
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	return nil
}

func (s *GormStore) LogCallTurn(ctx context.Context, turn Turn) error {
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	row := CallTurn{
		StreamSID: turn.StreamSID,
		Direction: turn.Direction,
		Text:      turn.Text,
		Timestamp: ts,
	}
	if len(turn.Metadata) > 0 {
		raw, err := json.Marshal(turn.Metadata)
		if err != nil {
			return errorsx.Wrap(err, errorsx.ReasonStoreWrite)
		}
		row.Metadata = raw
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	return nil
}

func (s *GormStore) LogLeadInfo(ctx context.Context, streamSID string, l lead.Lead) error {
	raw, err := l.MarshalJSONValue()
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	res := s.db.WithContext(ctx).
		Model(&CallLog{}).
		Where("stream_sid = ?", streamSID).
		Update("lead_info", datatypes.JSON(raw))
	if res.Error != nil {
		return errorsx.Wrap(res.Error, errorsx.ReasonStoreWrite)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) EndCall(ctx context.Context, streamSID, reason string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&CallLog{}).
		Where("stream_sid = ? AND end_time IS NULL", streamSID).
		Updates(map[string]any{
			"end_time":   &now,
			"status":     StatusCompleted,
			"end_reason": reason,
		})
	if res.Error != nil {
		return errorsx.Wrap(res.Error, errorsx.ReasonStoreWrite)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&CallLog{}).
			Where("stream_sid = ?", streamSID).Count(&count).Error; err != nil {
			return errorsx.Wrap(err, errorsx.ReasonStoreRead)
		}
		if count == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (s *GormStore) Call(ctx context.Context, streamSID string) (CallRecord, error) {
	var row CallLog
	err := s.db.WithContext(ctx).Where("stream_sid = ?", streamSID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CallRecord{}, ErrNotFound
	}
	if err != nil {
		return CallRecord{}, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	rec := CallRecord{
		StreamSID:  row.StreamSID,
		CallSID:    row.CallSID,
		FromNumber: row.FromNumber,
		StartTime:  row.StartTime,
		EndTime:    row.EndTime,
		Status:     row.Status,
		EndReason:  row.EndReason,
	}
	if len(row.LeadInfo) > 0 {
		l, err := lead.UnmarshalJSONValue(row.LeadInfo)
		if err != nil {
			return CallRecord{}, errorsx.Wrap(err, errorsx.ReasonStoreRead)
		}
		rec.Lead = l
		rec.HasLead = true
	}
	return rec, nil
}

func (s *GormStore) Turns(ctx context.Context, streamSID string) ([]TurnRecord, error) {
	var rows []CallTurn
	err := s.db.WithContext(ctx).
		Where("stream_sid = ?", streamSID).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	out := make([]TurnRecord, 0, len(rows))
	for _, row := range rows {
		rec := TurnRecord{
			StreamSID: row.StreamSID,
			Direction: row.Direction,
			Text:      row.Text,
			Timestamp: row.Timestamp,
		}
		if len(row.Metadata) > 0 {
			meta := map[string]string{}
			if err := json.Unmarshal(row.Metadata, &meta); err != nil {
				return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
			}
			rec.Metadata = meta
		}
		out = append(out, rec)
	}
	return out, nil
}

var _ Store = (*GormStore)(nil)
