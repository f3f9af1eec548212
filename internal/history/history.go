package history

import (
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/gluk-w/claworc/log-viewer/internal/database"
	"github.com/gluk-w/claworc/log-viewer/internal/logutil"
	"github.com/gluk-w/claworc/log-viewer/internal/sshmanager"
)

// DefaultRetentionDays is used when no retention is configured.
const DefaultRetentionDays = 30

// Recorder writes one database row per finished tail session and answers
// history queries.
type Recorder struct {
	mu            sync.RWMutex
	db            *gorm.DB
	retentionDays int
	nowFn         func() time.Time
}

// NewRecorder creates a Recorder on db. If retentionDays is 0,
// DefaultRetentionDays is used.
func NewRecorder(db *gorm.DB, retentionDays int) *Recorder {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Recorder{
		db:            db,
		retentionDays: retentionDays,
		nowFn:         time.Now,
	}
}

// Record stores s. It matches the sshmanager.Manager.OnSessionEnd signature
// apart from the returned error; use Observer to register it.
func (r *Recorder) Record(s sshmanager.Summary) error {
	rec := database.TailRecord{
		SessionID:  s.SessionID,
		Host:       s.Endpoint.Host,
		Port:       s.Endpoint.Port,
		Username:   s.Username,
		Path:       s.Path,
		Reason:     string(s.Reason),
		Error:      s.Error,
		Lines:      s.Lines,
		Dropped:    s.Dropped,
		Truncated:  s.Truncated,
		Streamed:   s.Streamed,
		DurationMs: s.EndedAt.Sub(s.StartedAt).Milliseconds(),
		StartedAt:  s.StartedAt,
	}

	r.mu.Lock()
	err := r.db.Create(&rec).Error
	r.mu.Unlock()
	if err != nil {
		log.Printf("[history] failed to record session %s: %v", s.SessionID, err)
		return err
	}

	log.Printf("[history] session=%s endpoint=%s path=%s reason=%s lines=%d",
		s.SessionID, s.Endpoint, logutil.SanitizeForLog(s.Path), s.Reason, s.Lines)
	return nil
}

// Observer adapts Record for sshmanager.Manager.OnSessionEnd.
func (r *Recorder) Observer() func(sshmanager.Summary) {
	return func(s sshmanager.Summary) { _ = r.Record(s) }
}

type QueryOptions struct {
	Host   string
	Port   int
	Path   string
	Reason string
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}

type QueryResult struct {
	Entries []database.TailRecord `json:"entries"`
	Total   int64                 `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// Query returns records matching opts, newest first. Limit defaults to 50 and
// is capped at 1000.
func (r *Recorder) Query(opts QueryOptions) (*QueryResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx := r.db.Model(&database.TailRecord{})

	if opts.Host != "" {
		tx = tx.Where("host = ?", opts.Host)
	}
	if opts.Port > 0 {
		tx = tx.Where("port = ?", opts.Port)
	}
	if opts.Path != "" {
		tx = tx.Where("path = ?", opts.Path)
	}
	if opts.Reason != "" {
		tx = tx.Where("reason = ?", opts.Reason)
	}
	if opts.Since != nil {
		tx = tx.Where("created_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		tx = tx.Where("created_at <= ?", *opts.Until)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	var entries []database.TailRecord
	if err := tx.Order("created_at DESC, id DESC").Offset(opts.Offset).Limit(opts.Limit).Find(&entries).Error; err != nil {
		return nil, err
	}

	return &QueryResult{
		Entries: entries,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}, nil
}

// PurgeOlderThan deletes records older than days, or the configured retention
// when days <= 0. It returns the number of rows deleted.
func (r *Recorder) PurgeOlderThan(days int) (int64, error) {
	if days <= 0 {
		days = r.retentionDays
	}
	cutoff := r.nowFn().AddDate(0, 0, -days)

	r.mu.Lock()
	result := r.db.Where("created_at < ?", cutoff).Delete(&database.TailRecord{})
	r.mu.Unlock()
	if result.Error != nil {
		log.Printf("[history] purge failed: %v", result.Error)
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("[history] purged %d records older than %d days", result.RowsAffected, days)
	}
	return result.RowsAffected, nil
}

func (r *Recorder) RetentionDays() int {
	return r.retentionDays
}

// SetNowFunc replaces the clock used by PurgeOlderThan.
func (r *Recorder) SetNowFunc(fn func() time.Time) {
	r.nowFn = fn
}
