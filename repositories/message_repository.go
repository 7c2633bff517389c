//go:generate go run go.uber.org/mock/mockgen -source=message_repository.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/anjiri1684/attendance_chat/apperrors"
	"github.com/anjiri1684/attendance_chat/models"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HistoryOptions narrows a history read. Last wins over Page/PageSize.
type HistoryOptions struct {
	Page     int
	PageSize int
	Last     int
}

type IMessageRepository interface {
	Append(ctx context.Context, fromID, toID uuid.UUID, text string) (*models.ChatMessage, error)
	History(ctx context.Context, a, b uuid.UUID, opts HistoryOptions) ([]models.ChatMessage, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error)
	MarkReadBulk(ctx context.Context, fromID, toID uuid.UUID) ([]uuid.UUID, error)
	UnreadCounts(ctx context.Context, toID uuid.UUID) (map[uuid.UUID]int64, error)
	PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

type MessageRepository struct {
	db  *gorm.DB
	log *slog.Logger
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewMessageRepository(db *gorm.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log, now: time.Now}
}

// WithClock replaces the time source, mainly for tests.
func (r *MessageRepository) WithClock(now func() time.Time) *MessageRepository {
	r.now = now
	return r
}

// stamp hands out strictly increasing creation times so that messages
// appended by this process keep their creation sequence under ORDER BY created_at.
func (r *MessageRepository) stamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.now().UTC().Truncate(time.Microsecond)
	if !t.After(r.last) {
		t = r.last.Add(time.Microsecond)
	}
	r.last = t
	return t
}

func (r *MessageRepository) Append(ctx context.Context, fromID, toID uuid.UUID, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return nil, apperrors.Validation("message empty")
	case fromID == uuid.Nil || toID == uuid.Nil:
		return nil, apperrors.Validation("missing participant id")
	case fromID == toID:
		return nil, apperrors.Validation("cannot message yourself")
	}

	msg := models.ChatMessage{
		ID:        uuid.New(),
		FromID:    fromID,
		ToID:      toID,
		Text:      text,
		Status:    models.StatusSent,
		CreatedAt: r.stamp(),
	}
	if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, apperrors.Unavailable("append", err)
	}
	return &msg, nil
}

// History returns the messages exchanged between a and b in creation order.
func (r *MessageRepository) History(ctx context.Context, a, b uuid.UUID, opts HistoryOptions) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	q := r.db.WithContext(ctx).
		Where("(from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?)", a, b, b, a)

	switch {
	case opts.Last > 0:
		if err := q.Order("created_at desc, id desc").Limit(opts.Last).Find(&msgs).Error; err != nil {
			return nil, apperrors.Unavailable("history", err)
		}
		slices.Reverse(msgs)
	default:
		q = q.Order("created_at asc, id asc")
		if opts.PageSize > 0 {
			page := max(opts.Page, 1)
			q = q.Limit(opts.PageSize).Offset((page - 1) * opts.PageSize)
		}
		if err := q.Find(&msgs).Error; err != nil {
			return nil, apperrors.Unavailable("history", err)
		}
	}

	unique := lo.UniqBy(msgs, func(m models.ChatMessage) uuid.UUID { return m.ID })
	if len(unique) != len(msgs) {
		r.log.Warn("duplicate rows in history read", "a", a, "b", b, "dropped", len(msgs)-len(unique))
	}
	return unique, nil
}

// MarkDelivered moves a sent message to delivered. Messages already delivered
// or read are returned unchanged; an unknown id yields nil.
func (r *MessageRepository) MarkDelivered(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	err := r.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("id = ? AND status = ?", id, models.StatusSent).
		Updates(map[string]any{
			"status":       models.StatusDelivered,
			"delivered_at": r.now().UTC(),
		}).Error
	if err != nil {
		return nil, apperrors.Unavailable("mark delivered", err)
	}

	var msg models.ChatMessage
	err = r.db.WithContext(ctx).First(&msg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Unavailable("mark delivered", err)
	}
	return &msg, nil
}

// MarkReadBulk marks every unread message from fromID to toID as read in a
// single UPDATE statement and returns the ids of the rows it changed. A
// message appended while the update runs is either in the result or still
// unread.
func (r *MessageRepository) MarkReadBulk(ctx context.Context, fromID, toID uuid.UUID) ([]uuid.UUID, error) {
	var flipped []models.ChatMessage
	res := r.db.WithContext(ctx).Model(&flipped).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}}}).
		Where("from_id = ? AND to_id = ? AND status <> ?", fromID, toID, models.StatusRead).
		Updates(map[string]any{
			"status":  models.StatusRead,
			"read_at": r.now().UTC(),
		})
	if res.Error != nil {
		return nil, apperrors.Unavailable("mark read", res.Error)
	}
	return lo.Map(flipped, func(m models.ChatMessage, _ int) uuid.UUID { return m.ID }), nil
}

// UnreadCounts groups the messages addressed to toID that are not read yet by sender.
func (r *MessageRepository) UnreadCounts(ctx context.Context, toID uuid.UUID) (map[uuid.UUID]int64, error) {
	type row struct {
		FromID uuid.UUID
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Select("from_id, count(*) as count").
		Where("to_id = ? AND status <> ?", toID, models.StatusRead).
		Group("from_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Unavailable("unread count", err)
	}
	return lo.SliceToMap(rows, func(r row) (uuid.UUID, int64) { return r.FromID, r.Count }), nil
}

func (r *MessageRepository) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", olderThan.UTC()).
		Delete(&models.ChatMessage{})
	if res.Error != nil {
		return 0, apperrors.Unavailable("purge", res.Error)
	}
	return res.RowsAffected, nil
}
