package repository

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/amirasaad/ledger/pkg/eventbus"
	"github.com/amirasaad/ledger/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type outboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository creates the outbox store on db.
func NewOutboxRepository(db *gorm.DB) repository.OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Add(ctx context.Context, env eventbus.Envelope) error {
	m := OutboxEvent{
		ID:          env.ID,
		EventType:   env.Type,
		AggregateID: env.AggregateID,
		Payload:     datatypes.JSON(env.Payload),
		OccurredAt:  env.OccurredAt,
		CreatedAt:   time.Now().UTC(),
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

func (r *outboxRepository) ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]repository.OutboxMessage, error) {
	q := r.db.WithContext(ctx).Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempts < ?", maxAttempts)
	}
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked})
	}
	var rows []OutboxEvent
	if err := q.Order("created_at, id").Limit(limit).Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]repository.OutboxMessage, 0, len(rows))
	for _, m := range rows {
		out = append(out, repository.OutboxMessage{
			Envelope: eventbus.Envelope{
				ID:          m.ID,
				Type:        m.EventType,
				AggregateID: m.AggregateID,
				Payload:     []byte(m.Payload),
				OccurredAt:  m.OccurredAt,
			},
			Attempts: m.Attempts,
		})
	}
	return out, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Model(&OutboxEvent{}).
			Where("id = ?", id).
			Updates(map[string]any{"published_at": at, "last_error": ""}).Error
	})
}

// maxErrorBytes bounds outbox_events.last_error.
const maxErrorBytes = 1000

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	reason = truncateUTF8(reason, maxErrorBytes)
	return WrapError(func() error {
		return r.db.WithContext(ctx).Model(&OutboxEvent{}).
			Where("id = ?", id).
			Updates(map[string]any{"attempts": gorm.Expr("attempts + 1"), "last_error": reason}).Error
	})
}

func (r *outboxRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&OutboxEvent{}).Where("published_at IS NULL").Count(&n).Error
	return n, MapGormErrorToDomain(err)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	end := 0
	for end < len(s) {
		_, size := utf8.DecodeRuneInString(s[end:])
		if end+size > n {
			break
		}
		end += size
	}
	return s[:end]
}
