package implementation

import (
	"context"
	"errors"
	"time"

	"tripchat-be/internal/entity"
	"tripchat-be/internal/mapper"
	"tripchat-be/internal/model"
	"tripchat-be/internal/repository/contract"
	"tripchat-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewMessageRepository(db *gorm.DB) contract.MessageRepository {
	return &MessageRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *MessageRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *MessageRepositoryImpl) Create(ctx context.Context, message *entity.Message) (bool, error) {
	m := r.mapper.MessageToModel(message)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}, {Name: "client_token"}},
			DoNothing: true,
		}).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}

	if res.RowsAffected == 0 {
		// Retry of an already-persisted send: hand back the original row so
		// the caller reconciles against the same id and created_at.
		var existing model.Message
		err := r.db.WithContext(ctx).
			Where("room_id = ? AND client_token = ?", m.RoomId, m.ClientToken).
			First(&existing).Error
		if err != nil {
			return false, err
		}
		*message = *r.mapper.MessageToEntity(&existing)
		return false, nil
	}

	*message = *r.mapper.MessageToEntity(m)
	return true, nil
}

func (r *MessageRepositoryImpl) MarkRead(ctx context.Context, roomId, readerId uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("room_id = ? AND sender_id <> ? AND read_at IS NULL", roomId, readerId).
		Update("read_at", at)
	return res.RowsAffected, res.Error
}

func (r *MessageRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Message, error) {
	var m model.Message
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.MessageToEntity(&m), nil
}

func (r *MessageRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error) {
	var models []*model.Message
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Message, len(models))
	for i, m := range models {
		entities[i] = r.mapper.MessageToEntity(m)
	}
	return entities, nil
}

func (r *MessageRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.Message{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
