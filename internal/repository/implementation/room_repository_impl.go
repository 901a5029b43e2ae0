package implementation

import (
	"context"
	"errors"
	"fmt"
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

type RoomRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewRoomRepository(db *gorm.DB) contract.RoomRepository {
	return &RoomRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *RoomRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

// NormalizePair orders two participant ids so (A,B) and (B,A) address the
// same room row.
func NormalizePair(userA, userB uuid.UUID) (uuid.UUID, uuid.UUID) {
	if userA.String() > userB.String() {
		return userB, userA
	}
	return userA, userB
}

func (r *RoomRepositoryImpl) GetOrCreate(ctx context.Context, userA, userB uuid.UUID) (*entity.Room, bool, error) {
	a, b := NormalizePair(userA, userB)

	// Optimistic insert. DoNothing absorbs the race where both participants'
	// devices create the pair at the same moment; the unique index decides.
	m := &model.Room{ParticipantA: a, ParticipantB: b}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "participant_a"}, {Name: "participant_b"}},
			DoNothing: true,
		}).
		Create(m)
	if res.Error != nil {
		return nil, false, res.Error
	}
	created := res.RowsAffected > 0

	// Re-select either way: on conflict the model holds no row data.
	var found model.Room
	err := r.db.WithContext(ctx).
		Where("participant_a = ? AND participant_b = ?", a, b).
		First(&found).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("room for pair (%s,%s) vanished after upsert", a, b)
		}
		return nil, false, err
	}

	return r.mapper.RoomToEntity(&found), created, nil
}

func (r *RoomRepositoryImpl) UpdateSummary(ctx context.Context, roomId uuid.UUID, text string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Room{}).
		Where("id = ?", roomId).
		Updates(map[string]interface{}{
			"last_message_text": text,
			"last_message_at":   at,
		}).Error
}

func (r *RoomRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Room, error) {
	var m model.Room
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.RoomToEntity(&m), nil
}

func (r *RoomRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Room, error) {
	var models []*model.Room
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Room, len(models))
	for i, m := range models {
		entities[i] = r.mapper.RoomToEntity(m)
	}
	return entities, nil
}

func (r *RoomRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.Room{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
