package unitofwork

import (
	"context"

	"tripchat-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	RoomRepository() contract.RoomRepository
	MessageRepository() contract.MessageRepository
}
