package database

import (
	"context"

	"license-server/internal/model"

	"github.com/pkg/errors"
)

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err, "find user")
	}
	return &u, nil
}

func (s *Store) FindUserByID(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err, "find user")
	}
	return &u, nil
}

func (s *Store) SaveUser(ctx context.Context, u *model.User) error {
	return translate(s.db.WithContext(ctx).Save(u).Error, "save user")
}

func (s *Store) AppendLoginLog(ctx context.Context, entry *model.LoginLog) error {
	return errors.Wrap(s.db.WithContext(ctx).Create(entry).Error, "insert login log")
}

// ListLoginLogs pages through a user's login history, newest first.
func (s *Store) ListLoginLogs(ctx context.Context, userID uint, page, size int) ([]model.LoginLog, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.LoginLog{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count login logs")
	}
	var logs []model.LoginLog
	if err := q.Order("created_at DESC").Order("id DESC").Scopes(paginate(page, size)).Find(&logs).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list login logs")
	}
	return logs, total, nil
}

func (s *Store) AppendOperationLog(ctx context.Context, entry *model.OperationLog) error {
	return errors.Wrap(s.db.WithContext(ctx).Create(entry).Error, "insert operation log")
}

// ListOperationLogs pages through admin actions, newest first. A zero userID
// lists every user.
func (s *Store) ListOperationLogs(ctx context.Context, userID uint, page, size int) ([]model.OperationLog, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.OperationLog{})
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count operation logs")
	}
	var logs []model.OperationLog
	if err := q.Order("created_at DESC").Order("id DESC").Scopes(paginate(page, size)).Find(&logs).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list operation logs")
	}
	return logs, total, nil
}
