package service

import (
	"context"
	"encoding/json"
	"time"

	"license-server/internal/apperror"
	"license-server/internal/model"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Operation names recorded for admin actions.
const (
	OpRenew             = "license.renew"
	OpDeactivate        = "license.deactivate"
	OpToggle            = "license.toggle"
	OpBlockModule       = "license.block_module"
	OpCreateModule      = "module.create"
	OpUpdateModule      = "module.update"
	OpDeleteModule      = "module.delete"
	OpCreateLicenseType = "license_type.create"
	OpChangePassword    = "user.change_password"
)

// Auditor records who changed what through the admin API.
type Auditor struct {
	store OperationStore
	log   *zap.Logger
}

func NewAuditor(store OperationStore, log *zap.Logger) *Auditor {
	return &Auditor{store: store, log: log.Named("audit")}
}

// Record stores one operation. Failures are logged, never returned.
func (a *Auditor) Record(ctx context.Context, userID uint, action, target, targetID string, details interface{}) {
	raw, err := json.Marshal(details)
	if err != nil {
		a.log.Warn("encode operation details", zap.String("action", action), zap.Error(err))
		raw = []byte("null")
	}
	entry := &model.OperationLog{
		UserID:    userID,
		Action:    action,
		Target:    target,
		TargetID:  targetID,
		Details:   raw,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendOperationLog(ctx, entry); err != nil {
		a.log.Error("write operation log", zap.String("action", action), zap.Error(err))
	}
}

// List pages through operations, newest first. A zero userID lists all users.
func (a *Auditor) List(ctx context.Context, userID uint, page, size int) (model.Page[model.OperationLog], error) {
	page, size = model.Normalize(page, size)
	logs, total, err := a.store.ListOperationLogs(ctx, userID, page, size)
	if err != nil {
		a.log.Error("list operation logs", zap.Error(err))
		return model.Page[model.OperationLog]{}, apperror.Internal(errors.Wrap(err, "list operation logs"))
	}
	return model.Page[model.OperationLog]{Items: logs, Total: total, Page: page, PageSize: size}, nil
}
