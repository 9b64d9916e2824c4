package service

import (
	"context"
	"time"

	"license-server/internal/apperror"
	"license-server/internal/config"
	"license-server/internal/model"
	"license-server/internal/util"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// AuthService authenticates operators of the admin API.
type AuthService struct {
	store    UserStore
	cfg      config.AuthConfig
	log      *zap.Logger
	validate *Validator
}

func NewAuthService(store UserStore, cfg config.AuthConfig, log *zap.Logger) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &AuthService{store: store, cfg: cfg, log: log.Named("auth"), validate: NewValidator()}
}

var errBadCredentials = apperror.New(apperror.KindUnauthorized, "invalid username or password")

// Login checks the credentials, records the attempt and issues a token.
func (s *AuthService) Login(ctx context.Context, in *model.LoginInput, ip, userAgent string) (*LoginResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.store.FindUserByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, apperror.ErrNoRecord) {
			s.recordLogin(ctx, 0, in.Username, ip, userAgent, "failed")
			return nil, errBadCredentials
		}
		return nil, s.internal(err, "find user")
	}
	if user.Status != "active" || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)) != nil {
		s.recordLogin(ctx, user.ID, user.Username, ip, userAgent, "failed")
		return nil, errBadCredentials
	}

	s.recordLogin(ctx, user.ID, user.Username, ip, userAgent, "success")
	now := time.Now().UTC()
	user.LastLogin = &now
	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, s.internal(err, "update last login")
	}

	token, err := util.GenerateToken(s.cfg.JWTSecret, user.ID, user.Role, s.cfg.TokenTTL)
	if err != nil {
		return nil, s.internal(err, "generate token")
	}
	s.log.Info("user logged in", zap.String("username", user.Username), zap.String("ip", ip))
	return &LoginResult{Token: token, ExpiresAt: now.Add(s.cfg.TokenTTL), User: user}, nil
}

func (s *AuthService) recordLogin(ctx context.Context, userID uint, username, ip, userAgent, status string) {
	entry := &model.LoginLog{
		UserID:    userID,
		Username:  username,
		IP:        ip,
		UserAgent: userAgent,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendLoginLog(ctx, entry); err != nil {
		s.log.Warn("write login log", zap.Error(err))
	}
}

// Authenticate resolves a bearer token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	id, err := util.ValidateToken(s.cfg.JWTSecret, token)
	if err != nil {
		return nil, apperror.New(apperror.KindUnauthorized, "invalid token")
	}
	user, err := s.User(ctx, id)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return nil, apperror.New(apperror.KindUnauthorized, "user not found")
		}
		return nil, err
	}
	if user.Status != "active" {
		return nil, apperror.New(apperror.KindUnauthorized, "account disabled")
	}
	return user, nil
}

func (s *AuthService) User(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNoRecord) {
			return nil, apperror.NotFound("user %d not found", id)
		}
		return nil, s.internal(err, "find user")
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, in *model.ChangePasswordInput) error {
	if err := s.validate.Struct(in); err != nil {
		return err
	}
	user, err := s.User(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.CurrentPassword)) != nil {
		return apperror.New(apperror.KindUnauthorized, "current password is incorrect")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return s.internal(err, "hash password")
	}
	user.Password = string(hashed)
	user.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveUser(ctx, user); err != nil {
		return s.internal(err, "save password")
	}
	s.log.Info("password changed", zap.String("username", user.Username))
	return nil
}

func (s *AuthService) LoginLogs(ctx context.Context, userID uint, page, size int) (model.Page[model.LoginLog], error) {
	page, size = model.Normalize(page, size)
	logs, total, err := s.store.ListLoginLogs(ctx, userID, page, size)
	if err != nil {
		return model.Page[model.LoginLog]{}, s.internal(err, "list login logs")
	}
	return model.Page[model.LoginLog]{Items: logs, Total: total, Page: page, PageSize: size}, nil
}

func (s *AuthService) internal(err error, op string) error {
	s.log.Error(op, zap.Error(err))
	return apperror.Internal(errors.Wrap(err, op))
}
