package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"health-chat/internal/domain"
	"health-chat/internal/repository"
)

// UserService coordina reglas de negocio para usuarios.
type UserService struct {
	logger *zap.Logger
	users  repository.UserRepository
	cost   int
}

func NewUserService(logger *zap.Logger, users repository.UserRepository) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		logger: logger,
		users:  users,
		cost:   bcrypt.DefaultCost,
	}
}

var ErrUserServiceNotConfigured = errors.New("user service not configured")

// Register crea un usuario con la contraseña hasheada con bcrypt.
func (s *UserService) Register(ctx context.Context, input domain.InsertUser) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, ErrUserServiceNotConfigured
	}
	input, err := normalizeUser(input)
	if err != nil {
		return domain.User{}, err
	}

	if _, err := s.users.GetByUsername(ctx, input.Username); err == nil {
		return domain.User{}, ErrConflict
	} else if !errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, storageError("lookup user", err)
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return domain.User{}, validationError("password cannot be hashed")
	}

	user := domain.User{
		ID:        uuid.NewString(),
		Username:  input.Username,
		Password:  string(hashBytes),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		s.logger.Error("create user failed", zap.Error(err))
		return domain.User{}, storageError("create user", err)
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (domain.User, error) {
	if s == nil || s.users == nil {
		return domain.User{}, ErrUserServiceNotConfigured
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.User{}, ErrNotFound
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return domain.User{}, storageError("get user", err)
	}
	return user, nil
}

// CheckPassword compara la contraseña en claro contra el hash almacenado.
func CheckPassword(user domain.User, password string) bool {
	if user.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
}
