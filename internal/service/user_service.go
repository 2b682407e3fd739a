package service

import (
	"errors"
	"sort"
	"sync"
	"time"

	"peer-chat-app/backend/internal/models"
	"peer-chat-app/backend/pkg/jwt"

	"gorm.io/gorm"
)

var (
	ErrUserAlreadyExists  = errors.New("user with this email or username already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
)

// UserService handles account management and the user directory. With a nil
// db it runs on an in-process store, mirroring the in-memory history mode,
// so the auth surface works without a database.
type UserService struct {
	db  *gorm.DB
	jwt *jwt.Service
	mem *memoryUserStore
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB, jwtService *jwt.Service) *UserService {
	s := &UserService{db: db, jwt: jwtService}
	if db == nil {
		s.mem = newMemoryUserStore()
	}
	return s
}

// CreateUser registers a new user and returns a session token
func (s *UserService) CreateUser(req *models.CreateUserRequest) (*models.User, string, error) {
	user := models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Avatar:   req.Avatar,
	}

	if s.mem != nil {
		if err := s.mem.create(&user); err != nil {
			return nil, "", err
		}
	} else {
		var existing models.User
		result := s.db.Where("email = ? OR username = ?", req.Email, req.Username).First(&existing)
		if result.RowsAffected > 0 {
			return nil, "", ErrUserAlreadyExists
		}

		if err := s.db.Create(&user).Error; err != nil {
			return nil, "", err
		}
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, "", err
	}

	return &user, token, nil
}

// Login authenticates a user and returns a session token
func (s *UserService) Login(req *models.LoginRequest) (*models.User, string, error) {
	user, err := s.GetUserByEmail(req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if !models.CheckPasswordHash(req.Password, user.Password) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	if s.mem != nil {
		s.mem.touchLogin(user.ID, now)
		user.LastLogin = now
	} else if err := s.db.Model(user).Update("last_login", now).Error; err == nil {
		user.LastLogin = now
	}

	return user, token, nil
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(id uint) (*models.User, error) {
	if s.mem != nil {
		return s.mem.byID(id)
	}

	var user models.User
	result := s.db.First(&user, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email
func (s *UserService) GetUserByEmail(email string) (*models.User, error) {
	if s.mem != nil {
		return s.mem.byEmail(email)
	}

	var user models.User
	result := s.db.Where("email = ?", email).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// ListUsers returns all registered users ordered by username. The directory
// is small enough in practice that pagination is not needed yet.
func (s *UserService) ListUsers() ([]models.User, error) {
	if s.mem != nil {
		return s.mem.list(), nil
	}

	var users []models.User
	if err := s.db.Order("username ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// memoryUserStore is the database-free account backing. Passwords are hashed
// on create, matching the gorm BeforeCreate hook.
type memoryUserStore struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]models.User
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: make(map[uint]models.User)}
}

func (m *memoryUserStore) create(user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return ErrUserAlreadyExists
		}
	}

	hashed, err := models.HashPassword(user.Password)
	if err != nil {
		return err
	}
	user.Password = hashed

	m.nextID++
	user.ID = m.nextID
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	m.users[user.ID] = *user
	return nil
}

func (m *memoryUserStore) byID(id uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (m *memoryUserStore) byEmail(email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memoryUserStore) touchLogin(id uint, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user, ok := m.users[id]; ok {
		user.LastLogin = at
		user.UpdatedAt = at
		m.users[id] = user
	}
}

func (m *memoryUserStore) list() []models.User {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]models.User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}
