package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 登录方式
const (
	ProviderCredentials = "credentials"
	ProviderGoogle      = "google"
)

var (
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrUserExists 邮箱已被注册
	ErrUserExists = errors.New("auth: user already exists")
)

// User 用户账号。OAuth 用户没有密码。
type User struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Email        string     `gorm:"size:255;not null;uniqueIndex:idx_users_email" json:"email"`
	Name         string     `gorm:"size:255;not null;default:''" json:"name"`
	PasswordHash string     `gorm:"size:255;not null;default:''" json:"-"`
	Provider     string     `gorm:"size:32;not null;default:credentials" json:"provider"`
	Image        string     `gorm:"size:1024;not null;default:''" json:"image,omitempty"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// BeforeCreate 补全主键并规范化邮箱
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = NormalizeEmail(u.Email)
	if u.Provider == "" {
		u.Provider = ProviderCredentials
	}
	return nil
}

// HasPassword 是否可以使用邮箱密码登录
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// NormalizeEmail 邮箱按小写、去空白后比较
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Repository 用户存储
type Repository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// GormRepository 基于 gorm 的用户存储，支持 postgres / mysql / sqlite
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository 创建用户存储
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate 同步 users 表结构（与 SQL 迁移保持一致）
func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&User{})
}

// Create 新建用户，邮箱重复时返回 ErrUserExists
func (r *GormRepository) Create(ctx context.Context, u *User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&User{}).Where("email = ?", NormalizeEmail(u.Email)).Count(&count).Error; err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if count > 0 {
			return ErrUserExists
		}
		if err := tx.Create(u).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrUserExists
			}
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
}

// FindByID 按主键查询
func (r *GormRepository) FindByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &u, nil
}

// FindByEmail 按邮箱查询（大小写不敏感）
func (r *GormRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &u, nil
}

// Update 更新资料字段（不含邮箱与主键）
func (r *GormRepository) Update(ctx context.Context, u *User) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", u.ID).Updates(map[string]any{
		"name":          u.Name,
		"password_hash": u.PasswordHash,
		"provider":      u.Provider,
		"image":         u.Image,
		"updated_at":    time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// TouchLogin 记录最近登录时间
func (r *GormRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("last_login_at", at)
	if res.Error != nil {
		return fmt.Errorf("touch login: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}
