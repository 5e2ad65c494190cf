package user

import (
	"context"
	"time"

	"github.com/qianniu/llmbot/internal/models"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, u *models.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repo) GetByID(ctx context.Context, id uint64) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) GetByUUID(ctx context.Context, uuid string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) ByRole(ctx context.Context, role int) ([]models.User, error) {
	var us []models.User
	if err := r.db.WithContext(ctx).Where("role = ?", role).Find(&us).Error; err != nil {
		return nil, err
	}
	return us, nil
}

func (r *Repo) EmailExists(ctx context.Context, email string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *Repo) PhoneExists(ctx context.Context, phone string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("phone = ?", phone).Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// TokenVersion reads the authoritative version counter for an email.
func (r *Repo) TokenVersion(ctx context.Context, email string) (int, error) {
	u, err := r.GetByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	return u.TokenVersion, nil
}

// BumpTokenVersion invalidates all previously minted credentials for
// the user (logout, recharge).
func (r *Repo) BumpTokenVersion(ctx context.Context, email string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).
		Update("token_version", gorm.Expr("token_version + 1")).Error
}

func (r *Repo) UpdateLastLogin(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("last_login", time.Now().Unix()).Error
}

// SetRole assigns a tier and its membership window. extendDays is the
// paid window length; 0 for NORMAL and ADMIN. Bumps the token version
// so older credentials go stale.
func (r *Repo) SetRole(ctx context.Context, email string, role int, extendDays int) error {
	var expiry int64
	if role == models.RoleMember || role == models.RoleSuperMember {
		expiry = time.Now().Unix() + int64(extendDays)*86400
	}
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).
		Updates(map[string]any{
			"role":              role,
			"membership_expiry": expiry,
			"token_version":     gorm.Expr("token_version + 1"),
			"updated_at":        time.Now().Unix(),
		}).Error
}

// DemoteExpired resets a lapsed paid member to NORMAL. The update is
// fenced on the version the caller read, so two concurrent demotions
// can't both apply; returns whether this call won the write.
func (r *Repo) DemoteExpired(ctx context.Context, email string, seenVersion int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ? AND token_version = ?", email, seenVersion).
		Updates(map[string]any{
			"role":              models.RoleNormal,
			"membership_expiry": 0,
			"token_version":     gorm.Expr("token_version + 1"),
			"updated_at":        time.Now().Unix(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
