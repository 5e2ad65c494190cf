package handlers

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qianniu/llmbot/internal/auth"
	"github.com/qianniu/llmbot/internal/common"
	"github.com/qianniu/llmbot/internal/httpapi/middleware"
	"github.com/qianniu/llmbot/internal/models"
	"github.com/qianniu/llmbot/internal/store/redisstore"
)

const captchaTTL = 10 * time.Minute

type sendCaptchaRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// SendCaptcha mails a registration code and parks it in redis.
func (h *Handler) SendCaptcha(c *gin.Context) {
	var req sendCaptchaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "a valid email is required")
		return
	}
	exists, err := h.Users.EmailExists(c.Request.Context(), req.Email)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to check email")
		return
	}
	if exists {
		common.Fail(c, http.StatusConflict, 40901, "email already registered")
		return
	}

	code, err := captchaCode()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to generate code")
		return
	}
	if err := h.Captcha.SetCaptcha(c.Request.Context(), req.Email, code, captchaTTL); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to store code")
		return
	}
	if err := h.Mailer.SendText(req.Email, "Your registration code",
		fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code)); err != nil {
		log.Errorf("send captcha mail: %v", err)
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to send mail")
		return
	}
	common.OK(c, gin.H{"sent": true})
}

func captchaCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone"`
	Captcha  string `json:"captcha" binding:"required"`
}

// Register creates a normal-role account after captcha verification.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40002, "invalid registration payload")
		return
	}
	ctx := c.Request.Context()

	code, err := h.Captcha.GetCaptcha(ctx, req.Email)
	if errors.Is(err, redisstore.ErrNotFound) || (err == nil && code != req.Captcha) {
		common.Fail(c, http.StatusBadRequest, 40003, "captcha mismatch or expired")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50005, "failed to verify captcha")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50006, "failed to process password")
		return
	}
	u := &models.User{
		UUID:         uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         models.RoleNormal,
		TokenVersion: 1,
		CreatedAt:    time.Now().Unix(),
		UpdatedAt:    time.Now().Unix(),
	}
	if req.Phone != "" {
		u.Phone = &req.Phone
	}
	if err := h.Users.Create(ctx, u); err != nil {
		common.Fail(c, http.StatusConflict, 40902, "email or phone already registered")
		return
	}
	if err := h.Captcha.DeleteCaptcha(ctx, req.Email); err != nil {
		log.Warnf("delete consumed captcha for %s: %v", req.Email, err)
	}

	go func() {
		if err := h.Mailer.SendText(u.Email, "Welcome",
			fmt.Sprintf("Hi %s, your account is ready.", u.Name)); err != nil {
			log.Warnf("send welcome mail to %s: %v", u.Email, err)
		}
	}()

	token, err := h.Issuer.Sign(u.Email, models.RoleName(u.Role), u.Name, u.TokenVersion)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50008, "failed to issue token")
		return
	}
	c.Header("Authorization", token)
	common.OK(c, gin.H{"token": token, "user": models.Sanitize(u)})
}

type loginRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates by email or phone and mints a versioned token.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Email == "" && req.Phone == "") {
		common.Fail(c, http.StatusBadRequest, 40004, "email or phone plus password required")
		return
	}
	ctx := c.Request.Context()

	var u *models.User
	var err error
	if req.Email != "" {
		u, err = h.Users.GetByEmail(ctx, strings.TrimSpace(req.Email))
	} else {
		u, err = h.Users.GetByPhone(ctx, strings.TrimSpace(req.Phone))
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusUnauthorized, 40103, "bad credentials")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50007, "failed to load account")
		return
	}
	if !auth.CheckPassword(req.Password, u.PasswordHash) {
		common.Fail(c, http.StatusUnauthorized, 40103, "bad credentials")
		return
	}

	token, err := h.Issuer.Sign(u.Email, models.RoleName(u.Role), u.Name, u.TokenVersion)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50008, "failed to issue token")
		return
	}
	if err := h.Users.UpdateLastLogin(ctx, u.ID); err != nil {
		log.Warnf("update last login for %s: %v", u.Email, err)
	}
	c.Header("Authorization", token)
	common.OK(c, gin.H{"token": token, "user": models.Sanitize(u)})
}

// Logout bumps the account's token version, invalidating every token
// minted before this call.
func (h *Handler) Logout(c *gin.Context) {
	ident, ok := middleware.Identity(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40104, "not authenticated")
		return
	}
	if err := h.Users.BumpTokenVersion(c.Request.Context(), ident.Email); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50009, "failed to log out")
		return
	}
	common.OK(c, gin.H{"loggedOut": true})
}

// Recharge upgrades the caller to a paid tier and returns a fresh
// token carrying the new role.
func (h *Handler) Recharge(c *gin.Context) {
	ident, ok := middleware.Identity(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40104, "not authenticated")
		return
	}
	ctx := c.Request.Context()

	var role, days int
	switch c.Query("role") {
	case "member":
		role, days = models.RoleMember, h.MemberDays
	case "super_member":
		role, days = models.RoleSuperMember, h.SuperMemberDays
	default:
		common.Fail(c, http.StatusBadRequest, 40005, "role must be member or super_member")
		return
	}
	if err := h.Users.SetRole(ctx, ident.Email, role, days); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50010, "failed to apply recharge")
		return
	}

	u, err := h.Users.GetByEmail(ctx, ident.Email)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50011, "failed to reload account")
		return
	}
	token, err := h.Issuer.Sign(u.Email, models.RoleName(u.Role), u.Name, u.TokenVersion)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50008, "failed to issue token")
		return
	}
	c.Header("Authorization", token)
	common.OK(c, gin.H{"token": token, "user": models.Sanitize(u)})
}
