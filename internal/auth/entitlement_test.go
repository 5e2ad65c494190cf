package auth

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qianniu/llmbot/internal/models"
	"github.com/qianniu/llmbot/internal/registry"
	"github.com/qianniu/llmbot/internal/user"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func seedUser(t *testing.T, gdb *gorm.DB, u *models.User) *models.User {
	t.Helper()
	if u.UUID == "" {
		u.UUID = "uuid-" + u.Email
	}
	if u.TokenVersion == 0 {
		u.TokenVersion = 1
	}
	if err := gdb.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func memberModel() *registry.Model {
	return &registry.Model{
		Name:       "qwen-plus",
		Provider:   "bailian",
		URL:        "http://example.invalid",
		AllowRoles: `["ROLE_MEMBER","ROLE_SUPER_MEMBER","ROLE_ADMIN"]`,
	}
}

func openModel() *registry.Model {
	return &registry.Model{
		Name:       "qwen-turbo",
		Provider:   "bailian",
		URL:        "http://example.invalid",
		AllowRoles: `["ROLE_NORMAL","ROLE_MEMBER","ROLE_SUPER_MEMBER","ROLE_ADMIN"]`,
	}
}

func newEntitlements(t *testing.T, gdb *gorm.DB) *Entitlements {
	t.Helper()
	issuer, err := NewTokenIssuer(testSecret, time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return NewEntitlements(user.NewRepo(gdb), issuer)
}

func TestAuthorizeStaleVersionDenied(t *testing.T) {
	gdb := newTestDB(t)
	seedUser(t, gdb, &models.User{Email: "a@x.com", Name: "A", Role: models.RoleMember, TokenVersion: 3})
	ents := newEntitlements(t, gdb)

	d, err := ents.Authorize(context.Background(), Identity{
		Email: "a@x.com", Role: "ROLE_MEMBER", TokenVersion: 2,
	}, memberModel())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Kind != DecisionDenied || d.Reason != ReasonStaleCredential {
		t.Fatalf("decision = %+v, want stale denial", d)
	}
}

func TestAuthorizeRoleNotAllowed(t *testing.T) {
	gdb := newTestDB(t)
	seedUser(t, gdb, &models.User{Email: "n@x.com", Name: "N", Role: models.RoleNormal, TokenVersion: 1})
	ents := newEntitlements(t, gdb)

	d, err := ents.Authorize(context.Background(), Identity{
		Email: "n@x.com", Role: "ROLE_NORMAL", TokenVersion: 1,
	}, memberModel())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Kind != DecisionDenied || d.Reason != ReasonInsufficientRole {
		t.Fatalf("decision = %+v, want role denial", d)
	}
}

func TestAuthorizeActiveMemberAllowed(t *testing.T) {
	gdb := newTestDB(t)
	seedUser(t, gdb, &models.User{
		Email: "m@x.com", Name: "M", Role: models.RoleMember, TokenVersion: 1,
		MembershipExpiry: time.Now().Add(time.Hour).Unix(),
	})
	ents := newEntitlements(t, gdb)

	d, err := ents.Authorize(context.Background(), Identity{
		Email: "m@x.com", Role: "ROLE_MEMBER", TokenVersion: 1,
	}, memberModel())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Kind != DecisionAllowed {
		t.Fatalf("decision = %+v, want allowed", d)
	}
}

func TestAuthorizeLapsedMemberDemoted(t *testing.T) {
	gdb := newTestDB(t)
	seedUser(t, gdb, &models.User{
		Email: "l@x.com", Name: "L", Role: models.RoleMember, TokenVersion: 5,
		MembershipExpiry: time.Now().Add(-time.Hour).Unix(),
	})
	ents := newEntitlements(t, gdb)

	d, err := ents.Authorize(context.Background(), Identity{
		Email: "l@x.com", Role: "ROLE_MEMBER", TokenVersion: 5,
	}, memberModel())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Kind != DecisionDemoted || d.Token == "" {
		t.Fatalf("decision = %+v, want demotion with fresh token", d)
	}

	var u models.User
	if err := gdb.Where("email = ?", "l@x.com").First(&u).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if u.Role != models.RoleNormal {
		t.Errorf("role = %d, want NORMAL", u.Role)
	}
	if u.MembershipExpiry != 0 {
		t.Errorf("membershipExpiry = %d, want 0", u.MembershipExpiry)
	}
	if u.TokenVersion != 6 {
		t.Errorf("tokenVersion = %d, want exactly one bump to 6", u.TokenVersion)
	}

	issuer, _ := NewTokenIssuer(testSecret, time.Hour, time.Hour)
	ident, err := issuer.Parse(d.Token)
	if err != nil {
		t.Fatalf("parse fresh token: %v", err)
	}
	if ident.Role != "ROLE_NORMAL" || ident.TokenVersion != 6 {
		t.Errorf("fresh token = %+v, want NORMAL v6", ident)
	}
}

func TestAuthorizeLapsedMemberOpenModelSkipsDemotion(t *testing.T) {
	gdb := newTestDB(t)
	seedUser(t, gdb, &models.User{
		Email: "o@x.com", Name: "O", Role: models.RoleMember, TokenVersion: 2,
		MembershipExpiry: time.Now().Add(-time.Hour).Unix(),
	})
	ents := newEntitlements(t, gdb)

	d, err := ents.Authorize(context.Background(), Identity{
		Email: "o@x.com", Role: "ROLE_MEMBER", TokenVersion: 2,
	}, openModel())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Kind != DecisionAllowed {
		t.Fatalf("decision = %+v, want allowed without demotion", d)
	}

	var u models.User
	gdb.Where("email = ?", "o@x.com").First(&u)
	if u.Role != models.RoleMember || u.TokenVersion != 2 {
		t.Errorf("user mutated: role=%d version=%d", u.Role, u.TokenVersion)
	}
}

func TestAuthorizeAdminNeverDemoted(t *testing.T) {
	gdb := newTestDB(t)
	seedUser(t, gdb, &models.User{
		Email: "adm@x.com", Name: "Adm", Role: models.RoleAdmin, TokenVersion: 1,
	})
	ents := newEntitlements(t, gdb)

	d, err := ents.Authorize(context.Background(), Identity{
		Email: "adm@x.com", Role: "ROLE_ADMIN", TokenVersion: 1,
	}, memberModel())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Kind != DecisionAllowed {
		t.Fatalf("decision = %+v, want allowed", d)
	}
}

func TestDemoteExpiredFencedOnVersion(t *testing.T) {
	gdb := newTestDB(t)
	seedUser(t, gdb, &models.User{
		Email: "f@x.com", Name: "F", Role: models.RoleMember, TokenVersion: 4,
		MembershipExpiry: time.Now().Add(-time.Hour).Unix(),
	})
	repo := user.NewRepo(gdb)

	won, err := repo.DemoteExpired(context.Background(), "f@x.com", 3)
	if err != nil {
		t.Fatalf("DemoteExpired: %v", err)
	}
	if won {
		t.Fatal("fenced write with stale version reported success")
	}

	won, err = repo.DemoteExpired(context.Background(), "f@x.com", 4)
	if err != nil {
		t.Fatalf("DemoteExpired: %v", err)
	}
	if !won {
		t.Fatal("fenced write with current version failed")
	}
}
