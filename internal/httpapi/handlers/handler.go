package handlers

import (
	"github.com/qianniu/llmbot/internal/auth"
	"github.com/qianniu/llmbot/internal/chat"
	"github.com/qianniu/llmbot/internal/email"
	"github.com/qianniu/llmbot/internal/registry"
	"github.com/qianniu/llmbot/internal/store/redisstore"
	"github.com/qianniu/llmbot/internal/user"
)

// Handler bundles the dependencies the HTTP endpoints share.
type Handler struct {
	Users    *user.Repo
	Models   *registry.Repo
	Messages *chat.Repo
	ChatSvc  *chat.Service
	Issuer   *auth.TokenIssuer
	Captcha  *redisstore.Store
	Mailer   *email.Sender

	// Paid-tier windows in days, applied on recharge.
	MemberDays      int
	SuperMemberDays int
}
