package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/qianniu/llmbot/internal/ai"
	"github.com/qianniu/llmbot/internal/auth"
	"github.com/qianniu/llmbot/internal/chat"
	"github.com/qianniu/llmbot/internal/config"
	"github.com/qianniu/llmbot/internal/db"
	"github.com/qianniu/llmbot/internal/email"
	"github.com/qianniu/llmbot/internal/httpapi"
	"github.com/qianniu/llmbot/internal/httpapi/handlers"
	"github.com/qianniu/llmbot/internal/registry"
	"github.com/qianniu/llmbot/internal/store/rabbitmq"
	"github.com/qianniu/llmbot/internal/store/redisstore"
	"github.com/qianniu/llmbot/internal/user"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	cfg := config.Load()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret,
		time.Duration(cfg.JWTExpirySecs)*time.Second,
		time.Duration(cfg.JWTAdminExpirySecs)*time.Second)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	captcha, err := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer captcha.Close()

	ai.RegisterProvider(&ai.Provider{
		Name: "bailian",
		Client: ai.NewClient(cfg.BaiLianKey,
			time.Duration(cfg.BaiLianTimeoutMS)*time.Millisecond,
			time.Duration(cfg.BaiLianIdleTimeoutMS)*time.Millisecond,
			ai.BaiLianHeaders()),
		Reframer: ai.BaiLian{},
	})
	ai.RegisterProvider(&ai.Provider{
		Name: "qianfan",
		Client: ai.NewClient(cfg.QianFanKey,
			time.Duration(cfg.QianFanTimeoutMS)*time.Millisecond,
			time.Duration(cfg.QianFanIdleTimeoutMS)*time.Millisecond,
			nil),
		Reframer: ai.QianFan{},
	})

	userRepo := user.NewRepo(gdb)
	modelRepo := registry.NewRepo(gdb)
	msgRepo := chat.NewRepo(gdb)

	var sink chat.Sink
	if cfg.RecorderSink == "rabbit" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatalf("rabbitmq publisher: %v", err)
		}
		defer pub.Close()
		sink = pub
	} else {
		sink = chat.NewDBSink(msgRepo)
	}
	recorder := chat.NewRecorder(sink, cfg.RecorderDepth)
	defer recorder.Close()

	ents := auth.NewEntitlements(userRepo, issuer)
	svc := chat.NewService(modelRepo, userRepo, ents,
		chat.NewHistoryAssembler(msgRepo), recorder, cfg.HistoryRecordCap)

	h := &handlers.Handler{
		Users:           userRepo,
		Models:          modelRepo,
		Messages:        msgRepo,
		ChatSvc:         svc,
		Issuer:          issuer,
		Captcha:         captcha,
		Mailer:          email.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom),
		MemberDays:      cfg.MemberDays,
		SuperMemberDays: cfg.SuperMemberDays,
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: httpapi.NewRouter(h, issuer),
	}

	go func() {
		log.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}
