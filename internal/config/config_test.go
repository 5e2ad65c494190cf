package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.JWTExpirySecs != 86400 || cfg.JWTAdminExpirySecs != 3600 {
		t.Errorf("jwt expiries = %d/%d", cfg.JWTExpirySecs, cfg.JWTAdminExpirySecs)
	}
	if cfg.HistoryRecordCap != 20 {
		t.Errorf("historyRecordCap = %d", cfg.HistoryRecordCap)
	}
	if cfg.RecorderSink != "db" || cfg.RecorderDepth != 256 {
		t.Errorf("recorder = %s/%d", cfg.RecorderSink, cfg.RecorderDepth)
	}
	if cfg.RabbitQueue != "exchange_records" {
		t.Errorf("rabbitQueue = %q", cfg.RabbitQueue)
	}
	if cfg.BaiLianTimeoutMS != 60000 || cfg.QianFanTimeoutMS != 60000 {
		t.Errorf("timeouts = %d/%d", cfg.BaiLianTimeoutMS, cfg.QianFanTimeoutMS)
	}
	if cfg.BaiLianIdleTimeoutMS != 30000 || cfg.QianFanIdleTimeoutMS != 30000 {
		t.Errorf("idle timeouts = %d/%d", cfg.BaiLianIdleTimeoutMS, cfg.QianFanIdleTimeoutMS)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JWT_EXPIRATION", "120")
	t.Setenv("HISTORY_RECORD_CAP", "5")
	t.Setenv("RECORDER_SINK", "rabbit")
	t.Setenv("SMTP_USER", "ops@example.com")

	cfg := Load()
	if cfg.JWTExpirySecs != 120 {
		t.Errorf("jwtExpiry = %d", cfg.JWTExpirySecs)
	}
	if cfg.HistoryRecordCap != 5 {
		t.Errorf("historyRecordCap = %d", cfg.HistoryRecordCap)
	}
	if cfg.RecorderSink != "rabbit" {
		t.Errorf("recorderSink = %q", cfg.RecorderSink)
	}
	// SMTP_FROM falls back to SMTP_USER.
	if cfg.SMTPFrom != "ops@example.com" {
		t.Errorf("smtpFrom = %q", cfg.SMTPFrom)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("HISTORY_RECORD_CAP", "lots")
	cfg := Load()
	if cfg.HistoryRecordCap != 20 {
		t.Errorf("historyRecordCap = %d, want default", cfg.HistoryRecordCap)
	}
}
