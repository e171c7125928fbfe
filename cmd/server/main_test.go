package main

import (
	"testing"

	"github.com/rs/zerolog"

	"ashkicharm/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", Passphrase: "long enough passphrase"})
	if err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
	err = validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", Passphrase: "пароль"})
	if err == nil {
		t.Fatalf("expected short passphrase to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", Passphrase: "вейп склад 2026"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestSetupLoggerLevelByEnv(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	setupLogger("production")
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level in production, got %s", zerolog.GlobalLevel())
	}
	setupLogger("development")
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level outside production, got %s", zerolog.GlobalLevel())
	}
}
