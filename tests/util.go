// Package testutil holds fixtures shared by the package tests.
package testutil

import (
	"context"
	"io"
	"log"
	"net/mail"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/auth"
	"github.com/trezcool/schoolsite/core/content"
	"github.com/trezcool/schoolsite/core/user"
	logsvc "github.com/trezcool/schoolsite/services/logger"
)

// Config returns a TEST configuration that does not read the environment.
func Config(t *testing.T) *core.Config {
	return &core.Config{
		AppName:                   "Sekolah",
		Env:                       "TEST",
		TestMode:                  true,
		WorkDir:                   t.TempDir(),
		SecretKey:                 "test-secret-key",
		FromEmail:                 mail.Address{Name: "Sekolah", Address: "noreply@test.id"},
		ContactInbox:              mail.Address{Name: "Sekolah", Address: "info@test.id"},
		FrontendBaseURL:           "http://localhost:3000",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: core.ServerConfig{
			Host:                      "localhost",
			Address:                   ":0",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
		Database: core.DatabaseConfig{Engine: "memory"},
		Media: core.MediaConfig{
			Backend:        "local",
			Dir:            t.TempDir(),
			BaseURL:        "/uploads",
			MaxUploadBytes: 1 << 20,
		},
	}
}

// Logger returns a logger writing nowhere.
func Logger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	role auth.Role,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateItem(t *testing.T, repo content.Repository, kind, title string, attrs content.Attrs, publishedAt ...time.Time) content.Item {
	now := time.Now().UTC()
	pub := now
	if len(publishedAt) > 0 {
		pub = publishedAt[0].UTC()
	}
	if attrs == nil {
		attrs = content.Attrs{}
	}
	item, err := repo.CreateItem(context.Background(), content.Item{
		Kind:        kind,
		Title:       title,
		Attrs:       attrs,
		PublishedAt: null.TimeFrom(pub),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateItem() failed: %v", err)
	}
	return item
}
