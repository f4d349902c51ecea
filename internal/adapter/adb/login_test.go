package adb

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
)

const focusLogin = `  mCurrentFocus=Window{a1b2 u0 com.hust.sport/com.hust.sport.LoginActivity}`

func newLogin(r *scriptedRunner) *Login {
	return NewLogin(r, LoginConfig{
		Package:       "com.hust.sport",
		LoginActivity: "LoginActivity",
		StepDelay:     time.Millisecond,
		PollInterval:  time.Millisecond,
	}, logger.NewNop())
}

var handle = models.DeviceHandle{DeviceID: "d", Serial: "d"}
var creds = models.Credentials{Username: "U2021 1234", Password: "it's-secret"}

func TestLogin_ReplaysCredentials(t *testing.T) {
	r := newScripted()
	var submitted atomic.Bool
	r.onFunc("-s d shell dumpsys window", func() (string, error) {
		if submitted.Load() {
			return focusApp, nil
		}
		return focusLogin, nil
	})
	r.onFunc("-s d shell input tap 540 1300", func() (string, error) {
		submitted.Store(true)
		return "", nil
	})

	if err := newLogin(r).Login(context.Background(), handle, creds); err != nil {
		t.Fatalf("login: %v", err)
	}

	if r.called("-s d shell input text 'U2021%s1234'") != 1 {
		t.Fatalf("username not typed: %v", r.calls)
	}
	if r.called(`-s d shell input text 'it'\''s-secret'`) != 1 {
		t.Fatalf("password not quoted: %v", r.calls)
	}
	if r.called("-s d shell am start") != 0 {
		t.Fatalf("app must not be restarted when the login screen is open")
	}
}

func TestLogin_StartsAppFromLauncher(t *testing.T) {
	r := newScripted()
	var started, submitted atomic.Bool
	r.onFunc("-s d shell dumpsys window", func() (string, error) {
		switch {
		case submitted.Load():
			return focusApp, nil
		case started.Load():
			return focusLogin, nil
		}
		return focusLauncher, nil
	})
	r.onFunc("-s d shell am start -n com.hust.sport/LoginActivity", func() (string, error) {
		started.Store(true)
		return "", nil
	})
	r.onFunc("-s d shell input tap 540 1300", func() (string, error) {
		submitted.Store(true)
		return "", nil
	})

	if err := newLogin(r).Login(context.Background(), handle, creds); err != nil {
		t.Fatalf("login: %v", err)
	}
}

func TestLogin_AlreadyLoggedIn(t *testing.T) {
	r := newScripted()
	r.on("-s d shell dumpsys window", focusApp, nil)

	if err := newLogin(r).Login(context.Background(), handle, creds); err != nil {
		t.Fatalf("login: %v", err)
	}
	if r.called("-s d shell input") != 0 {
		t.Fatalf("no input expected when logged in: %v", r.calls)
	}
}

func TestLogin_RejectedCredentials(t *testing.T) {
	r := newScripted()
	r.on("-s d shell dumpsys window", focusLogin, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := newLogin(r).Login(ctx, handle, creds); !errors.Is(err, types.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}
