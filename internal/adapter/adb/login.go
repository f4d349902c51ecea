package adb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/backoff"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

const keycodeDel = 67

// Layout holds the login screen coordinates of the app.
type Layout struct {
	UsernameField Point
	PasswordField Point
	LoginButton   Point
}

func DefaultLayout() Layout {
	return Layout{
		UsernameField: Point{540, 800},
		PasswordField: Point{540, 1000},
		LoginButton:   Point{540, 1300},
	}
}

type LoginConfig struct {
	Package       string
	LoginActivity string
	Layout        Layout
	StepDelay     time.Duration // pause between UI actions
	PollInterval  time.Duration // focus polling while waiting for screens
}

// Login replays credentials through the app's login activity.
type Login struct {
	adb Runner
	cfg LoginConfig
	l   logger.Logger
}

func NewLogin(adb Runner, cfg LoginConfig, l logger.Logger) *Login {
	if cfg.Layout == (Layout{}) {
		cfg.Layout = DefaultLayout()
	}
	if cfg.StepDelay <= 0 {
		cfg.StepDelay = 500 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Login{adb: adb, cfg: cfg, l: l}
}

// Login is done when the app leaves the login activity. ctx bounds the whole
// flow; running out of time is ErrAuth.
func (a *Login) Login(ctx context.Context, h models.DeviceHandle, creds models.Credentials) error {
	const op = "Login.Login"
	ctx = wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionLogin), h.DeviceID)

	focus, err := a.focus(ctx, h.Serial)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if a.inApp(focus) && !a.onLoginScreen(focus) {
		a.l.Info(ctx, "already logged in")
		return nil
	}

	if !a.onLoginScreen(focus) {
		component := a.cfg.Package + "/" + a.cfg.LoginActivity
		if _, err := a.shell(ctx, h.Serial, "am", "start", "-n", component); err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w: start app: %w", op, types.ErrAuth, err))
		}
		if err := a.waitFocus(ctx, h.Serial, true); err != nil {
			return wrap.Error(ctx, fmt.Errorf("%s: %w: login screen did not open: %w", op, types.ErrAuth, err))
		}
	}

	steps := []step{
		{name: "focus username", args: tap(a.cfg.Layout.UsernameField)},
		{name: "clear username", args: clearField()},
		{name: "type username", args: inputText(creds.Username)},
		{name: "focus password", args: tap(a.cfg.Layout.PasswordField)},
		{name: "clear password", args: clearField()},
		{name: "type password", args: inputText(creds.Password)},
		{name: "submit", args: tap(a.cfg.Layout.LoginButton)},
	}
	if err := replay(ctx, a.adb, h.Serial, a.cfg.StepDelay, steps); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w: %w", op, types.ErrAuth, err))
	}

	if err := a.waitFocus(ctx, h.Serial, false); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w: still on login screen: %w", op, types.ErrAuth, err))
	}

	a.l.Info(ctx, "login replayed", "username", creds.Username)
	return nil
}

func (a *Login) shell(ctx context.Context, serial string, args ...string) (string, error) {
	return a.adb.Run(ctx, append([]string{"-s", serial, "shell"}, args...)...)
}

func (a *Login) focus(ctx context.Context, serial string) (string, error) {
	out, err := a.shell(ctx, serial, "dumpsys", "window", "windows")
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrDeviceCommand, err)
	}
	return strings.Join(focusLine.FindAllString(out, -1), "\n"), nil
}

func (a *Login) inApp(focus string) bool {
	return strings.Contains(focus, a.cfg.Package+"/")
}

func (a *Login) onLoginScreen(focus string) bool {
	return a.inApp(focus) && strings.Contains(focus, a.cfg.LoginActivity)
}

// waitFocus polls until the login screen is (or is no longer) focused.
func (a *Login) waitFocus(ctx context.Context, serial string, onLogin bool) error {
	for {
		focus, err := a.focus(ctx, serial)
		if err == nil && a.inApp(focus) && a.onLoginScreen(focus) == onLogin {
			return nil
		}
		if err := backoff.Sleep(ctx, a.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// clearField selects to the end of the field and deletes.
func clearField() []string {
	return []string{"input", "keycombination", "113", "29", "&&", "input", "keyevent", strconv.Itoa(keycodeDel)}
}

// inputText quotes text for the remote shell; spaces are encoded as %s for
// the input tool.
func inputText(text string) []string {
	text = strings.ReplaceAll(text, " ", "%s")
	text = strings.ReplaceAll(text, "'", `'\''`)
	return []string{"input", "text", "'" + text + "'"}
}
