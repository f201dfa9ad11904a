// Package notify delivers desktop notifications when devices go offline.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/model"
)

// Notifier delivers a notification through one channel.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
	// Type returns the channel identifier (e.g. "notify-send", "log").
	Type() string
}

// New returns the notifier for the running platform, always paired with a
// log notifier so messages also reach the console.
func New(logger *zap.Logger) Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := &LogNotifier{logger: logger}

	var desktop Notifier
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		desktop = NewCommandNotifier("notify-send", notifySend)
	case "darwin":
		desktop = NewCommandNotifier("osascript", osascript)
	case "windows":
		desktop = NewCommandNotifier("powershell", powershell)
	default:
		return log
	}
	return Multi{desktop, log}
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, title, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Type(), err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Type() string {
	names := make([]string, len(m))
	for i, n := range m {
		names[i] = n.Type()
	}
	return strings.Join(names, "+")
}

// LogNotifier writes notifications to the logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, title, body string) error {
	n.logger.Warn(title, zap.String("message", body))
	return nil
}

func (n *LogNotifier) Type() string { return "log" }

// CommandNotifier shells out to a platform notification tool.
type CommandNotifier struct {
	name string
	args func(title, body string) []string
}

// NewCommandNotifier creates a notifier running name with args(title, body).
func NewCommandNotifier(name string, args func(title, body string) []string) *CommandNotifier {
	return &CommandNotifier{name: name, args: args}
}

func (n *CommandNotifier) Notify(ctx context.Context, title, body string) error {
	out, err := exec.CommandContext(ctx, n.name, n.args(title, body)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to run %s: %w: %s", n.name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (n *CommandNotifier) Type() string { return n.name }

func notifySend(title, body string) []string {
	return []string{title, body}
}

func osascript(title, body string) []string {
	script := fmt.Sprintf("display notification %s with title %s", appleQuote(body), appleQuote(title))
	return []string{"-e", script}
}

func powershell(title, body string) []string {
	script := "Add-Type -AssemblyName System.Windows.Forms; " +
		"$notify = New-Object System.Windows.Forms.NotifyIcon; " +
		"$notify.Icon = [System.Drawing.SystemIcons]::Information; " +
		"$notify.Visible = $true; " +
		fmt.Sprintf("$notify.ShowBalloonTip(0, %s, %s, [System.Windows.Forms.ToolTipIcon]::None)", psQuote(title), psQuote(body))
	return []string{"-NoProfile", "-Command", script}
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// OfflineMessage formats the notification for a device that went away.
func OfflineMessage(d model.DeviceInfo) (title, body string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Device %s is offline", d.Addr)
	if d.Hostname != "" {
		fmt.Fprintf(&b, "\nHostname: %s", d.Hostname)
	}
	if d.MAC != "" {
		fmt.Fprintf(&b, "\nMAC: %s", d.MAC)
	}
	if d.Vendor != "" {
		fmt.Fprintf(&b, "\nVendor: %s", d.Vendor)
	}
	fmt.Fprintf(&b, "\nLast seen: %s", d.LastSeen.Format("2006-01-02 15:04:05"))
	return "Device offline", b.String()
}
