package notify

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/user/pingwatch/internal/model"
)

type recordingNotifier struct {
	titles []string
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, title, body string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingNotifier) Type() string { return "recording" }

func TestOfflineMessage(t *testing.T) {
	d := model.DeviceInfo{
		Addr:     netip.MustParseAddr("192.168.1.40"),
		Hostname: "printer.lan",
		MAC:      "00:0C:29:01:02:03",
		Vendor:   "VMware",
		LastSeen: time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local),
	}

	title, body := OfflineMessage(d)
	assert.Equal(t, "Device offline", title)
	assert.Equal(t, "Device 192.168.1.40 is offline\n"+
		"Hostname: printer.lan\n"+
		"MAC: 00:0C:29:01:02:03\n"+
		"Vendor: VMware\n"+
		"Last seen: 2024-03-01 09:30:00", body)
}

func TestOfflineMessageOmitsUnknownFields(t *testing.T) {
	_, body := OfflineMessage(model.DeviceInfo{Addr: netip.MustParseAddr("10.0.0.2")})
	assert.NotContains(t, body, "Hostname")
	assert.NotContains(t, body, "MAC")
	assert.NotContains(t, body, "Vendor")
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("no display")}

	err := Multi{ok, bad}.Notify(context.Background(), "t", "b")
	assert.ErrorContains(t, err, "no display")
	assert.Equal(t, []string{"t"}, ok.titles)
	assert.Equal(t, []string{"t"}, bad.titles)
	assert.Equal(t, "recording+recording", Multi{ok, bad}.Type())
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	n := NewLogNotifier(zap.New(core))

	assert.NoError(t, n.Notify(context.Background(), "Device offline", "gone"))
	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "Device offline", entries[0].Message)
		assert.Equal(t, "gone", entries[0].ContextMap()["message"])
	}
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `"say \"hi\" \\ bye"`, appleQuote(`say "hi" \ bye`))
	assert.Equal(t, `'it''s'`, psQuote("it's"))

	args := osascript("T", `a"b`)
	assert.Equal(t, []string{"-e", `display notification "a\"b" with title "T"`}, args)
	assert.Equal(t, []string{"title", "body"}, notifySend("title", "body"))
}

func TestCommandNotifierMissingBinary(t *testing.T) {
	n := NewCommandNotifier("pingwatch-no-such-notifier", notifySend)
	assert.Error(t, n.Notify(context.Background(), "t", "b"))
	assert.Equal(t, "pingwatch-no-such-notifier", n.Type())
}
