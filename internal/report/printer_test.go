package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/probes"
	"github.com/user/pingwatch/internal/stats"
)

var target = model.Target{Name: "example.com", Addr: netip.MustParseAddr("93.184.216.34")}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Microsecond, "250 µs"},
		{12345 * time.Microsecond, "12.35 ms"},
		{time.Millisecond, "1.00 ms"},
		{1500 * time.Millisecond, "1.50 s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in), tt.in.String())
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]string{"": FormatText, "TEXT": FormatText, "json": FormatJSON, " csv ": FormatCSV} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestPrinterLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Start(target, 56)
	p.Outcome(model.Outcome{Target: target, Seq: 0, RTT: 12 * time.Millisecond, Bytes: 56, TTL: 57})
	p.Outcome(model.Outcome{Target: target, Seq: 1, Err: fmt.Errorf("%w: deadline", probes.ErrTimeout)})
	p.Outcome(model.Outcome{Target: target, Seq: 2, Err: fmt.Errorf("%w: %w", probes.ErrSend, errors.New("network unreachable"))})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "PING example.com (93.184.216.34): 56 data bytes", lines[0])
	assert.Equal(t, "56 bytes from 93.184.216.34: icmp_seq=0 ttl=57 time=12.00 ms", lines[1])
	assert.Equal(t, "Request timeout for icmp_seq=1 (93.184.216.34)", lines[2])
	assert.Equal(t, "Error pinging 93.184.216.34 (seq=2): send error: network unreachable", lines[3])
}

func TestPrinterTimestampAndQuiet(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Timestamps = true
	p.now = func() time.Time { return time.Date(2026, 1, 2, 13, 4, 5, 678_000_000, time.Local) }

	p.Outcome(model.Outcome{Target: target, Seq: 3, RTT: 500 * time.Microsecond, Bytes: 64, TTL: 64})
	assert.Equal(t, "[13:04:05.678] 64 bytes from 93.184.216.34: icmp_seq=3 ttl=64 time=500 µs\n", buf.String())

	buf.Reset()
	p.Quiet = true
	p.Outcome(model.Outcome{Target: target, Seq: 4, Err: probes.ErrTimeout})
	assert.Empty(t, buf.String())
}

func sampleSet() *stats.Set {
	set := stats.NewSet()
	set.Add(model.Outcome{Target: target, Seq: 0, RTT: 10 * time.Millisecond})
	set.Add(model.Outcome{Target: target, Seq: 1, RTT: 30 * time.Millisecond})
	set.Add(model.Outcome{Target: target, Seq: 2, Err: probes.ErrTimeout})
	set.Add(model.Outcome{Target: target, Seq: 3, RTT: 20 * time.Millisecond})

	quiet := model.Target{Addr: netip.MustParseAddr("10.0.0.1")}
	set.Ensure(quiet)
	return set
}

func TestWriteSummariesText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummaries(&buf, FormatText, sampleSet()))

	out := buf.String()
	assert.Contains(t, out, "--- example.com ping statistics ---\n4 packets transmitted, 3 received, 25.0% packet loss\n")
	assert.Contains(t, out, "rtt min/avg/max = 10.00 ms/20.00 ms/30.00 ms\n")
	assert.Contains(t, out, "--- 10.0.0.1 ping statistics ---\n0 packets transmitted, 0 received, 0.0% packet loss\n")
	assert.Equal(t, 1, strings.Count(out, "rtt min/avg/max"))
}

func TestWriteSummariesJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummaries(&buf, FormatJSON, sampleSet()))

	dec := json.NewDecoder(&buf)
	var first, second Summary
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))

	assert.Equal(t, "example.com", first.Host)
	assert.Equal(t, 4, first.PacketsTransmitted)
	assert.Equal(t, 3, first.PacketsReceived)
	assert.InDelta(t, 25.0, first.PacketLossPercent, 1e-9)
	assert.InDelta(t, 10.0, first.RTT.Min, 1e-9)
	assert.InDelta(t, 20.0, first.RTT.Avg, 1e-9)
	assert.InDelta(t, 30.0, first.RTT.Max, 1e-9)

	assert.Equal(t, "10.0.0.1", second.Host)
	assert.Zero(t, second.RTT.Max)
}

func TestWriteSummariesCSVHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummaries(&buf, FormatCSV, sampleSet()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "host,packets_transmitted,packets_received,packet_loss_percent,rtt_min_ms,rtt_avg_ms,rtt_max_ms", lines[0])
	assert.Equal(t, "example.com,4,3,25.0,10.000,20.000,30.000", lines[1])
	assert.Equal(t, "10.0.0.1,0,0,0.0,0.000,0.000,0.000", lines[2])
}
