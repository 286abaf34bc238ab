package messaging

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"drowsy-monitor/internal/logger"
	"drowsy-monitor/internal/types"
)

var epoch = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, callbacks Callbacks) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)

	r := NewRedisClient(s.Host(), port, logger.NewLogger(nil, logger.LogLevelError), callbacks)
	r.pollTimeout = time.Second
	require.NoError(t, r.Connect())
	return r, s
}

func TestConnectFailure(t *testing.T) {
	r := NewRedisClient("127.0.0.1", 1, logger.NewLogger(nil, logger.LogLevelError), Callbacks{})
	defer r.Close()
	require.Error(t, r.Connect())
}

func TestPublishState(t *testing.T) {
	r, s := newTestClient(t, Callbacks{})
	defer r.Close()

	require.NoError(t, r.PublishState(context.Background(), types.SessionActive, types.AlertEyesClosedWarning))
	require.Equal(t, "active", s.HGet("drowsiness", "session"))
	require.Equal(t, "eyes-closed", s.HGet("drowsiness", "alert"))
	require.NotEmpty(t, s.HGet("drowsiness", "state:timestamp"))
}

func TestBreakLifecycle(t *testing.T) {
	r, s := newTestClient(t, Callbacks{})
	defer r.Close()
	ctx := context.Background()

	s.HSet("gps", "latitude", "52.520000", "longitude", "13.405000", "timestamp", "1773475200")

	require.NoError(t, r.BeginBreak(ctx, epoch))
	id := s.HGet("break", "id")
	require.NotEmpty(t, id)
	require.Equal(t, "open", s.HGet("break", "state"))
	require.Equal(t, strconv.FormatInt(epoch.Unix(), 10), s.HGet("break", "start"))
	require.Equal(t, "52.520000", s.HGet("break", "latitude"))
	require.Equal(t, "13.405000", s.HGet("break", "longitude"))
	require.Equal(t, "1773475200", s.HGet("break", "location:timestamp"))

	require.NoError(t, r.ThresholdCrossed(ctx, epoch.Add(20*time.Minute)))
	require.Equal(t, strconv.FormatInt(epoch.Add(20*time.Minute).Unix(), 10), s.HGet("break", "threshold"))

	require.NoError(t, r.EndBreak(ctx, epoch.Add(25*time.Minute)))
	require.Equal(t, "closed", s.HGet("break", "state"))
	require.Equal(t, "1500", s.HGet("break", "duration"))
	require.Equal(t, id, s.HGet("break", "id"))

	n, err := r.client.XLen(ctx, "events:breaks").Result()
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestNewBreakReplacesRecord(t *testing.T) {
	r, s := newTestClient(t, Callbacks{})
	defer r.Close()
	ctx := context.Background()

	require.NoError(t, r.BeginBreak(ctx, epoch))
	require.NoError(t, r.ThresholdCrossed(ctx, epoch.Add(20*time.Minute)))
	require.NoError(t, r.EndBreak(ctx, epoch.Add(21*time.Minute)))
	first := s.HGet("break", "id")

	require.NoError(t, r.BeginBreak(ctx, epoch.Add(time.Hour)))
	require.NotEqual(t, first, s.HGet("break", "id"))
	require.Empty(t, s.HGet("break", "threshold"))
	require.Empty(t, s.HGet("break", "end"))
	require.Empty(t, s.HGet("break", "location:timestamp"), "no gps fix")
}

func TestEndBreakWithoutBegin(t *testing.T) {
	r, s := newTestClient(t, Callbacks{})
	defer r.Close()

	require.NoError(t, r.EndBreak(context.Background(), epoch))
	require.False(t, s.Exists("break"))
}

func TestLocation(t *testing.T) {
	r, s := newTestClient(t, Callbacks{})
	defer r.Close()
	ctx := context.Background()

	_, ok := r.Location(ctx)
	require.False(t, ok, "no gps hash")

	s.HSet("gps", "latitude", "0.000000", "longitude", "0.000000")
	_, ok = r.Location(ctx)
	require.False(t, ok, "no fix")

	s.HSet("gps", "latitude", "48.137", "longitude", "11.575", "timestamp", "1773475200")
	loc, ok := r.Location(ctx)
	require.True(t, ok)
	require.InDelta(t, 48.137, loc.Latitude, 1e-9)
	require.InDelta(t, 11.575, loc.Longitude, 1e-9)
	require.Equal(t, int64(1773475200), loc.At.Unix())
}

func TestHandleCommandRejectsUnknown(t *testing.T) {
	rec := &recorder{}
	r := NewRedisClient("127.0.0.1", 6379, logger.NewLogger(nil, logger.LogLevelError), rec.callbacks())
	defer r.Close()

	require.ErrorIs(t, r.handleCommand("reboot"), ErrInvalidCommand)
	require.NoError(t, r.handleCommand("ack"))

	sessions, acks, _ := rec.snapshot()
	require.Empty(t, sessions)
	require.Equal(t, 1, acks)
}

type recorder struct {
	mu       sync.Mutex
	sessions []types.SessionState
	acks     int
	frames   []string
}

func (rec *recorder) callbacks() Callbacks {
	return Callbacks{
		SessionCallback: func(s types.SessionState) error {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.sessions = append(rec.sessions, s)
			return nil
		},
		AcknowledgeCallback: func() error {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.acks++
			return nil
		},
		FrameCallback: func(payload string) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.frames = append(rec.frames, payload)
		},
	}
}

func (rec *recorder) snapshot() ([]types.SessionState, int, []string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]types.SessionState(nil), rec.sessions...), rec.acks, append([]string(nil), rec.frames...)
}

func TestCommandListener(t *testing.T) {
	rec := &recorder{}
	r, s := newTestClient(t, rec.callbacks())
	require.NoError(t, r.StartListening())

	s.Lpush("drowsiness:command", "pause")
	s.Lpush("drowsiness:command", "bogus")
	s.Lpush("drowsiness:command", "ack")
	s.Lpush("drowsiness:command", "resume")

	require.Eventually(t, func() bool {
		sessions, acks, _ := rec.snapshot()
		return len(sessions) == 2 && acks == 1
	}, 3*time.Second, 10*time.Millisecond)

	sessions, _, _ := rec.snapshot()
	require.Equal(t, []types.SessionState{types.SessionPaused, types.SessionActive}, sessions)
	require.NoError(t, r.Close())
}

func TestPerceptionFeed(t *testing.T) {
	rec := &recorder{}
	r, s := newTestClient(t, rec.callbacks())
	require.NoError(t, r.StartListening())

	s.Publish("perception", `{"face":true}`)
	s.Publish("perception", `{"face":false}`)

	require.Eventually(t, func() bool {
		_, _, frames := rec.snapshot()
		return len(frames) == 2
	}, 3*time.Second, 10*time.Millisecond)

	_, _, frames := rec.snapshot()
	require.Equal(t, []string{`{"face":true}`, `{"face":false}`}, frames)
	require.NoError(t, r.Close())
}
