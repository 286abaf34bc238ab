package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"drowsy-monitor/internal/logger"
	"drowsy-monitor/internal/types"
)

const (
	commandKey       = "drowsiness:command"
	stateHash        = "drowsiness"
	breakHash        = "break"
	breakStream      = "events:breaks"
	gpsHash          = "gps"
	perceptionChan   = "perception"
	breakStreamLimit = 1000
)

var ErrInvalidCommand = errors.New("invalid drowsiness command")

type Callbacks struct {
	SessionCallback     func(types.SessionState) error // "pause", "resume"
	AcknowledgeCallback func() error                   // "ack"
	FrameCallback       func(payload string)           // raw perception frame
}

type RedisClient struct {
	client      *redis.Client
	callbacks   Callbacks
	logger      *logger.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	pollTimeout time.Duration

	mu      sync.Mutex
	breakID string
	start   time.Time
}

func NewRedisClient(host string, port int, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		callbacks:   callbacks,
		logger:      l.WithTag("Redis"),
		ctx:         ctx,
		cancel:      cancel,
		pollTimeout: 5 * time.Second,
	}
}

// SetCallbacks replaces the handlers; call before StartListening.
func (r *RedisClient) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		r.logger.Warnf("Redis connection failed: %v", err)
		return fmt.Errorf("redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts the command and perception listeners.
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	pubsub := r.client.Subscribe(r.ctx, perceptionChan)
	if _, err := pubsub.Receive(r.ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", perceptionChan, err)
	}
	r.logger.Infof("Subscribed to Redis channel: %s", perceptionChan)

	r.wg.Add(2)
	go r.redisListener(pubsub)
	go r.listCommandListener(commandKey, r.handleCommand)

	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// short timeout so cancellation is noticed
			result, err := r.client.BRPop(r.ctx, r.pollTimeout, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if errors.Is(err, context.Canceled) || r.ctx.Err() != nil {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Warnf("Error reading from %s list: %v", key, err)
				r.backoff()
				continue
			}

			if len(result) >= 2 { // BRPOP returns [key, value]
				value := result[1]
				r.logger.Debugf("Received command from %s: %s", key, value)
				if err := handler(value); err != nil {
					r.logger.Warnf("Error handling %s command: %v", key, err)
				}
			}
		}
	}
}

func (r *RedisClient) backoff() {
	select {
	case <-r.ctx.Done():
	case <-time.After(time.Second):
	}
}

func (r *RedisClient) handleCommand(value string) error {
	switch value {
	case "pause", "resume":
		if r.callbacks.SessionCallback == nil {
			return nil
		}
		target := types.SessionActive
		if value == "pause" {
			target = types.SessionPaused
		}
		return r.callbacks.SessionCallback(target)
	case "ack":
		if r.callbacks.AcknowledgeCallback == nil {
			return nil
		}
		return r.callbacks.AcknowledgeCallback()
	default:
		r.logger.Infof("Invalid drowsiness command value: %s", value)
		return fmt.Errorf("%w: %q", ErrInvalidCommand, value)
	}
}

func (r *RedisClient) redisListener(pubsub *redis.PubSub) {
	defer r.wg.Done()
	defer pubsub.Close()

	r.logger.Infof("Starting Redis message listener")
	channel := pubsub.Channel()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting listener")
			return
		case msg, ok := <-channel:
			if !ok || msg == nil {
				r.logger.Errorf("Redis subscription lost, perception feed stopped")
				return
			}

			switch msg.Channel {
			case perceptionChan:
				if r.callbacks.FrameCallback != nil {
					r.callbacks.FrameCallback(msg.Payload)
				}
			default:
				r.logger.Debugf("Unhandled Redis message: channel=%s payload=%s", msg.Channel, msg.Payload)
			}
		}
	}
}

// publishHashSet atomically updates hash fields and publishes a notification
func (r *RedisClient) publishHashSet(ctx context.Context, hash string, values map[string]interface{}, channel, payload string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, hash, values)
	pipe.Publish(ctx, channel, payload)
	_, err := pipe.Exec(ctx)
	return err
}

// PublishState mirrors session and alert state into the drowsiness hash.
func (r *RedisClient) PublishState(ctx context.Context, session types.SessionState, alert types.AlertState) error {
	r.logger.Debugf("Publishing state: session=%s alert=%s", session, alert)

	err := r.publishHashSet(ctx, stateHash, map[string]interface{}{
		"session":         string(session),
		"alert":           string(alert),
		"state:timestamp": time.Now().Format(time.RFC3339),
	}, stateHash, "state")
	if err != nil {
		r.logger.Warnf("Failed to publish state: %v", err)
		return err
	}
	return nil
}

// BeginBreak opens a new break record in the break hash and event stream.
func (r *RedisClient) BeginBreak(ctx context.Context, at time.Time) error {
	r.mu.Lock()
	r.breakID = uuid.NewString()
	r.start = at
	id := r.breakID
	r.mu.Unlock()

	values := map[string]interface{}{
		"id":    id,
		"state": "open",
		"start": at.Unix(),
	}
	if loc, ok := r.Location(ctx); ok {
		values["latitude"] = strconv.FormatFloat(loc.Latitude, 'f', 6, 64)
		values["longitude"] = strconv.FormatFloat(loc.Longitude, 'f', 6, 64)
		if !loc.At.IsZero() {
			values["location:timestamp"] = loc.At.Unix()
		}
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, breakHash)
	pipe.HSet(ctx, breakHash, values)
	r.addBreakEvent(ctx, pipe, "begin", id, at)
	pipe.Publish(ctx, breakHash, "begin")
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warnf("Failed to report break begin: %v", err)
		return err
	}
	r.logger.Infof("Reported break %s begin", id)
	return nil
}

// EndBreak closes the current break record.
func (r *RedisClient) EndBreak(ctx context.Context, at time.Time) error {
	r.mu.Lock()
	id, start := r.breakID, r.start
	r.breakID = ""
	r.mu.Unlock()

	if id == "" {
		r.logger.Debugf("No break open, ignoring end")
		return nil
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, breakHash, map[string]interface{}{
		"state":    "closed",
		"end":      at.Unix(),
		"duration": int64(at.Sub(start) / time.Second),
	})
	r.addBreakEvent(ctx, pipe, "end", id, at)
	pipe.Publish(ctx, breakHash, "end")
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warnf("Failed to report break end: %v", err)
		return err
	}
	r.logger.Infof("Reported break %s end", id)
	return nil
}

// ThresholdCrossed marks that the driver has rested long enough.
func (r *RedisClient) ThresholdCrossed(ctx context.Context, at time.Time) error {
	r.mu.Lock()
	id := r.breakID
	r.mu.Unlock()

	pipe := r.client.Pipeline()
	if id != "" {
		pipe.HSet(ctx, breakHash, "threshold", at.Unix())
	}
	r.addBreakEvent(ctx, pipe, "threshold", id, at)
	pipe.Publish(ctx, breakHash, "threshold")
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warnf("Failed to report rest threshold: %v", err)
		return err
	}
	r.logger.Infof("Reported rest threshold reached")
	return nil
}

func (r *RedisClient) addBreakEvent(ctx context.Context, pipe redis.Pipeliner, event, id string, at time.Time) {
	values := map[string]interface{}{
		"event": event,
		"ts":    at.Unix(),
	}
	if id != "" {
		values["id"] = id
	}
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: breakStream,
		MaxLen: breakStreamLimit,
		Values: values,
	})
}

// Location reads the last fix from the gps hash.
func (r *RedisClient) Location(ctx context.Context) (types.Location, bool) {
	fields, err := r.client.HGetAll(ctx, gpsHash).Result()
	if err != nil {
		r.logger.Debugf("Failed to read gps hash: %v", err)
		return types.Location{}, false
	}

	lat, err := strconv.ParseFloat(fields["latitude"], 64)
	if err != nil {
		return types.Location{}, false
	}
	lon, err := strconv.ParseFloat(fields["longitude"], 64)
	if err != nil {
		return types.Location{}, false
	}
	if lat == 0 && lon == 0 {
		// no fix yet
		return types.Location{}, false
	}

	loc := types.Location{Latitude: lat, Longitude: lon}
	if ts, err := strconv.ParseInt(fields["timestamp"], 10, 64); err == nil {
		loc.At = time.Unix(ts, 0)
	}
	return loc, true
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	// Wait for all goroutines to finish with a timeout
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Infof("All Redis goroutines finished")
	case <-time.After(r.pollTimeout + time.Second):
		r.logger.Warnf("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}
