package api

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"socrates-registration/domain"
	"socrates-registration/storage"
)

// The notification outbox decouples handlers from the mail queue: publishing
// never blocks a request, delivery is retried with backoff in the background.
// There is no durable buffer behind it; a notification lost to a crash can be
// re-derived from the event stream, which remains the source of truth.

type outboxConfig struct {
	bufferSize     int
	workerCount    int
	enqueueTimeout time.Duration
	retryInitial   time.Duration
	retryMax       time.Duration
	maxAttempts    int
}

type notificationOutbox struct {
	cfg      outboxConfig
	store    Store
	logger   *log.Logger
	workCh   chan storage.Notification
	stopCh   chan struct{}
	workerWG sync.WaitGroup

	mu      sync.Mutex
	closing bool
}

var (
	globalOutbox *notificationOutbox
	outboxOnce   sync.Once
)

func initNotificationSender(store Store, logger *log.Logger) {
	outboxOnce.Do(func() {
		if store == nil {
			panic("storage is required")
		}
		if logger == nil {
			panic("logger is required")
		}

		cfg := outboxConfig{
			bufferSize:     envInt("OUTBOX_BUFFER", 1024),
			workerCount:    envInt("OUTBOX_WORKERS", 4),
			enqueueTimeout: envDur("OUTBOX_ENQUEUE_TIMEOUT", 30*time.Second),
			retryInitial:   envDur("OUTBOX_RETRY_INITIAL", 250*time.Millisecond),
			retryMax:       envDur("OUTBOX_RETRY_MAX", 30*time.Second),
			maxAttempts:    envInt("OUTBOX_MAX_ATTEMPTS", 8),
		}
		if cfg.workerCount <= 0 {
			cfg.workerCount = 1
		}
		if cfg.bufferSize <= 0 {
			cfg.bufferSize = cfg.workerCount * 2
		}
		if cfg.maxAttempts <= 0 {
			cfg.maxAttempts = 1
		}

		o := &notificationOutbox{
			cfg:    cfg,
			store:  store,
			logger: logger,
			workCh: make(chan storage.Notification, cfg.bufferSize),
			stopCh: make(chan struct{}),
		}
		for i := 0; i < cfg.workerCount; i++ {
			o.workerWG.Add(1)
			go o.worker()
		}
		globalOutbox = o
	})
}

// shutdownNotificationSender stops workers and resets the singleton; used by
// tests and graceful shutdown.
func shutdownNotificationSender() {
	o := globalOutbox
	if o == nil {
		return
	}
	o.mu.Lock()
	if !o.closing {
		o.closing = true
		close(o.stopCh)
	}
	o.mu.Unlock()
	o.workerWG.Wait()
	globalOutbox = nil
	outboxOnce = sync.Once{}
}

// publishNotification hands a notification to the outbox. When the buffer is
// saturated the notification is dropped with a warning rather than stalling
// the request.
func publishNotification(n storage.Notification) {
	o := globalOutbox
	if o == nil {
		return
	}
	select {
	case o.workCh <- n:
	default:
		o.logger.WithFields(log.Fields{
			"conference": n.ConferenceID,
			"event":      n.Event.Kind,
		}).Warn("notification outbox saturated; dropping message")
	}
}

func (o *notificationOutbox) worker() {
	defer o.workerWG.Done()
	for {
		select {
		case <-o.stopCh:
			return
		case n := <-o.workCh:
			o.deliver(n)
		}
	}
}

func (o *notificationOutbox) deliver(n storage.Notification) {
	delay := o.cfg.retryInitial
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.enqueueTimeout)
		err := o.store.EnqueueNotification(ctx, n)
		cancel()
		if err == nil {
			return
		}
		if attempt >= o.cfg.maxAttempts {
			o.logger.WithFields(log.Fields{
				"conference": n.ConferenceID,
				"event":      n.Event.Kind,
				"attempts":   attempt,
				"error":      err.Error(),
			}).Error("giving up on notification delivery")
			return
		}
		o.logger.WithFields(log.Fields{
			"conference": n.ConferenceID,
			"event":      n.Event.Kind,
			"attempt":    attempt,
			"error":      err.Error(),
		}).Warn("notification delivery failed; retrying")
		select {
		case <-o.stopCh:
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > o.cfg.retryMax {
			delay = o.cfg.retryMax
		}
	}
}

// notifiable reports whether an event kind triggers mail.
func notifiable(kind string) bool {
	switch kind {
	case domain.ParticipantRegistered, domain.WaitlistParticipantRegistered, domain.PromotedFromWaitlist:
		return true
	}
	return false
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDur(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
