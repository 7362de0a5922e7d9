package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"github.com/tilakp839-oss/chaiii/internal/metrics"
	"github.com/tilakp839-oss/chaiii/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// sessionStartedPayload is what subscribed browsers receive when a voting
// session opens.
type sessionStartedPayload struct {
	Event     string `json:"event"`
	SessionID int64  `json:"sessionId"`
	Message   string `json:"message"`
}

// WorkerPool fans session-start announcements out to every registered push
// subscription. Jobs are session IDs.
type WorkerPool struct {
	size      int
	jobs      chan int64
	db        *gorm.DB
	webpush   *webpush.Options
	sender    Sender
	collector *metrics.Collector
}

// NewWorkerPool creates a new worker pool. The collector may be nil.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, collector *metrics.Collector) *WorkerPool {
	return &WorkerPool{
		size:      size,
		jobs:      make(chan int64, size),
		db:        db,
		webpush:   webpushOptions,
		sender:    &WebPushSender{},
		collector: collector,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case sessionID := <-wp.jobs:
			log.Printf("Worker %d announcing session %d", id, sessionID)
			wp.announceSession(ctx, sessionID)
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch sends a job to the worker pool.
func (wp *WorkerPool) Dispatch(sessionID int64) {
	wp.jobs <- sessionID
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan int64 {
	return wp.jobs
}

// SetSender swaps the push transport; tests install a fake here.
func (wp *WorkerPool) SetSender(s Sender) {
	wp.sender = s
}

// announceSession fetches all subscriptions and notifies each that the
// session is open for voting.
func (wp *WorkerPool) announceSession(ctx context.Context, sessionID int64) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		log.Printf("Error fetching subscriptions for session %d: %v", sessionID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(sessionStartedPayload{
		Event:     "session_started",
		SessionID: sessionID,
		Message:   "Coffee or tea? A voting session just started — cast your vote!",
	})
	if err != nil {
		log.Printf("Error marshaling notification payload for session %d: %v", sessionID, err)
		return
	}

	log.Printf("Sending %d notifications for session %d", len(subscriptions), sessionID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
		return
	}

	if wp.collector != nil {
		wp.collector.RecordNotificationSent()
	}
}
