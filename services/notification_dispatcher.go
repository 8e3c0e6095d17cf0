package services

import (
	"context"
	"log"
	"sync"
	"time"

	"campusQuestAPI/internal/notification"
)

// PushProvider is the outbound push channel. The production implementation is
// the Telegram bot in internal/notification; tests use MockPushProvider.
type PushProvider interface {
	SendPush(ctx context.Context, chatIDs []string, title, body string, data map[string]any) error
}

// NotificationDispatcher fans persisted notifications out to push channels
// through a small worker pool. A full queue drops the push; the in-app row
// already exists, so nothing is lost beyond the nudge.
type NotificationDispatcher struct {
	service      *NotificationService
	pushProvider PushProvider
	workers      int
	jobQueue     chan *notification.Notification
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

func NewNotificationDispatcher(service *NotificationService) *NotificationDispatcher {
	dispatcher := &NotificationDispatcher{
		service:  service,
		workers:  5,
		jobQueue: make(chan *notification.Notification, 100),
		stopChan: make(chan struct{}),
	}
	dispatcher.startWorkers()
	return dispatcher
}

// SetPushProvider injects the real provider from main.go.
func (d *NotificationDispatcher) SetPushProvider(provider PushProvider) {
	d.pushProvider = provider
}

func (d *NotificationDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *NotificationDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case notif := <-d.jobQueue:
			d.processJob(notif)
		case <-d.stopChan:
			return
		}
	}
}

func (d *NotificationDispatcher) processJob(notif *notification.Notification) {
	if d.pushProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	chats, err := d.service.chatIDs(ctx, notif.UserID)
	if err != nil {
		log.Printf("processJob: failed to load chats for %s: %v", notif.UserID, err)
		return
	}
	if len(chats) == 0 {
		return
	}

	if err := d.pushProvider.SendPush(ctx, chats, notif.Title, notif.Message, notif.Data); err != nil {
		log.Printf("processJob: push failed for user %s: %v", notif.UserID, err)
	}
}

// Dispatch queues one notification for push delivery.
func (d *NotificationDispatcher) Dispatch(notif *notification.Notification) {
	select {
	case d.jobQueue <- notif:
	case <-time.After(5 * time.Second):
		log.Printf("Dispatch: queue full, dropping push for notification %s", notif.ID)
	}
}

// Stop shuts the worker pool down gracefully.
func (d *NotificationDispatcher) Stop() {
	close(d.stopChan)
	d.wg.Wait()
}

// MockPushProvider logs instead of sending. Used by tests and local runs
// without a bot token.
type MockPushProvider struct{}

func (m *MockPushProvider) SendPush(ctx context.Context, chatIDs []string, title, body string, data map[string]any) error {
	log.Printf("MOCK PUSH: %d chats: %s - %s", len(chatIDs), title, body)
	return nil
}
