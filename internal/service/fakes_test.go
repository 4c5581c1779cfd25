package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/campaign-mailer/internal/domain"
	"github.com/kursadbilgin/campaign-mailer/internal/provider"
	"github.com/kursadbilgin/campaign-mailer/internal/queue"
	"github.com/kursadbilgin/campaign-mailer/internal/repository"
)

// memorySentEmailRepo keeps ledger rows in memory and applies the same monotonic
// guard as the SQL repository.
type memorySentEmailRepo struct {
	mu       sync.Mutex
	rows     map[string]*domain.SentEmail
	order    []string
	createFn func(ctx context.Context, e *domain.SentEmail) error
	listFn   func(ctx context.Context, params repository.SentEmailListParams) ([]domain.SentEmail, int64, error)
}

func newMemorySentEmailRepo() *memorySentEmailRepo {
	return &memorySentEmailRepo{rows: make(map[string]*domain.SentEmail)}
}

func (r *memorySentEmailRepo) Create(ctx context.Context, e *domain.SentEmail) error {
	if r.createFn != nil {
		if err := r.createFn(ctx, e); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rows[e.ID]; exists {
		return domain.ErrConflict
	}
	row := *e
	r.rows[e.ID] = &row
	r.order = append(r.order, e.ID)
	return nil
}

func (r *memorySentEmailRepo) GetByID(ctx context.Context, id string) (*domain.SentEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *row
	return &out, nil
}

func (r *memorySentEmailRepo) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.SentEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		row := r.rows[id]
		if row.ProviderMessageID != nil && *row.ProviderMessageID == providerMessageID {
			out := *row
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memorySentEmailRepo) MarkSent(ctx context.Context, id string, providerMessageID string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	row.Status = domain.SentEmailStatusSent
	row.ProviderMessageID = &providerMessageID
	row.SentAt = &sentAt
	return nil
}

func (r *memorySentEmailRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	row.Status = domain.SentEmailStatusFailed
	row.ErrorMessage = &errorMessage
	return nil
}

func (r *memorySentEmailRepo) ApplyTransition(ctx context.Context, id string, update repository.TransitionUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !row.Status.CanTransitionTo(update.Status) {
		return false, nil
	}
	row.Status = update.Status
	if update.ErrorMessage != nil {
		row.ErrorMessage = update.ErrorMessage
	}
	if update.DeliveredAt != nil && row.DeliveredAt == nil {
		row.DeliveredAt = update.DeliveredAt
	}
	return true, nil
}

func (r *memorySentEmailRepo) List(ctx context.Context, params repository.SentEmailListParams) ([]domain.SentEmail, int64, error) {
	if r.listFn != nil {
		return r.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (r *memorySentEmailRepo) CountByStatus(ctx context.Context, campaignID string) ([]repository.StatusCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[domain.SentEmailStatus]int64)
	for _, row := range r.rows {
		if row.CampaignID != nil && *row.CampaignID == campaignID {
			counts[row.Status]++
		}
	}
	out := make([]repository.StatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, repository.StatusCount{Status: status, Count: n})
	}
	return out, nil
}

func (r *memorySentEmailRepo) all() []domain.SentEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SentEmail, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.rows[id])
	}
	return out
}

func (r *memorySentEmailRepo) put(e domain.SentEmail) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := e
	r.rows[e.ID] = &row
	r.order = append(r.order, e.ID)
}

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
	finished  []domain.CampaignStatus
	cleared   []string

	getDueScheduledFn func(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)
	clearScheduleFn   func(ctx context.Context, id string) error
}

func newFakeCampaignRepo(campaigns ...domain.Campaign) *fakeCampaignRepo {
	r := &fakeCampaignRepo{campaigns: make(map[string]*domain.Campaign)}
	for i := range campaigns {
		c := campaigns[i]
		r.campaigns[c.ID] = &c
	}
	return r
}

func (r *fakeCampaignRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (r *fakeCampaignRepo) BeginSending(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !c.Status.IsSendable() {
		return domain.ErrConflict
	}
	c.Status = domain.CampaignStatusSending
	return nil
}

func (r *fakeCampaignRepo) Finish(ctx context.Context, id string, status domain.CampaignStatus, sentAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != domain.CampaignStatusSending {
		return domain.ErrConflict
	}
	c.Status = status
	c.SentAt = sentAt
	r.finished = append(r.finished, status)
	return nil
}

func (r *fakeCampaignRepo) RollbackToDraft(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Status = domain.CampaignStatusDraft
	return nil
}

func (r *fakeCampaignRepo) GetDueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	if r.getDueScheduledFn != nil {
		return r.getDueScheduledFn(ctx, now, limit)
	}
	return nil, nil
}

func (r *fakeCampaignRepo) ClearSchedule(ctx context.Context, id string) error {
	if r.clearScheduleFn != nil {
		if err := r.clearScheduleFn(ctx, id); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, id)
	return nil
}

func (r *fakeCampaignRepo) status(id string) domain.CampaignStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.campaigns[id].Status
}

type fakeContactRepo struct {
	listFn func(ctx context.Context, userID string) ([]domain.Contact, error)
}

func (r *fakeContactRepo) ListSubscribedByUser(ctx context.Context, userID string) ([]domain.Contact, error) {
	if r.listFn != nil {
		return r.listFn(ctx, userID)
	}
	return nil, nil
}

type fakeNotificationRepo struct {
	mu      sync.Mutex
	created []domain.Notification

	createFn    func(ctx context.Context, n *domain.Notification) error
	listFn      func(ctx context.Context, params repository.NotificationListParams) ([]domain.Notification, error)
	markReadFn  func(ctx context.Context, userID string, id string) error
	countUnread func(ctx context.Context, userID string) (int64, error)
}

func (r *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if r.createFn != nil {
		if err := r.createFn(ctx, n); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, *n)
	return nil
}

func (r *fakeNotificationRepo) List(ctx context.Context, params repository.NotificationListParams) ([]domain.Notification, error) {
	if r.listFn != nil {
		return r.listFn(ctx, params)
	}
	return nil, nil
}

func (r *fakeNotificationRepo) MarkRead(ctx context.Context, userID string, id string) error {
	if r.markReadFn != nil {
		return r.markReadFn(ctx, userID, id)
	}
	return nil
}

func (r *fakeNotificationRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	if r.countUnread != nil {
		return r.countUnread(ctx, userID)
	}
	return 0, nil
}

type fakeDeliveryEventRepo struct {
	mu     sync.Mutex
	events []domain.DeliveryEvent

	createFn func(ctx context.Context, e *domain.DeliveryEvent) error
}

func (r *fakeDeliveryEventRepo) Create(ctx context.Context, e *domain.DeliveryEvent) error {
	if r.createFn != nil {
		if err := r.createFn(ctx, e); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *fakeDeliveryEventRepo) ListBySentEmailID(ctx context.Context, sentEmailID string) ([]domain.DeliveryEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.DeliveryEvent, 0)
	for _, e := range r.events {
		if e.SentEmailID != nil && *e.SentEmailID == sentEmailID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeProvider struct {
	mu     sync.Mutex
	sent   []domain.OutboundMessage
	sendFn func(ctx context.Context, msg domain.OutboundMessage) (*provider.ProviderResponse, error)
}

func (p *fakeProvider) Send(ctx context.Context, msg domain.OutboundMessage) (*provider.ProviderResponse, error) {
	p.mu.Lock()
	p.sent = append(p.sent, msg)
	p.mu.Unlock()
	if p.sendFn != nil {
		return p.sendFn(ctx, msg)
	}
	return &provider.ProviderResponse{StatusCode: 200, MessageID: "re_" + msg.To}, nil
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type fakeGovernor struct {
	mu     sync.Mutex
	waits  int
	waitFn func(ctx context.Context) error
}

func (g *fakeGovernor) Wait(ctx context.Context) error {
	g.mu.Lock()
	g.waits++
	g.mu.Unlock()
	if g.waitFn != nil {
		return g.waitFn(ctx)
	}
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []queue.CampaignDispatchMessage
	publishFn func(ctx context.Context, queueName string, msg queue.CampaignDispatchMessage) error
}

func (p *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.CampaignDispatchMessage) error {
	if p.publishFn != nil {
		if err := p.publishFn(ctx, queueName, msg); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (c *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if c.consumeFn != nil {
		return c.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (c *fakeConsumer) Close() error { return nil }

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []domain.Notification
	notifyFn      func(ctx context.Context, n *domain.Notification) error
}

func (n *fakeNotifier) Notify(ctx context.Context, notification *domain.Notification) error {
	if n.notifyFn != nil {
		if err := n.notifyFn(ctx, notification); err != nil {
			return err
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, *notification)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notifications)
}

func strPtr(s string) *string { return &s }
