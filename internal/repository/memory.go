package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"botfleet/internal/entities"
)

// MemoryStore is an in-memory Store used in tests and for local runs without
// a database. All methods are safe for concurrent use.
type MemoryStore struct {
	// Now is the clock used for relative-date queries; tests may replace it.
	Now func() time.Time

	mu          sync.Mutex
	bots        map[int]*entities.Bot
	owners      map[int]*entities.Owner
	payments    map[int]*entities.Payment
	templates   map[int]*entities.BotTemplate
	buckets     map[string]*entities.AnalyticsBucket // "botID/YYYY-MM-DD"
	transitions []*entities.StatusTransition
	nextBot     int
	nextOwner   int
	nextPayment int
	nextBucket  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Now:         time.Now,
		bots:        make(map[int]*entities.Bot),
		owners:      make(map[int]*entities.Owner),
		payments:    make(map[int]*entities.Payment),
		templates:   make(map[int]*entities.BotTemplate),
		buckets:     make(map[string]*entities.AnalyticsBucket),
		nextBot:     1,
		nextOwner:   1,
		nextPayment: 1,
		nextBucket:  1,
	}
}

func (s *MemoryStore) CreateBot(ctx context.Context, bot *entities.Bot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bot.ID = s.nextBot
	s.nextBot++
	cp := *bot
	s.bots[bot.ID] = &cp
	return nil
}

func (s *MemoryStore) GetBot(ctx context.Context, id int) (*entities.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bots[id]
	if !ok {
		return nil, entities.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) UpdateBot(ctx context.Context, bot *entities.Bot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bots[bot.ID]; !ok {
		return entities.ErrNotFound
	}
	cp := *bot
	s.bots[bot.ID] = &cp
	return nil
}

func (s *MemoryStore) BotsByStatus(ctx context.Context, statuses ...entities.BotStatus) ([]*entities.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[entities.BotStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	out := []*entities.Bot{}
	for _, b := range s.bots {
		if want[b.Status] {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) BotsByOwner(ctx context.Context, ownerID int) ([]*entities.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*entities.Bot{}
	for _, b := range s.bots {
		if b.OwnerID == ownerID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CountActiveByOwner(ctx context.Context, ownerID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, b := range s.bots {
		if b.OwnerID == ownerID && b.Active() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) AppendTransition(ctx context.Context, tr *entities.StatusTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tr
	cp.ID = len(s.transitions) + 1
	s.transitions = append(s.transitions, &cp)
	return nil
}

// Transitions returns the audit trail for a bot, oldest first.
func (s *MemoryStore) Transitions(botID int) []*entities.StatusTransition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*entities.StatusTransition{}
	for _, tr := range s.transitions {
		if tr.BotID == botID {
			cp := *tr
			out = append(out, &cp)
		}
	}
	return out
}

func (s *MemoryStore) CreateOwner(ctx context.Context, owner *entities.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner.ID = s.nextOwner
	s.nextOwner++
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = s.Now()
	}
	cp := *owner
	s.owners[owner.ID] = &cp
	return nil
}

func (s *MemoryStore) GetOwner(ctx context.Context, id int) (*entities.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.owners[id]
	if !ok {
		return nil, entities.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) UpdateOwner(ctx context.Context, owner *entities.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[owner.ID]; !ok {
		return entities.ErrNotFound
	}
	cp := *owner
	s.owners[owner.ID] = &cp
	return nil
}

func (s *MemoryStore) ListOwners(ctx context.Context) ([]*entities.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*entities.Owner{}
	for _, o := range s.owners {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreatePayment(ctx context.Context, p *entities.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextPayment
	s.nextPayment++
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, id int) (*entities.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, entities.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpdatePayment(ctx context.Context, p *entities.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; !ok {
		return entities.ErrNotFound
	}
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *MemoryStore) ListPayments(ctx context.Context, limit int) ([]*entities.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*entities.Payment{}
	for _, p := range s.payments {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DeletePaymentsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, p := range s.payments {
		if p.Status != entities.PaymentPending && p.CreatedAt.Before(cutoff) {
			delete(s.payments, id)
			deleted++
		}
	}
	return deleted, nil
}

// AddTemplate seeds a template row.
func (s *MemoryStore) AddTemplate(t *entities.BotTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = len(s.templates) + 1
	}
	cp := *t
	s.templates[t.ID] = &cp
}

func (s *MemoryStore) GetTemplate(ctx context.Context, id int) (*entities.BotTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, entities.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTemplates(ctx context.Context, activeOnly bool) ([]*entities.BotTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*entities.BotTemplate{}
	for _, t := range s.templates {
		if activeOnly && !t.IsActive {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func bucketKey(botID int, date time.Time) string {
	return fmt.Sprintf("%d/%s", botID, date.UTC().Format("2006-01-02"))
}

func (s *MemoryStore) UpsertBucket(ctx context.Context, b *entities.AnalyticsBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bucketKey(b.BotID, b.Date)
	if existing, ok := s.buckets[key]; ok {
		existing.MessagesSent += b.MessagesSent
		existing.MessagesReceived += b.MessagesReceived
		existing.NewUsers += b.NewUsers
		if b.ActiveUsers > existing.ActiveUsers {
			existing.ActiveUsers = b.ActiveUsers
		}
		existing.ErrorsCount += b.ErrorsCount
		existing.UptimePercent = b.UptimePercent
		return nil
	}
	cp := *b
	cp.ID = s.nextBucket
	s.nextBucket++
	s.buckets[key] = &cp
	return nil
}

func (s *MemoryStore) BucketsForBot(ctx context.Context, botID int, days int) ([]*entities.AnalyticsBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := s.Now().UTC().AddDate(0, 0, -days)
	out := []*entities.AnalyticsBucket{}
	for _, b := range s.buckets {
		if b.BotID == botID && !b.Date.Before(start) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) DeleteBucketsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, b := range s.buckets {
		if b.Date.Before(cutoff) {
			delete(s.buckets, key)
			deleted++
		}
	}
	return deleted, nil
}
