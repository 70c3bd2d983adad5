package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"botfleet/internal/entities"
	"botfleet/internal/interfaces"
	"botfleet/internal/repository"

	"github.com/rs/zerolog"
)

// Fakes

type fakeProcess struct {
	mu       sync.Mutex
	ref      string
	probeErr error
	stopped  bool
	stats    interfaces.RuntimeStats
}

func (p *fakeProcess) Ref() string { return p.ref }

func (p *fakeProcess) Probe(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probeErr
}

func (p *fakeProcess) Stats() interfaces.RuntimeStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.stats
	p.stats = interfaces.RuntimeStats{}
	return out
}

func (p *fakeProcess) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	return nil
}

func (p *fakeProcess) setProbeErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probeErr = err
}

type fakeRuntime struct {
	mu       sync.Mutex
	failNext int // fail this many upcoming Start calls
	started  []*fakeProcess
}

func (r *fakeRuntime) Start(ctx context.Context, token string, config []byte) (interfaces.Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext > 0 {
		r.failNext--
		return nil, errors.New("token rejected")
	}
	p := &fakeProcess{ref: fmt.Sprintf("proc-%d", len(r.started)+1)}
	r.started = append(r.started, p)
	return p, nil
}

func (r *fakeRuntime) failStarts(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = n
}

func (r *fakeRuntime) startCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started)
}

func (r *fakeRuntime) lastProcess() *fakeProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.started) == 0 {
		return nil
	}
	return r.started[len(r.started)-1]
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *fakeNotifier) Notify(ownerTelegramID int64, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, message)
}

func (n *fakeNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	copy(out, n.sent)
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Test stack

type stack struct {
	store       *repository.MemoryStore
	registry    *Registry
	supervisor  *Supervisor
	billing     *Billing
	maintenance *Maintenance
	runtime     *fakeRuntime
	notifier    *fakeNotifier
	clock       *fakeClock
}

const testSuspendGraceDays = 15

func newStack(t *testing.T) *stack {
	t.Helper()
	store := repository.NewMemoryStore()
	store.AddTemplate(&entities.BotTemplate{
		ID: 1, Name: "Shop Assistant", Category: "business",
		CreationFee: 50000, DailyFee: 1000, IsActive: true,
	})
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store.Now = clock.Now
	runtime := &fakeRuntime{}
	notifier := &fakeNotifier{}
	logger := zerolog.Nop()

	registry := NewRegistry(store, logger, testSuspendGraceDays*24*time.Hour)
	registry.now = clock.Now

	supervisor := NewSupervisor(registry, store, runtime, notifier, logger, SupervisorConfig{
		MaxBotsPerOwner: 10,
		StopTimeout:     time.Second,
	})

	billing := NewBilling(store, registry, supervisor, notifier, logger, BillingConfig{})
	billing.now = clock.Now

	maintenance := NewMaintenance(store, registry, supervisor, nil, logger, MaintenanceConfig{
		BotStoragePath: t.TempDir(),
	})
	maintenance.now = clock.Now

	return &stack{
		store:       store,
		registry:    registry,
		supervisor:  supervisor,
		billing:     billing,
		maintenance: maintenance,
		runtime:     runtime,
		notifier:    notifier,
		clock:       clock,
	}
}

func (s *stack) addOwner(t *testing.T, balance int64) *entities.Owner {
	t.Helper()
	owner := &entities.Owner{
		TelegramID: 100000 + int64(balance%97),
		Username:   "owner",
		Balance:    balance,
	}
	if err := s.store.CreateOwner(context.Background(), owner); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	return owner
}

// newRunningBot spawns a bot for the owner and advances it to running.
func (s *stack) newRunningBot(t *testing.T, ownerID int) *entities.Bot {
	t.Helper()
	bot := &entities.Bot{
		OwnerID:    ownerID,
		TemplateID: 1,
		Name:       "test bot",
		Token:      "123456789:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
	}
	created, err := s.supervisor.Create(context.Background(), bot)
	if err != nil {
		t.Fatalf("create bot: %v", err)
	}
	return created
}

func (s *stack) getBot(t *testing.T, id int) *entities.Bot {
	t.Helper()
	bot, err := s.registry.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get bot %d: %v", id, err)
	}
	return bot
}

func (s *stack) getOwner(t *testing.T, id int) *entities.Owner {
	t.Helper()
	owner, err := s.store.GetOwner(context.Background(), id)
	if err != nil {
		t.Fatalf("get owner %d: %v", id, err)
	}
	return owner
}
