package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/pkg/mailer"
)

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (n *recordingNotifier) Notify(ctx context.Context, messages ...mailer.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, messages...)
}

func (n *recordingNotifier) subjects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.messages))
	for _, m := range n.messages {
		out = append(out, m.Subject)
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = nil
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// stubRecipients maps permission codenames to holder addresses.
type stubRecipients map[string][]string

func (r stubRecipients) HolderEmails(ctx context.Context, codename string) ([]string, error) {
	return r[codename], nil
}

type recordingCache struct {
	mu  sync.Mutex
	ids []int64
}

func (c *recordingCache) Invalidate(ctx context.Context, personIDs ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, personIDs...)
}

func (n *recordingNotifier) bySubject(prefix string) []mailer.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []mailer.Message
	for _, m := range n.messages {
		if strings.HasPrefix(m.Subject, prefix) {
			out = append(out, m)
		}
	}
	return out
}

type engineFixture struct {
	store      *memStore
	engine     *EventEngine
	events     *EventService
	enrollment *EnrollmentService
	occurrence *OccurrenceService
	notifier   *recordingNotifier
	recipients stubRecipients
	cache      *recordingCache
	now        time.Time
}

// newEngineFixture wires the engine over an empty store with the clock at
// now. Times are UTC.
func newEngineFixture(now time.Time, cfg EngineConfig) *engineFixture {
	store := newMemStore()
	notifier := &recordingNotifier{}
	cache := &recordingCache{}
	recipients := stubRecipients{}
	engine := NewEventEngine(store.repos(), passthroughTx{}, notifier, recipients, nil, zap.NewNop(), cfg).
		WithClock(fixedClock(now)).
		WithLedgerCache(cache)
	return &engineFixture{
		store:      store,
		engine:     engine,
		events:     NewEventService(engine),
		enrollment: NewEnrollmentService(engine),
		occurrence: NewOccurrenceService(engine),
		notifier:   notifier,
		recipients: recipients,
		cache:      cache,
		now:        now,
	}
}

// setNow moves the fixture's clock.
func (f *engineFixture) setNow(now time.Time) {
	f.now = now
	f.engine.WithClock(fixedClock(now))
}

// admin holds every permission.
func admin() *models.Principal {
	person := &models.Person{ID: 1}
	return &models.Principal{User: &models.User{PersonID: 1, IsSuperuser: true}, Person: person, ActivePerson: person}
}

// member acts as the given person without any permission.
func member(person models.Person) *models.Principal {
	return &models.Principal{User: &models.User{PersonID: person.ID}, Person: &person, ActivePerson: &person}
}

func hhmm(hour, minute int) models.ClockTime {
	return models.ClockTime{Hour: hour, Minute: minute}
}

func swimmingTraining(start, end string, weekdays ...time.Weekday) models.EventRequest {
	req := models.EventRequest{
		Name:                    "Plavání",
		DateStart:               models.NewDate(day(start)),
		DateEnd:                 models.NewDate(day(end)),
		ParticipantsEnrollState: models.EnrollmentApproved,
		Category:                models.CategorySwimming,
	}
	for _, w := range weekdays {
		req.Days = append(req.Days, models.TrainingDayRequest{Weekday: int(w), TimeStart: hhmm(17, 0), TimeEnd: hhmm(18, 0)})
	}
	return req
}
