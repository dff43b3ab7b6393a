package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/repository"
)

// memStore is an in-memory database behind the event engine. Every entity
// gets its own view type because the repositories share method names.
type memStore struct {
	mu sync.Mutex

	nextID int64

	events         map[int64]models.Event
	eventPositions map[int64]models.EventPositionAssignment
	coaches        map[int64]models.CoachPositionAssignment
	occurrences    map[int64]models.Occurrence
	participants   map[int64]models.ParticipantAttendance
	coachRows      map[int64]models.CoachAttendance
	enrollments    map[int64]models.Enrollment
	transactions   map[int64]models.Transaction
	persons        map[int64]models.Person
	managers       map[int64][]int64
	rates          map[int64]map[models.EventCategory]int
	groups         map[int64]models.Group
	members        map[int64][]int64
	qualifications map[int64][]int64
	positions      map[int64]models.Position
	fioRows        map[int64]models.FioTransaction
	fioSettings    *models.FioSettings
}

func newMemStore() *memStore {
	return &memStore{
		nextID:         100,
		events:         map[int64]models.Event{},
		eventPositions: map[int64]models.EventPositionAssignment{},
		coaches:        map[int64]models.CoachPositionAssignment{},
		occurrences:    map[int64]models.Occurrence{},
		participants:   map[int64]models.ParticipantAttendance{},
		coachRows:      map[int64]models.CoachAttendance{},
		enrollments:    map[int64]models.Enrollment{},
		transactions:   map[int64]models.Transaction{},
		persons:        map[int64]models.Person{},
		managers:       map[int64][]int64{},
		rates:          map[int64]map[models.EventCategory]int{},
		groups:         map[int64]models.Group{},
		members:        map[int64][]int64{},
		qualifications: map[int64][]int64{},
		positions:      map[int64]models.Position{},
		fioRows:        map[int64]models.FioTransaction{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) repos() EngineRepositories {
	return EngineRepositories{
		Events:      eventView{m},
		Occurrences: occurrenceView{m},
		Attendance:  attendanceView{m},
		Enrollments: enrollmentView{m},
		Ledger:      ledgerView{m},
		Persons:     personView{m},
		Groups:      groupView{m},
		Features:    qualificationView{m},
		Positions:   positionView{m},
	}
}

// seeding helpers

func (m *memStore) addPerson(p models.Person) models.Person {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.id()
	}
	if p.PersonType == "" {
		p.PersonType = models.PersonTypeAdult
	}
	if p.DateOfBirth.IsZero() {
		p.DateOfBirth = day("1990-01-01")
	}
	m.persons[p.ID] = p
	return p
}

func (m *memStore) addPosition(p models.Position) models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.id()
	}
	m.positions[p.ID] = p
	return p
}

func (m *memStore) setRate(personID int64, category models.EventCategory, rate int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rates[personID] == nil {
		m.rates[personID] = map[models.EventCategory]int{}
	}
	m.rates[personID][category] = rate
}

func (m *memStore) addTransaction(t models.Transaction) models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = m.id()
	}
	m.transactions[t.ID] = t
	return t
}

// inspection helpers

func (m *memStore) occurrencesOf(eventID int64) []models.Occurrence {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.occurrenceList(eventID)
}

func (m *memStore) occurrenceList(eventID int64) []models.Occurrence {
	out := []models.Occurrence{}
	for _, o := range m.occurrences {
		if o.EventID == eventID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memStore) participantRows(occurrenceID int64) []models.ParticipantAttendance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participantList(occurrenceID)
}

func (m *memStore) participantList(occurrenceID int64) []models.ParticipantAttendance {
	out := []models.ParticipantAttendance{}
	for _, r := range m.participants {
		if r.OccurrenceID == occurrenceID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) coachRowList(occurrenceID int64) []models.CoachAttendance {
	out := []models.CoachAttendance{}
	for _, r := range m.coachRows {
		if r.OccurrenceID == occurrenceID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) coachRowsOf(occurrenceID int64) []models.CoachAttendance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coachRowList(occurrenceID)
}

func (m *memStore) transactionsOf(personID int64) []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Transaction{}
	for _, t := range m.transactions {
		if t.PersonID == personID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// participantDates lists the dates on which person has a participant row in
// state.
func (m *memStore) participantDates(eventID, personID int64, state models.AttendanceState) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, o := range m.occurrenceList(eventID) {
		for _, r := range m.participantList(o.ID) {
			if r.PersonID == personID && r.State == state {
				out = append(out, o.Date.Format(models.DateLayout))
			}
		}
	}
	return out
}

// eventView

type eventView struct{ m *memStore }

func (v eventView) load(e models.Event) *models.Event {
	e.Days = append([]models.TrainingDay{}, e.Days...)
	e.Positions = []models.EventPositionAssignment{}
	for _, p := range v.m.eventPositions {
		if p.EventID == e.ID {
			e.Positions = append(e.Positions, p)
		}
	}
	sort.Slice(e.Positions, func(i, j int) bool { return e.Positions[i].ID < e.Positions[j].ID })
	return &e
}

func (v eventView) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	out := []models.Event{}
	for _, e := range v.m.events {
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		out = append(out, *v.load(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (v eventView) FindByID(ctx context.Context, id int64) (*models.Event, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	e, ok := v.m.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return v.load(e), nil
}

func (v eventView) FindForUpdate(ctx context.Context, id int64) (*models.Event, error) {
	return v.FindByID(ctx, id)
}

func (v eventView) Create(ctx context.Context, e *models.Event) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	e.ID = v.m.id()
	stored := *e
	stored.Positions = nil
	v.m.events[e.ID] = stored
	return nil
}

func (v eventView) Update(ctx context.Context, e *models.Event) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, ok := v.m.events[e.ID]; !ok {
		return sql.ErrNoRows
	}
	stored := *e
	stored.Positions = nil
	v.m.events[e.ID] = stored
	return nil
}

func (v eventView) Delete(ctx context.Context, id int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, ok := v.m.events[id]; !ok {
		return sql.ErrNoRows
	}
	delete(v.m.events, id)
	for oid, o := range v.m.occurrences {
		if o.EventID == id {
			delete(v.m.occurrences, oid)
			for rid, r := range v.m.participants {
				if r.OccurrenceID == oid {
					delete(v.m.participants, rid)
				}
			}
			for rid, r := range v.m.coachRows {
				if r.OccurrenceID == oid {
					delete(v.m.coachRows, rid)
				}
			}
		}
	}
	for eid, en := range v.m.enrollments {
		if en.EventID == id {
			delete(v.m.enrollments, eid)
		}
	}
	for cid, c := range v.m.coaches {
		if c.EventID == id {
			delete(v.m.coaches, cid)
		}
	}
	for tid, t := range v.m.transactions {
		if t.EventID != nil && *t.EventID == id {
			t.EventID = nil
			v.m.transactions[tid] = t
		}
	}
	return nil
}

func (v eventView) FindPosition(ctx context.Context, eventID, positionID int64) (*models.EventPositionAssignment, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, p := range v.m.eventPositions {
		if p.EventID == eventID && p.PositionID == positionID {
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (v eventView) CreatePosition(ctx context.Context, p *models.EventPositionAssignment) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, existing := range v.m.eventPositions {
		if existing.EventID == p.EventID && existing.PositionID == p.PositionID {
			return repository.ErrDuplicate
		}
	}
	p.ID = v.m.id()
	v.m.eventPositions[p.ID] = *p
	return nil
}

func (v eventView) UpdatePositionCount(ctx context.Context, id int64, count int) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	p, ok := v.m.eventPositions[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Count = count
	v.m.eventPositions[id] = p
	return nil
}

func (v eventView) DeletePosition(ctx context.Context, id int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, ok := v.m.eventPositions[id]; !ok {
		return sql.ErrNoRows
	}
	delete(v.m.eventPositions, id)
	return nil
}

func (v eventView) Coaches(ctx context.Context, eventID int64) ([]models.CoachPositionAssignment, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	out := []models.CoachPositionAssignment{}
	for _, c := range v.m.coaches {
		if c.EventID == eventID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v eventView) FindCoach(ctx context.Context, id int64) (*models.CoachPositionAssignment, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	c, ok := v.m.coaches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (v eventView) CountCoaches(ctx context.Context, eventID, positionID int64) (int, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	n := 0
	for _, c := range v.m.coaches {
		if c.EventID == eventID && c.PositionID == positionID {
			n++
		}
	}
	return n, nil
}

func (v eventView) CreateCoach(ctx context.Context, c *models.CoachPositionAssignment) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, existing := range v.m.coaches {
		if existing.EventID == c.EventID && existing.PersonID == c.PersonID {
			return repository.ErrDuplicate
		}
	}
	c.ID = v.m.id()
	v.m.coaches[c.ID] = *c
	return nil
}

func (v eventView) UpdateCoachPosition(ctx context.Context, id, positionID int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	c, ok := v.m.coaches[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.PositionID = positionID
	v.m.coaches[id] = c
	return nil
}

func (v eventView) DeleteCoach(ctx context.Context, id int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, ok := v.m.coaches[id]; !ok {
		return sql.ErrNoRows
	}
	delete(v.m.coaches, id)
	return nil
}

func (v eventView) SetMainCoach(ctx context.Context, eventID int64, assignmentID *int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	e, ok := v.m.events[eventID]
	if !ok {
		return sql.ErrNoRows
	}
	e.MainCoachAssignmentID = assignmentID
	v.m.events[eventID] = e
	return nil
}

// occurrenceView

type occurrenceView struct{ m *memStore }

func (v occurrenceView) FindByID(ctx context.Context, id int64) (*models.Occurrence, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	o, ok := v.m.occurrences[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &o, nil
}

func (v occurrenceView) FindForUpdate(ctx context.Context, id int64) (*models.Occurrence, error) {
	return v.FindByID(ctx, id)
}

func (v occurrenceView) ListByEvent(ctx context.Context, eventID int64) ([]models.Occurrence, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return v.m.occurrenceList(eventID), nil
}

func (v occurrenceView) detail(o models.Occurrence) models.OccurrenceDetail {
	e := v.m.events[o.EventID]
	return models.OccurrenceDetail{Occurrence: o, EventName: e.Name, EventKind: e.Kind, EventCategory: e.Category}
}

func (v occurrenceView) ListUnclosed(ctx context.Context, kind models.EventKind, before time.Time) ([]models.OccurrenceDetail, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	out := []models.OccurrenceDetail{}
	for _, o := range v.m.occurrences {
		if o.State != models.OccurrenceOpen || v.m.events[o.EventID].Kind != kind {
			continue
		}
		end := o.Date.AddDate(0, 0, 1)
		if o.DatetimeEnd != nil {
			end = *o.DatetimeEnd
		}
		if end.After(before) {
			continue
		}
		out = append(out, v.detail(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v occurrenceView) ListForPerson(ctx context.Context, personID int64, from time.Time) ([]models.OccurrenceDetail, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	out := []models.OccurrenceDetail{}
	for _, o := range v.m.occurrences {
		if o.Date.Before(from) {
			continue
		}
		attends := false
		for _, r := range v.m.participants {
			attends = attends || (r.OccurrenceID == o.ID && r.PersonID == personID)
		}
		for _, r := range v.m.coachRows {
			attends = attends || (r.OccurrenceID == o.ID && r.PersonID == personID)
		}
		if attends {
			out = append(out, v.detail(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (v occurrenceView) Create(ctx context.Context, o *models.Occurrence) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	o.ID = v.m.id()
	v.m.occurrences[o.ID] = *o
	return nil
}

func (v occurrenceView) Update(ctx context.Context, o *models.Occurrence) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	existing, ok := v.m.occurrences[o.ID]
	if !ok {
		return sql.ErrNoRows
	}
	existing.Hours = o.Hours
	existing.DatetimeStart = o.DatetimeStart
	existing.DatetimeEnd = o.DatetimeEnd
	v.m.occurrences[o.ID] = existing
	return nil
}

func (v occurrenceView) SetState(ctx context.Context, id int64, state models.OccurrenceState) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	o, ok := v.m.occurrences[id]
	if !ok {
		return sql.ErrNoRows
	}
	o.State = state
	v.m.occurrences[id] = o
	return nil
}

func (v occurrenceView) Delete(ctx context.Context, id int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, ok := v.m.occurrences[id]; !ok {
		return sql.ErrNoRows
	}
	delete(v.m.occurrences, id)
	for rid, r := range v.m.participants {
		if r.OccurrenceID == id {
			delete(v.m.participants, rid)
		}
	}
	for rid, r := range v.m.coachRows {
		if r.OccurrenceID == id {
			delete(v.m.coachRows, rid)
		}
	}
	return nil
}

// attendanceView

type attendanceView struct{ m *memStore }

func (v attendanceView) Participants(ctx context.Context, occurrenceID int64) ([]models.ParticipantAttendance, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return v.m.participantList(occurrenceID), nil
}

func (v attendanceView) Coaches(ctx context.Context, occurrenceID int64) ([]models.CoachAttendance, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return v.m.coachRowList(occurrenceID), nil
}

func (v attendanceView) FindParticipant(ctx context.Context, occurrenceID, personID int64) (*models.ParticipantAttendance, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, r := range v.m.participants {
		if r.OccurrenceID == occurrenceID && r.PersonID == personID {
			return &r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (v attendanceView) FindCoach(ctx context.Context, occurrenceID, personID int64) (*models.CoachAttendance, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, r := range v.m.coachRows {
		if r.OccurrenceID == occurrenceID && r.PersonID == personID {
			return &r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (v attendanceView) InsertParticipant(ctx context.Context, row *models.ParticipantAttendance) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, r := range v.m.participants {
		if r.OccurrenceID == row.OccurrenceID && r.PersonID == row.PersonID {
			return repository.ErrDuplicate
		}
	}
	row.ID = v.m.id()
	v.m.participants[row.ID] = *row
	return nil
}

func (v attendanceView) InsertCoach(ctx context.Context, row *models.CoachAttendance) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, r := range v.m.coachRows {
		if r.OccurrenceID == row.OccurrenceID && r.PersonID == row.PersonID {
			return repository.ErrDuplicate
		}
	}
	row.ID = v.m.id()
	v.m.coachRows[row.ID] = *row
	return nil
}

func (v attendanceView) DeleteParticipant(ctx context.Context, id int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, ok := v.m.participants[id]; !ok {
		return sql.ErrNoRows
	}
	delete(v.m.participants, id)
	return nil
}

func (v attendanceView) DeleteCoach(ctx context.Context, id int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, ok := v.m.coachRows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(v.m.coachRows, id)
	return nil
}

func (v attendanceView) SetParticipantState(ctx context.Context, id int64, state models.AttendanceState) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	r, ok := v.m.participants[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.State = state
	v.m.participants[id] = r
	return nil
}

func (v attendanceView) SetCoachState(ctx context.Context, id int64, state models.AttendanceState) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	r, ok := v.m.coachRows[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.State = state
	v.m.coachRows[id] = r
	return nil
}

func (v attendanceView) MarkParticipantsUnexcused(ctx context.Context, occurrenceID int64, personIDs []int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for id, r := range v.m.participants {
		if r.OccurrenceID == occurrenceID && r.State == models.AttendancePresent && containsID(personIDs, r.PersonID) {
			r.State = models.AttendanceUnexcused
			v.m.participants[id] = r
		}
	}
	return nil
}

func (v attendanceView) MarkCoachesUnexcused(ctx context.Context, occurrenceID int64, personIDs []int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for id, r := range v.m.coachRows {
		if r.OccurrenceID == occurrenceID && r.State == models.AttendancePresent && containsID(personIDs, r.PersonID) {
			r.State = models.AttendanceUnexcused
			v.m.coachRows[id] = r
		}
	}
	return nil
}

func (v attendanceView) ResetUnexcused(ctx context.Context, occurrenceID int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for id, r := range v.m.participants {
		if r.OccurrenceID == occurrenceID && r.State == models.AttendanceUnexcused {
			r.State = models.AttendancePresent
			v.m.participants[id] = r
		}
	}
	for id, r := range v.m.coachRows {
		if r.OccurrenceID == occurrenceID && r.State == models.AttendanceUnexcused {
			r.State = models.AttendancePresent
			v.m.coachRows[id] = r
		}
	}
	return nil
}

func (v attendanceView) UpdateCoachPosition(ctx context.Context, id, positionID int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	r, ok := v.m.coachRows[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.PositionID = positionID
	v.m.coachRows[id] = r
	return nil
}

func (v attendanceView) SetCoachTransaction(ctx context.Context, id int64, transactionID *int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	r, ok := v.m.coachRows[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.TransactionID = transactionID
	v.m.coachRows[id] = r
	return nil
}

func (v attendanceView) ParticipantHistory(ctx context.Context, eventID, personID int64) ([]models.PersonAttendance, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	occurrences := v.m.occurrenceList(eventID)
	out := []models.PersonAttendance{}
	for i := len(occurrences) - 1; i >= 0; i-- {
		o := occurrences[i]
		if o.State == models.OccurrenceOpen {
			continue
		}
		for _, r := range v.m.participantList(o.ID) {
			if r.PersonID == personID {
				out = append(out, models.PersonAttendance{OccurrenceID: o.ID, Date: o.Date, State: r.State})
			}
		}
	}
	return out, nil
}

// enrollmentView

type enrollmentView struct{ m *memStore }

func (v enrollmentView) list(eventID int64, state models.EnrollmentState) []models.Enrollment {
	out := []models.Enrollment{}
	for _, en := range v.m.enrollments {
		if en.EventID == eventID && (state == "" || en.State == state) {
			out = append(out, en)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v enrollmentView) FindByID(ctx context.Context, id int64) (*models.Enrollment, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	en, ok := v.m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	en.Weekdays = append(models.WeekdaySet{}, en.Weekdays...)
	return &en, nil
}

func (v enrollmentView) FindByEventPerson(ctx context.Context, eventID, personID int64) (*models.Enrollment, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, en := range v.m.enrollments {
		if en.EventID == eventID && en.PersonID == personID {
			return &en, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (v enrollmentView) ListByEvent(ctx context.Context, eventID int64, state models.EnrollmentState) ([]models.EnrollmentDetail, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	out := []models.EnrollmentDetail{}
	for _, en := range v.list(eventID, state) {
		p := v.m.persons[en.PersonID]
		out = append(out, models.EnrollmentDetail{Enrollment: en, FirstName: p.FirstName, LastName: p.LastName, Email: p.Email})
	}
	return out, nil
}

func (v enrollmentView) ListByState(ctx context.Context, eventID int64, state models.EnrollmentState) ([]models.Enrollment, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return v.list(eventID, state), nil
}

func (v enrollmentView) ListByPerson(ctx context.Context, personID int64) ([]models.Enrollment, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	out := []models.Enrollment{}
	for _, en := range v.m.enrollments {
		if en.PersonID == personID {
			out = append(out, en)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v enrollmentView) CountApproved(ctx context.Context, eventID, excludeID int64) (int, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	n := 0
	for _, en := range v.list(eventID, models.EnrollmentApproved) {
		if en.ID != excludeID {
			n++
		}
	}
	return n, nil
}

func (v enrollmentView) CountApprovedByWeekday(ctx context.Context, eventID, excludeID int64) (map[time.Weekday]int, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	counts := map[time.Weekday]int{}
	for _, en := range v.list(eventID, models.EnrollmentApproved) {
		if en.ID == excludeID {
			continue
		}
		for _, d := range en.Weekdays {
			counts[d]++
		}
	}
	return counts, nil
}

func (v enrollmentView) Create(ctx context.Context, en *models.Enrollment) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, existing := range v.m.enrollments {
		if existing.EventID == en.EventID && existing.PersonID == en.PersonID {
			return repository.ErrDuplicate
		}
	}
	en.ID = v.m.id()
	v.m.enrollments[en.ID] = *en
	return nil
}

func (v enrollmentView) Update(ctx context.Context, en *models.Enrollment) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	existing, ok := v.m.enrollments[en.ID]
	if !ok {
		return sql.ErrNoRows
	}
	existing.State = en.State
	existing.AgreedParticipationFee = en.AgreedParticipationFee
	existing.Weekdays = append(models.WeekdaySet{}, en.Weekdays...)
	existing.TransactionID = en.TransactionID
	v.m.enrollments[en.ID] = existing
	return nil
}

func (v enrollmentView) Delete(ctx context.Context, id int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, ok := v.m.enrollments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(v.m.enrollments, id)
	return nil
}

// ledgerView

type ledgerView struct{ m *memStore }

func (v ledgerView) FindByID(ctx context.Context, id int64) (*models.Transaction, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	t, ok := v.m.transactions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (v ledgerView) Create(ctx context.Context, t *models.Transaction) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	t.ID = v.m.id()
	v.m.transactions[t.ID] = *t
	return nil
}

func (v ledgerView) Update(ctx context.Context, t *models.Transaction) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, ok := v.m.transactions[t.ID]; !ok {
		return sql.ErrNoRows
	}
	v.m.transactions[t.ID] = *t
	return nil
}

func (v ledgerView) Delete(ctx context.Context, id int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, ok := v.m.transactions[id]; !ok {
		return sql.ErrNoRows
	}
	delete(v.m.transactions, id)
	return nil
}

func (v ledgerView) ListByEnrollment(ctx context.Context, enrollmentID int64) ([]models.Transaction, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	out := []models.Transaction{}
	for _, t := range v.m.transactions {
		if t.EnrollmentID != nil && *t.EnrollmentID == enrollmentID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v ledgerView) ListByEvent(ctx context.Context, eventID int64) ([]models.Transaction, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	out := []models.Transaction{}
	for _, t := range v.m.transactions {
		if t.EventID != nil && *t.EventID == eventID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v ledgerView) LinkFio(ctx context.Context, id, fioTransactionID int64) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	t, ok := v.m.transactions[id]
	if !ok || t.FioTransactionID != nil {
		return sql.ErrNoRows
	}
	t.FioTransactionID = &fioTransactionID
	v.m.transactions[id] = t
	return nil
}

// personView

type personView struct{ m *memStore }

func (v personView) FindByID(ctx context.Context, id int64) (*models.Person, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	p, ok := v.m.persons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (v personView) FindByIDs(ctx context.Context, ids []int64) ([]models.Person, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	out := []models.Person{}
	for _, id := range uniqueIDs(ids) {
		if p, ok := v.m.persons[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (v personView) ManagerIDs(ctx context.Context, id int64) ([]int64, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return append([]int64{}, v.m.managers[id]...), nil
}

func (v personView) HourlyRate(ctx context.Context, personID int64, category models.EventCategory) (int, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	rate, ok := v.m.rates[personID][category]
	if !ok {
		return 0, sql.ErrNoRows
	}
	return rate, nil
}

func (v personView) ListWithHourlyRate(ctx context.Context, category models.EventCategory) ([]models.Person, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	out := []models.Person{}
	for id, rates := range v.m.rates {
		if _, ok := rates[category]; ok {
			out = append(out, v.m.persons[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// groupView

type groupView struct{ m *memStore }

func (v groupView) FindByID(ctx context.Context, id int64) (*models.Group, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	g, ok := v.m.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &g, nil
}

func (v groupView) IsMember(ctx context.Context, groupID, personID int64) (bool, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return containsID(v.m.members[groupID], personID), nil
}

type qualificationView struct{ m *memStore }

func (v qualificationView) ValidFeatureIDs(ctx context.Context, personID int64, day time.Time) ([]int64, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return append([]int64{}, v.m.qualifications[personID]...), nil
}

type positionView struct{ m *memStore }

func (v positionView) FindByID(ctx context.Context, id int64) (*models.Position, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	p, ok := v.m.positions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

// fioView backs the reconciler.
type fioView struct{ m *memStore }

func (v fioView) FindByFioID(ctx context.Context, fioID int64) (*models.FioTransaction, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, row := range v.m.fioRows {
		if row.FioID == fioID {
			return &row, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (v fioView) Create(ctx context.Context, txn *models.FioTransaction) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	for _, row := range v.m.fioRows {
		if row.FioID == txn.FioID {
			return repository.ErrDuplicate
		}
	}
	txn.ID = v.m.id()
	v.m.fioRows[txn.ID] = *txn
	return nil
}

func (v fioView) Settings(ctx context.Context) (*models.FioSettings, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if v.m.fioSettings == nil {
		return &models.FioSettings{}, nil
	}
	out := *v.m.fioSettings
	return &out, nil
}

func (v fioView) AdvanceFetchTime(ctx context.Context, at time.Time) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	v.m.fioSettings = &models.FioSettings{LastFioFetchTime: &at}
	return nil
}
