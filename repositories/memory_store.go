package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/event-registration/models"
)

type seatKey struct {
	eventID       string
	participantID string
}

// memoryStore keeps all state in process. Units of work stage their writes
// and publish them in one step at commit, re-checking unique constraints the
// way the database would, so a failed unit leaves nothing behind.
type memoryStore struct {
	mu sync.RWMutex

	events        map[string]*models.Event
	registrations map[string]*models.Registration
	regByKey      map[seatKey]string
	tickets       map[string]*models.Ticket
	ticketByKey   map[seatKey]string
	teams         map[string]*models.Team
	teamByCode    map[string]string
	membership    map[seatKey]string // non-cancelled teams only

	locks *keyedLocks
}

// NewMemoryStore returns an in-process Store. It backs tests and local runs
// without DATABASE_URL.
func NewMemoryStore() Store {
	return &memoryStore{
		events:        make(map[string]*models.Event),
		registrations: make(map[string]*models.Registration),
		regByKey:      make(map[seatKey]string),
		tickets:       make(map[string]*models.Ticket),
		ticketByKey:   make(map[seatKey]string),
		teams:         make(map[string]*models.Team),
		teamByCode:    make(map[string]string),
		membership:    make(map[seatKey]string),
		locks:         newKeyedLocks(),
	}
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) InTx(ctx context.Context, fn TxFunc) error {
	tx := &memoryTx{
		s:             s,
		heldKeys:      make(map[string]bool),
		events:        make(map[string]*models.Event),
		registrations: make(map[string]*models.Registration),
		tickets:       make(map[string]*models.Ticket),
		teams:         make(map[string]*models.Team),
	}
	defer tx.releaseLocks()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *memoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range tx.registrations {
		if id, ok := s.regByKey[seatKey{r.EventID, r.ParticipantID}]; ok && id != r.ID {
			return ErrRegistrationConflict
		}
	}
	for _, t := range tx.tickets {
		if id, ok := s.ticketByKey[seatKey{t.EventID, t.ParticipantID}]; ok && id != t.ID {
			return ErrTicketConflict
		}
	}
	for _, t := range tx.teams {
		if id, ok := s.teamByCode[t.InviteCode]; ok && id != t.ID {
			return ErrInviteCodeConflict
		}
		if t.Status == models.TeamStatusCancelled {
			continue
		}
		for _, m := range t.Members {
			if id, ok := s.membership[seatKey{t.EventID, m.ParticipantID}]; ok && id != t.ID {
				return ErrMembershipConflict
			}
		}
	}

	for id, e := range tx.events {
		s.events[id] = e
	}
	for id, r := range tx.registrations {
		s.registrations[id] = r
		s.regByKey[seatKey{r.EventID, r.ParticipantID}] = id
	}
	for id, t := range tx.tickets {
		s.tickets[id] = t
		s.ticketByKey[seatKey{t.EventID, t.ParticipantID}] = id
	}
	for id, t := range tx.teams {
		if old, ok := s.teams[id]; ok {
			delete(s.teamByCode, old.InviteCode)
			for _, m := range old.Members {
				key := seatKey{old.EventID, m.ParticipantID}
				if s.membership[key] == id {
					delete(s.membership, key)
				}
			}
		}
		s.teams[id] = t
		s.teamByCode[t.InviteCode] = id
		if t.Status != models.TeamStatusCancelled {
			for _, m := range t.Members {
				s.membership[seatKey{t.EventID, m.ParticipantID}] = id
			}
		}
	}
	return nil
}

// --- Reader ---

func (s *memoryStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEvent(e), nil
}

func (s *memoryStore) ListEventIDsByStatus(ctx context.Context, statuses ...models.EventStatus) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[models.EventStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}
	ids := make([]string, 0)
	for id, e := range s.events {
		if wanted[e.Status] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memoryStore) FindRegistration(ctx context.Context, eventID, participantID string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.regByKey[seatKey{eventID, participantID}]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRegistration(s.registrations[id]), nil
}

func (s *memoryStore) ListRegistrationsByEvent(ctx context.Context, eventID string) ([]*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	regs := make([]*models.Registration, 0)
	for _, r := range s.registrations {
		if r.EventID == eventID {
			regs = append(regs, copyRegistration(r))
		}
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].CreatedAt.Before(regs[j].CreatedAt) })
	return regs, nil
}

func (s *memoryStore) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *memoryStore) GetTeamByInviteCode(ctx context.Context, code string) (*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.teamByCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return s.teams[id].Clone(), nil
}

func (s *memoryStore) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTicket(t), nil
}

func (s *memoryStore) FindTicket(ctx context.Context, eventID, participantID string) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ticketByKey[seatKey{eventID, participantID}]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTicket(s.tickets[id]), nil
}

func (s *memoryStore) ListTicketsByParticipant(ctx context.Context, participantID string) ([]*models.Ticket, error) {
	return s.listTickets(func(t *models.Ticket) bool { return t.ParticipantID == participantID }), nil
}

func (s *memoryStore) ListTicketsByTeam(ctx context.Context, teamID string) ([]*models.Ticket, error) {
	return s.listTickets(func(t *models.Ticket) bool { return t.TeamID != nil && *t.TeamID == teamID }), nil
}

func (s *memoryStore) listTickets(match func(*models.Ticket) bool) []*models.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Ticket, 0)
	for _, t := range s.tickets {
		if match(t) {
			out = append(out, copyTicket(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].IssuedAt.Before(out[j].IssuedAt)
	})
	return out
}

func (s *memoryStore) SetTicketArtifacts(ctx context.Context, ticketID, token, passURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return ErrNotFound
	}
	updated := copyTicket(t)
	if token != "" {
		updated.Token = token
	}
	if passURL != "" {
		updated.PassURL = passURL
	}
	s.tickets[ticketID] = updated
	return nil
}

func (s *memoryStore) ClearTicketPass(ctx context.Context, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return ErrNotFound
	}
	updated := copyTicket(t)
	updated.PassURL = ""
	s.tickets[ticketID] = updated
	return nil
}

// --- Tx ---

type memoryTx struct {
	s        *memoryStore
	unlocks  []func()
	heldKeys map[string]bool

	events        map[string]*models.Event
	registrations map[string]*models.Registration
	tickets       map[string]*models.Ticket
	teams         map[string]*models.Team
}

func (tx *memoryTx) lock(ctx context.Context, key string) error {
	if tx.heldKeys[key] {
		return nil
	}
	unlock, err := tx.s.locks.acquire(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	tx.heldKeys[key] = true
	tx.unlocks = append(tx.unlocks, unlock)
	return nil
}

func (tx *memoryTx) releaseLocks() {
	for i := len(tx.unlocks) - 1; i >= 0; i-- {
		tx.unlocks[i]()
	}
	tx.unlocks = nil
}

func (tx *memoryTx) InsertEvent(ctx context.Context, e *models.Event) error {
	tx.events[e.ID] = copyEvent(e)
	return nil
}

func (tx *memoryTx) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	if e, ok := tx.events[id]; ok {
		return copyEvent(e), nil
	}
	return tx.s.GetEvent(ctx, id)
}

func (tx *memoryTx) LockEvent(ctx context.Context, id string) (*models.Event, error) {
	if err := tx.lock(ctx, "event:"+id); err != nil {
		return nil, err
	}
	return tx.GetEvent(ctx, id)
}

func (tx *memoryTx) SaveEvent(ctx context.Context, e *models.Event) error {
	if _, err := tx.GetEvent(ctx, e.ID); err != nil {
		return err
	}
	tx.events[e.ID] = copyEvent(e)
	return nil
}

func (tx *memoryTx) FindRegistration(ctx context.Context, eventID, participantID string) (*models.Registration, error) {
	for _, r := range tx.registrations {
		if r.EventID == eventID && r.ParticipantID == participantID {
			return copyRegistration(r), nil
		}
	}
	return tx.s.FindRegistration(ctx, eventID, participantID)
}

func (tx *memoryTx) InsertRegistration(ctx context.Context, r *models.Registration) error {
	if _, err := tx.FindRegistration(ctx, r.EventID, r.ParticipantID); err == nil {
		return ErrRegistrationConflict
	}
	tx.registrations[r.ID] = copyRegistration(r)
	return nil
}

func (tx *memoryTx) registrationByID(id string) (*models.Registration, error) {
	if r, ok := tx.registrations[id]; ok {
		return copyRegistration(r), nil
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	r, ok := tx.s.registrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRegistration(r), nil
}

func (tx *memoryTx) UpdateRegistrationStatus(ctx context.Context, id string, status models.RegistrationStatus, at time.Time) error {
	r, err := tx.registrationByID(id)
	if err != nil {
		return err
	}
	r.Status = status
	r.UpdatedAt = at
	tx.registrations[id] = r
	return nil
}

func (tx *memoryTx) CompleteActiveRegistrations(ctx context.Context, eventID string, at time.Time) (int, error) {
	tx.s.mu.RLock()
	ids := make([]string, 0)
	for id, r := range tx.s.registrations {
		if r.EventID == eventID {
			ids = append(ids, id)
		}
	}
	tx.s.mu.RUnlock()
	for id, r := range tx.registrations {
		if r.EventID == eventID {
			ids = append(ids, id)
		}
	}

	changed := 0
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		r, err := tx.registrationByID(id)
		if err != nil {
			return changed, err
		}
		if r.Status != models.RegistrationActive {
			continue
		}
		r.Status = models.RegistrationCompleted
		r.UpdatedAt = at
		tx.registrations[id] = r
		changed++
	}
	return changed, nil
}

func (tx *memoryTx) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	if t, ok := tx.tickets[id]; ok {
		return copyTicket(t), nil
	}
	return tx.s.GetTicket(ctx, id)
}

func (tx *memoryTx) FindTicket(ctx context.Context, eventID, participantID string) (*models.Ticket, error) {
	for _, t := range tx.tickets {
		if t.EventID == eventID && t.ParticipantID == participantID {
			return copyTicket(t), nil
		}
	}
	return tx.s.FindTicket(ctx, eventID, participantID)
}

func (tx *memoryTx) InsertTicket(ctx context.Context, t *models.Ticket) error {
	if _, err := tx.FindTicket(ctx, t.EventID, t.ParticipantID); err == nil {
		return ErrTicketConflict
	}
	tx.tickets[t.ID] = copyTicket(t)
	return nil
}

func (tx *memoryTx) MarkTicketCheckedIn(ctx context.Context, id string, at time.Time) error {
	t, err := tx.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	t.CheckedInAt = &at
	tx.tickets[id] = copyTicket(t)
	return nil
}

func (tx *memoryTx) BindTicketTeam(ctx context.Context, id string, teamID *string) error {
	t, err := tx.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	t.TeamID = teamID
	tx.tickets[id] = copyTicket(t)
	return nil
}

func (tx *memoryTx) team(id string) (*models.Team, error) {
	if t, ok := tx.teams[id]; ok {
		return t.Clone(), nil
	}
	return tx.s.GetTeam(context.Background(), id)
}

func (tx *memoryTx) LockTeam(ctx context.Context, id string) (*models.Team, error) {
	if err := tx.lock(ctx, "team:"+id); err != nil {
		return nil, err
	}
	return tx.team(id)
}

func (tx *memoryTx) LockTeamByInviteCode(ctx context.Context, code string) (*models.Team, error) {
	id := ""
	for tid, t := range tx.teams {
		if t.InviteCode == code {
			id = tid
			break
		}
	}
	if id == "" {
		t, err := tx.s.GetTeamByInviteCode(ctx, code)
		if err != nil {
			return nil, err
		}
		id = t.ID
	}
	t, err := tx.LockTeam(ctx, id)
	if err != nil {
		return nil, err
	}
	// The code may have been rotated while we waited for the lock.
	if t.InviteCode != code {
		return nil, ErrNotFound
	}
	return t, nil
}

func (tx *memoryTx) FindActiveTeamFor(ctx context.Context, eventID, participantID string) (*models.Team, error) {
	for _, t := range tx.teams {
		if t.EventID == eventID && t.Status != models.TeamStatusCancelled && t.HasMember(participantID) {
			return t.Clone(), nil
		}
	}
	tx.s.mu.RLock()
	id, ok := tx.s.membership[seatKey{eventID, participantID}]
	tx.s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if _, staged := tx.teams[id]; staged {
		// The staged version was checked above and no longer matches.
		return nil, ErrNotFound
	}
	return tx.s.GetTeam(ctx, id)
}

func (tx *memoryTx) checkMembership(ctx context.Context, teamID, eventID, participantID string) error {
	existing, err := tx.FindActiveTeamFor(ctx, eventID, participantID)
	if err == nil && existing.ID != teamID {
		return ErrMembershipConflict
	}
	return nil
}

func (tx *memoryTx) InsertTeam(ctx context.Context, t *models.Team) error {
	if other, err := tx.s.GetTeamByInviteCode(ctx, t.InviteCode); err == nil && other.ID != t.ID {
		return ErrInviteCodeConflict
	}
	for _, m := range t.Members {
		if err := tx.checkMembership(ctx, t.ID, t.EventID, m.ParticipantID); err != nil {
			return err
		}
	}
	tx.teams[t.ID] = t.Clone()
	return nil
}

func (tx *memoryTx) AddTeamMember(ctx context.Context, teamID string, m models.TeamMember) error {
	t, err := tx.team(teamID)
	if err != nil {
		return err
	}
	if err := tx.checkMembership(ctx, teamID, t.EventID, m.ParticipantID); err != nil {
		return err
	}
	if t.HasMember(m.ParticipantID) {
		return ErrMembershipConflict
	}
	t.Members = append(t.Members, m)
	tx.teams[teamID] = t
	return nil
}

func (tx *memoryTx) RemoveTeamMember(ctx context.Context, teamID, participantID string) error {
	t, err := tx.team(teamID)
	if err != nil {
		return err
	}
	kept := t.Members[:0]
	for _, m := range t.Members {
		if m.ParticipantID != participantID {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(t.Members) {
		return ErrNotFound
	}
	t.Members = kept
	tx.teams[teamID] = t
	return nil
}

func (tx *memoryTx) SaveTeam(ctx context.Context, t *models.Team) error {
	current, err := tx.team(t.ID)
	if err != nil {
		return err
	}
	if t.InviteCode != current.InviteCode {
		if other, err := tx.s.GetTeamByInviteCode(ctx, t.InviteCode); err == nil && other.ID != t.ID {
			return ErrInviteCodeConflict
		}
	}
	current.Status = t.Status
	current.InviteCode = t.InviteCode
	current.CompletedAt = t.CompletedAt
	tx.teams[t.ID] = current
	return nil
}

// --- copies ---

func copyEvent(e *models.Event) *models.Event {
	c := *e
	return &c
}

func copyRegistration(r *models.Registration) *models.Registration {
	c := *r
	return &c
}

func copyTicket(t *models.Ticket) *models.Ticket {
	c := *t
	if t.TeamID != nil {
		id := *t.TeamID
		c.TeamID = &id
	}
	if t.CheckedInAt != nil {
		at := *t.CheckedInAt
		c.CheckedInAt = &at
	}
	return &c
}
