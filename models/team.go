package models

import "time"

type TeamStatus string

const (
	TeamStatusForming   TeamStatus = "forming"
	TeamStatusComplete  TeamStatus = "complete"
	TeamStatusCancelled TeamStatus = "cancelled"
)

type TeamMember struct {
	ParticipantID string    `json:"participant_id" db:"participant_id"`
	JoinedAt      time.Time `json:"joined_at" db:"joined_at"`
}

// Team is a group registration in progress. Members are ordered by join time
// and the leader is always the first member.
type Team struct {
	ID          string       `json:"id" db:"id"`
	EventID     string       `json:"event_id" db:"event_id"`
	LeaderID    string       `json:"leader_id" db:"leader_id"`
	Name        string       `json:"name,omitempty" db:"name"`
	TargetSize  int          `json:"target_size" db:"target_size"`
	InviteCode  string       `json:"invite_code,omitempty" db:"invite_code"`
	Status      TeamStatus   `json:"status" db:"status"`
	Members     []TeamMember `json:"members" db:"-"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
}

func (t *Team) IsLeader(participantID string) bool {
	return t.LeaderID == participantID
}

func (t *Team) HasMember(participantID string) bool {
	for _, m := range t.Members {
		if m.ParticipantID == participantID {
			return true
		}
	}
	return false
}

func (t *Team) IsFull() bool {
	return len(t.Members) >= t.TargetSize
}

// MemberIDs returns participant ids in join order.
func (t *Team) MemberIDs() []string {
	ids := make([]string, len(t.Members))
	for i, m := range t.Members {
		ids[i] = m.ParticipantID
	}
	return ids
}

// Clone returns a deep copy so callers can mutate members without aliasing.
func (t *Team) Clone() *Team {
	if t == nil {
		return nil
	}
	c := *t
	c.Members = append([]TeamMember(nil), t.Members...)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}
