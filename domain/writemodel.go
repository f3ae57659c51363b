package domain

import (
	"sort"
	"time"
)

// WriteModel computes the facts a command needs from the event streams. Every
// projection is a pure fold over the log, memoized per instance; commands build
// a fresh WriteModel for each decision, so a cache can never outlive an append.
// "Active" is evaluated against the now the model was built with.
type WriteModel struct {
	log *EventLog
	now time.Time

	quotas               map[string]int
	reservations         map[string]Event
	waitlistReservations map[string]Event
	participants         map[string]Event
	waitlistParticipants map[string]Event
}

func NewWriteModel(log *EventLog, now time.Time) *WriteModel {
	return &WriteModel{log: log, now: now}
}

// QuotaFor returns the effective quota for a room type. The last
// ROOM_QUOTA_SET event wins; ok is false if the room type was never managed.
func (m *WriteModel) QuotaFor(roomType string) (int, bool) {
	if m.quotas == nil {
		m.quotas = map[string]int{}
		for _, ev := range m.log.ConfigEvents {
			if ev.Kind == RoomQuotaSet {
				m.quotas[ev.RoomType] = ev.Quota
			}
		}
	}
	quota, ok := m.quotas[roomType]
	return quota, ok
}

// ReservationsBySession maps each session to its active regular reservation.
func (m *WriteModel) ReservationsBySession() map[string]Event {
	m.foldReservations()
	return m.reservations
}

// WaitlistReservationsBySession maps each session to its active waitlist
// reservation.
func (m *WriteModel) WaitlistReservationsBySession() map[string]Event {
	m.foldReservations()
	return m.waitlistReservations
}

func (m *WriteModel) foldReservations() {
	if m.reservations != nil {
		return
	}
	m.reservations = map[string]Event{}
	m.waitlistReservations = map[string]Event{}
	for _, ev := range m.log.RegistrationEvents {
		switch ev.Kind {
		case ReservationIssued:
			// A newer reservation supersedes any earlier claim of the session,
			// even one that would itself evaluate as expired.
			delete(m.waitlistReservations, ev.SessionID)
			delete(m.reservations, ev.SessionID)
			if ev.ActiveAt(m.now) {
				m.reservations[ev.SessionID] = ev
			}
		case WaitlistReservationIssued:
			delete(m.reservations, ev.SessionID)
			delete(m.waitlistReservations, ev.SessionID)
			if ev.ActiveAt(m.now) {
				m.waitlistReservations[ev.SessionID] = ev
			}
		case ParticipantRegistered, WaitlistParticipantRegistered:
			// The reservation has become the registration.
			delete(m.reservations, ev.SessionID)
			delete(m.waitlistReservations, ev.SessionID)
		}
	}
}

// HasActiveClaim reports whether the session currently holds any reservation,
// regular or waitlist. A session gets at most one claim at a time.
func (m *WriteModel) HasActiveClaim(sessionID string) bool {
	if _, ok := m.ReservationsBySession()[sessionID]; ok {
		return true
	}
	_, ok := m.WaitlistReservationsBySession()[sessionID]
	return ok
}

// ParticipantsByMember maps each currently registered member to the latest
// event establishing their room type and duration.
func (m *WriteModel) ParticipantsByMember() map[string]Event {
	if m.participants == nil {
		m.participants = map[string]Event{}
		for _, ev := range m.log.RegistrationEvents {
			switch ev.Kind {
			case ParticipantRegistered, RoomTypeChanged, DurationChanged, PromotedFromWaitlist:
				m.participants[ev.MemberID] = ev
			case ParticipantRemoved:
				delete(m.participants, ev.MemberID)
			}
		}
	}
	return m.participants
}

// WaitlistParticipantsByMember maps each member on the waiting list to the
// latest event establishing their desired room types.
func (m *WriteModel) WaitlistParticipantsByMember() map[string]Event {
	if m.waitlistParticipants == nil {
		m.waitlistParticipants = map[string]Event{}
		for _, ev := range m.log.RegistrationEvents {
			switch ev.Kind {
			case WaitlistParticipantRegistered, DesiredRoomTypesChanged:
				m.waitlistParticipants[ev.MemberID] = ev
			case WaitlistParticipantRemoved:
				delete(m.waitlistParticipants, ev.MemberID)
			}
		}
	}
	return m.waitlistParticipants
}

// OccupantsOf lists the units consumed in a room type: active reservations
// plus registered participants, de-duplicated by session so a reservation with
// its matching registration counts once. Ordered by claim time for rendering.
func (m *WriteModel) OccupantsOf(roomType string) []Event {
	sessions := map[string]bool{}
	occupants := []Event{}
	for _, ev := range m.ParticipantsByMember() {
		if ev.RoomType != roomType {
			continue
		}
		occupants = append(occupants, ev)
		if ev.SessionID != "" {
			sessions[ev.SessionID] = true
		}
	}
	for _, ev := range m.ReservationsBySession() {
		if ev.RoomType != roomType || sessions[ev.SessionID] {
			continue
		}
		occupants = append(occupants, ev)
	}
	sortByJoinedAt(occupants)
	return occupants
}

// WaitlistOccupantsOf is the waitlist counterpart of OccupantsOf: active
// waitlist reservations and waitlist participants desiring the room type.
func (m *WriteModel) WaitlistOccupantsOf(roomType string) []Event {
	sessions := map[string]bool{}
	occupants := []Event{}
	for _, ev := range m.WaitlistParticipantsByMember() {
		if !containsRoomType(ev.DesiredRoomTypes, roomType) {
			continue
		}
		occupants = append(occupants, ev)
		if ev.SessionID != "" {
			sessions[ev.SessionID] = true
		}
	}
	for _, ev := range m.WaitlistReservationsBySession() {
		if !containsRoomType(ev.DesiredRoomTypes, roomType) || sessions[ev.SessionID] {
			continue
		}
		occupants = append(occupants, ev)
	}
	sortByJoinedAt(occupants)
	return occupants
}

// IsFull reports whether a room type has no slot left. A room type with no
// quota ever set is never full: absence means "not managed here".
func (m *WriteModel) IsFull(roomType string) bool {
	quota, ok := m.QuotaFor(roomType)
	if !ok {
		return false
	}
	return quota <= len(m.OccupantsOf(roomType))
}

func sortByJoinedAt(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].JoinedAt != events[j].JoinedAt {
			return events[i].JoinedAt < events[j].JoinedAt
		}
		if events[i].MemberID != events[j].MemberID {
			return events[i].MemberID < events[j].MemberID
		}
		return events[i].SessionID < events[j].SessionID
	})
}

func containsRoomType(roomTypes []string, roomType string) bool {
	for _, rt := range roomTypes {
		if rt == roomType {
			return true
		}
	}
	return false
}
