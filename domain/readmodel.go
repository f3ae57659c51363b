package domain

import (
	"strings"
	"time"
)

// waitingListMarker is the duration slot shown for waiting-list choices in the
// selected-options encoding.
const waitingListMarker = "waitinglist"

// ReadModel answers the queries external consumers need: registration tables,
// roommate pairings, reservation expiry, mail triggers. It composes the
// write-side projections rather than re-deriving quota logic.
type ReadModel struct {
	*WriteModel
}

func NewReadModel(log *EventLog, now time.Time) *ReadModel {
	return &ReadModel{WriteModel: NewWriteModel(log, now)}
}

// ReservationExpiration returns when the session's active reservation runs
// out. A regular reservation takes precedence over a waitlist one.
func (m *ReadModel) ReservationExpiration(sessionID string) (time.Time, bool) {
	if ev, ok := m.ReservationsBySession()[sessionID]; ok {
		return time.UnixMilli(ev.JoinedAt).Add(ReservationHold), true
	}
	if ev, ok := m.WaitlistReservationsBySession()[sessionID]; ok {
		return time.UnixMilli(ev.JoinedAt).Add(ReservationHold), true
	}
	return time.Time{}, false
}

// HasValidReservationFor reports whether the session holds any active
// reservation, regular or waitlist.
func (m *ReadModel) HasValidReservationFor(sessionID string) bool {
	return m.HasActiveClaim(sessionID)
}

// ReservationsAndParticipantsFor lists everyone currently occupying a slot in
// the room type, for rendering the registration table.
func (m *ReadModel) ReservationsAndParticipantsFor(roomType string) []Event {
	return m.OccupantsOf(roomType)
}

// WaitlistReservationsAndParticipantsFor lists everyone waiting for the room
// type.
func (m *ReadModel) WaitlistReservationsAndParticipantsFor(roomType string) []Event {
	return m.WaitlistOccupantsOf(roomType)
}

// RegisteredInRoomType returns the room type the member is booked in.
func (m *ReadModel) RegisteredInRoomType(memberID string) (string, bool) {
	if ev, ok := m.ParticipantsByMember()[memberID]; ok {
		return ev.RoomType, true
	}
	return "", false
}

// IsAlreadyRegistered reports whether the member has a booking.
func (m *ReadModel) IsAlreadyRegistered(memberID string) bool {
	_, ok := m.ParticipantsByMember()[memberID]
	return ok
}

// IsAlreadyOnWaitinglist reports whether the member is on the waiting list.
func (m *ReadModel) IsAlreadyOnWaitinglist(memberID string) bool {
	_, ok := m.WaitlistParticipantsByMember()[memberID]
	return ok
}

// RoomTypesOf returns the single booked room type if the member is
// registered, else their desired waitlist room types, else nothing.
func (m *ReadModel) RoomTypesOf(memberID string) []string {
	if ev, ok := m.ParticipantsByMember()[memberID]; ok {
		return []string{ev.RoomType}
	}
	if ev, ok := m.WaitlistParticipantsByMember()[memberID]; ok {
		return ev.DesiredRoomTypes
	}
	return []string{}
}

// SelectedOptionsFor encodes a member's current choice for the registration
// form: "roomType,duration" when booked, otherwise one
// "roomType,waitinglist" element per desired room type joined by ";". A
// booking suppresses waitlist info even if both exist.
func (m *ReadModel) SelectedOptionsFor(memberID string) string {
	if ev, ok := m.ParticipantsByMember()[memberID]; ok {
		return ev.RoomType + "," + ev.Duration
	}
	if ev, ok := m.WaitlistParticipantsByMember()[memberID]; ok {
		options := make([]string, 0, len(ev.DesiredRoomTypes))
		for _, roomType := range ev.DesiredRoomTypes {
			options = append(options, roomType+","+waitingListMarker)
		}
		return strings.Join(options, ";")
	}
	return ""
}

// JoinedSoCraTesAt returns when the event establishing the member's current
// registration happened, for sorting and auditing.
func (m *ReadModel) JoinedSoCraTesAt(memberID string) (time.Time, bool) {
	if ev, ok := m.ParticipantsByMember()[memberID]; ok {
		return time.UnixMilli(ev.JoinedAt), true
	}
	return time.Time{}, false
}

// JoinedWaitlistAt returns when the member's current waiting-list entry was
// established.
func (m *ReadModel) JoinedWaitlistAt(memberID string) (time.Time, bool) {
	if ev, ok := m.WaitlistParticipantsByMember()[memberID]; ok {
		return time.UnixMilli(ev.JoinedAt), true
	}
	return time.Time{}, false
}
