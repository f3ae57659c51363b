package domain

import "time"

// CommandProcessor is the single writer of the event log. Every command
// appends exactly one event (a success or a descriptive rejection) to the
// correct stream and returns it. Domain rule violations are never errors;
// they are recorded outcomes.
type CommandProcessor struct {
	log *EventLog
}

func NewCommandProcessor(log *EventLog) *CommandProcessor {
	return &CommandProcessor{log: log}
}

// SetRoomQuota records a new quota for a room type on the configuration
// stream. Later settings fully supersede earlier ones.
func (p *CommandProcessor) SetRoomQuota(roomType string, quota int) Event {
	ev := newRoomQuotaSet(roomType, quota)
	p.log.AppendConfig(ev)
	return ev
}

// IssueReservation claims a slot in a room type for 30 minutes.
func (p *CommandProcessor) IssueReservation(roomType, duration, sessionID, memberID string, now time.Time) Event {
	m := NewWriteModel(p.log, now)
	var ev Event
	switch {
	case m.IsFull(roomType):
		ev = newRoomEvent(RejectedFull, roomType, duration, sessionID, memberID, now.UnixMilli())
	case m.HasActiveClaim(sessionID):
		ev = newRoomEvent(RejectedAlreadyReserved, roomType, duration, sessionID, memberID, now.UnixMilli())
	default:
		ev = newRoomEvent(ReservationIssued, roomType, duration, sessionID, memberID, now.UnixMilli())
	}
	p.log.AppendRegistration(ev)
	return ev
}

// RegisterParticipant books a room. A session holding an active reservation
// always earns the booking, even past quota and even for a room type or
// duration other than the reserved one; the claim time carries over.
func (p *CommandProcessor) RegisterParticipant(roomType, duration, sessionID, memberID string, now time.Time) Event {
	m := NewWriteModel(p.log, now)
	var ev Event
	if reservation, ok := m.ReservationsBySession()[sessionID]; ok {
		ev = newRoomEvent(ParticipantRegistered, roomType, duration, sessionID, memberID, reservation.JoinedAt)
	} else if m.IsFull(roomType) {
		ev = newRoomEvent(RejectedFull, roomType, duration, sessionID, memberID, now.UnixMilli())
	} else if _, registered := m.ParticipantsByMember()[memberID]; registered {
		ev = newRoomEvent(RejectedAlreadyRegistered, roomType, duration, sessionID, memberID, now.UnixMilli())
	} else {
		ev = newRoomEvent(ParticipantRegistered, roomType, duration, sessionID, memberID, now.UnixMilli())
	}
	p.log.AppendRegistration(ev)
	return ev
}

// RemoveParticipant takes a member out of the room type they are booked in.
func (p *CommandProcessor) RemoveParticipant(roomType, memberID string, now time.Time) Event {
	m := NewWriteModel(p.log, now)
	var ev Event
	current, registered := m.ParticipantsByMember()[memberID]
	switch {
	case !registered:
		ev = newRoomEvent(RejectedNotRegistered, roomType, "", "", memberID, now.UnixMilli())
	case current.RoomType != roomType:
		ev = newRoomEvent(RejectedWrongRoomType, roomType, "", "", memberID, now.UnixMilli())
	default:
		ev = newRoomEvent(ParticipantRemoved, roomType, current.Duration, current.SessionID, memberID, now.UnixMilli())
	}
	p.log.AppendRegistration(ev)
	return ev
}

// MoveParticipantToNewRoomType rebooks a member into another room type,
// keeping their duration and claim time. No quota check: this is an
// administrative override and may push a room type over its quota.
func (p *CommandProcessor) MoveParticipantToNewRoomType(memberID, newRoomType string, now time.Time) Event {
	m := NewWriteModel(p.log, now)
	var ev Event
	if current, registered := m.ParticipantsByMember()[memberID]; registered {
		ev = newRoomEvent(RoomTypeChanged, newRoomType, current.Duration, current.SessionID, memberID, current.JoinedAt)
	} else {
		ev = newRoomEvent(RejectedNotAParticipant, newRoomType, "", "", memberID, now.UnixMilli())
	}
	p.log.AppendRegistration(ev)
	return ev
}

// SetNewDurationForParticipant changes how long a member stays, keeping their
// room type and claim time.
func (p *CommandProcessor) SetNewDurationForParticipant(memberID, duration string, now time.Time) Event {
	m := NewWriteModel(p.log, now)
	var ev Event
	if current, registered := m.ParticipantsByMember()[memberID]; registered {
		ev = newRoomEvent(DurationChanged, current.RoomType, duration, current.SessionID, memberID, current.JoinedAt)
	} else {
		ev = newRoomEvent(RejectedNotAParticipant, "", duration, "", memberID, now.UnixMilli())
	}
	p.log.AppendRegistration(ev)
	return ev
}

// IssueWaitlistReservation claims a waiting-list spot for 30 minutes.
func (p *CommandProcessor) IssueWaitlistReservation(desiredRoomTypes []string, sessionID, memberID string, now time.Time) Event {
	m := NewWriteModel(p.log, now)
	var ev Event
	if m.HasActiveClaim(sessionID) {
		ev = newWaitlistEvent(RejectedAlreadyReserved, desiredRoomTypes, sessionID, memberID, now.UnixMilli())
	} else {
		ev = newWaitlistEvent(WaitlistReservationIssued, desiredRoomTypes, sessionID, memberID, now.UnixMilli())
	}
	p.log.AppendRegistration(ev)
	return ev
}

// RegisterWaitlistParticipant puts a member on the waiting list. Works with or
// without a prior waitlist reservation; an expired reservation does not block
// it. Membership is judged by member id alone.
func (p *CommandProcessor) RegisterWaitlistParticipant(desiredRoomTypes []string, sessionID, memberID string, now time.Time) Event {
	m := NewWriteModel(p.log, now)
	var ev Event
	if _, onWaitlist := m.WaitlistParticipantsByMember()[memberID]; onWaitlist {
		ev = newWaitlistEvent(RejectedAlreadyRegistered, desiredRoomTypes, sessionID, memberID, now.UnixMilli())
	} else {
		joinedAt := now.UnixMilli()
		if reservation, ok := m.WaitlistReservationsBySession()[sessionID]; ok {
			joinedAt = reservation.JoinedAt
		}
		ev = newWaitlistEvent(WaitlistParticipantRegistered, desiredRoomTypes, sessionID, memberID, joinedAt)
	}
	p.log.AppendRegistration(ev)
	return ev
}

// RemoveWaitlistParticipant takes a member off the waiting list. The room
// type list recorded on the event is whatever the caller passed.
func (p *CommandProcessor) RemoveWaitlistParticipant(desiredRoomTypes []string, memberID string, now time.Time) Event {
	m := NewWriteModel(p.log, now)
	var ev Event
	if _, onWaitlist := m.WaitlistParticipantsByMember()[memberID]; onWaitlist {
		ev = newWaitlistEvent(WaitlistParticipantRemoved, desiredRoomTypes, "", memberID, now.UnixMilli())
	} else {
		ev = newWaitlistEvent(RejectedNotRegistered, desiredRoomTypes, "", memberID, now.UnixMilli())
	}
	p.log.AppendRegistration(ev)
	return ev
}

// ChangeDesiredRoomTypes replaces a waiting member's desired room types,
// keeping their claim time. Submitting the stored list again is rejected.
func (p *CommandProcessor) ChangeDesiredRoomTypes(memberID string, newRoomTypes []string, now time.Time) Event {
	m := NewWriteModel(p.log, now)
	var ev Event
	current, onWaitlist := m.WaitlistParticipantsByMember()[memberID]
	switch {
	case !onWaitlist:
		ev = newWaitlistEvent(RejectedNotOnWaitlist, newRoomTypes, "", memberID, now.UnixMilli())
	case sameRoomTypes(current.DesiredRoomTypes, newRoomTypes):
		ev = newWaitlistEvent(RejectedNoChange, newRoomTypes, current.SessionID, memberID, now.UnixMilli())
	default:
		ev = newWaitlistEvent(DesiredRoomTypesChanged, newRoomTypes, current.SessionID, memberID, current.JoinedAt)
	}
	p.log.AppendRegistration(ev)
	return ev
}

func sameRoomTypes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FromWaitlistToParticipant promotes a member into a room type. No quota
// check, and the member need not actually be on the waiting list; only an
// existing booking blocks the promotion.
func (p *CommandProcessor) FromWaitlistToParticipant(roomType, memberID, duration string, now time.Time) Event {
	m := NewWriteModel(p.log, now)
	var ev Event
	if _, registered := m.ParticipantsByMember()[memberID]; registered {
		ev = newRoomEvent(RejectedAlreadyRegistered, roomType, duration, "", memberID, now.UnixMilli())
	} else {
		sessionID := ""
		if current, ok := m.WaitlistParticipantsByMember()[memberID]; ok {
			sessionID = current.SessionID
		}
		ev = newRoomEvent(PromotedFromWaitlist, roomType, duration, sessionID, memberID, now.UnixMilli())
	}
	p.log.AppendRegistration(ev)
	return ev
}
