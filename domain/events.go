package domain

import "time"

// ReservationHold is how long an issued reservation keeps its slot before it
// stops counting against the room quota.
const ReservationHold = 30 * time.Minute

// Registration event kinds. The string values are the durable wire contract;
// stored documents written by earlier deployments use the same values.
const (
	ReservationIssued             = "RESERVATION_ISSUED"
	ParticipantRegistered         = "PARTICIPANT_REGISTERED"
	ParticipantRemoved            = "PARTICIPANT_REMOVED"
	RoomTypeChanged               = "ROOM_TYPE_CHANGED"
	DurationChanged               = "DURATION_CHANGED"
	PromotedFromWaitlist          = "PROMOTED_FROM_WAITLIST"
	WaitlistReservationIssued     = "WAITLIST_RESERVATION_ISSUED"
	WaitlistParticipantRegistered = "WAITLIST_PARTICIPANT_REGISTERED"
	WaitlistParticipantRemoved    = "WAITLIST_PARTICIPANT_REMOVED"
	DesiredRoomTypesChanged       = "DESIRED_ROOM_TYPES_CHANGED"

	RejectedFull              = "REJECTED_FULL"
	RejectedAlreadyReserved   = "REJECTED_ALREADY_RESERVED"
	RejectedAlreadyRegistered = "REJECTED_ALREADY_REGISTERED"
	RejectedNotRegistered     = "REJECTED_NOT_REGISTERED"
	RejectedWrongRoomType     = "REJECTED_WRONG_ROOM_TYPE"
	RejectedNotOnWaitlist     = "REJECTED_NOT_ON_WAITLIST"
	RejectedNoChange          = "REJECTED_NO_CHANGE"
	RejectedNotAParticipant   = "REJECTED_NOT_A_PARTICIPANT"
)

// Conference configuration stream has a single kind.
const RoomQuotaSet = "ROOM_QUOTA_SET"

// Event is an immutable fact appended to the event log. Kind selects which of
// the remaining fields are meaningful; JoinedAt is the moment the claim was
// made (Unix milliseconds), used for expiry math rather than audit time.
type Event struct {
	Kind             string   `json:"event"`
	SessionID        string   `json:"sessionId,omitempty"`
	MemberID         string   `json:"memberId,omitempty"`
	RoomType         string   `json:"roomType,omitempty"`
	DesiredRoomTypes []string `json:"desiredRoomTypes,omitempty"`
	Duration         string   `json:"duration,omitempty"`
	Quota            int      `json:"quota,omitempty"`
	JoinedAt         int64    `json:"joinedAt,omitempty"`
}

// ActiveAt reports whether a reservation event still holds its slot at now.
func (e Event) ActiveAt(now time.Time) bool {
	return now.Sub(time.UnixMilli(e.JoinedAt)) < ReservationHold
}

func newRoomQuotaSet(roomType string, quota int) Event {
	return Event{Kind: RoomQuotaSet, RoomType: roomType, Quota: quota}
}

func newRoomEvent(kind, roomType, duration, sessionID, memberID string, joinedAt int64) Event {
	return Event{
		Kind:      kind,
		SessionID: sessionID,
		MemberID:  memberID,
		RoomType:  roomType,
		Duration:  duration,
		JoinedAt:  joinedAt,
	}
}

func newWaitlistEvent(kind string, desiredRoomTypes []string, sessionID, memberID string, joinedAt int64) Event {
	return Event{
		Kind:             kind,
		SessionID:        sessionID,
		MemberID:         memberID,
		DesiredRoomTypes: desiredRoomTypes,
		JoinedAt:         joinedAt,
	}
}
