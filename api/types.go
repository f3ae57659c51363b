package api

import (
	"context"

	"socrates-registration/domain"
	"socrates-registration/storage"
)

// Store abstracts persistence for handlers.
type Store interface {
	Load(ctx context.Context, conferenceID string) (*domain.EventLog, string, error)
	Save(ctx context.Context, eventLog *domain.EventLog, version string) (string, error)
	EnqueueNotification(ctx context.Context, n storage.Notification) error
}

const commandBodyMaxSize = 64 * 1024 // 64 KiB

type quotaRequest struct {
	RoomType string `json:"roomType"`
	Quota    int    `json:"quota"`
}

type reservationRequest struct {
	RoomType  string `json:"roomType"`
	Duration  string `json:"duration"`
	SessionID string `json:"sessionId"`
	MemberID  string `json:"memberId"`
}

type waitlistRequest struct {
	DesiredRoomTypes []string `json:"desiredRoomTypes"`
	SessionID        string   `json:"sessionId"`
	MemberID         string   `json:"memberId"`
}

type roomTypeChangeRequest struct {
	RoomType string `json:"roomType"`
}

type durationChangeRequest struct {
	Duration string `json:"duration"`
}

type desiredRoomTypesRequest struct {
	DesiredRoomTypes []string `json:"desiredRoomTypes"`
}

type promotionRequest struct {
	RoomType string `json:"roomType"`
	MemberID string `json:"memberId"`
	Duration string `json:"duration"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type roomResponse struct {
	RoomType  string         `json:"roomType"`
	Quota     *int           `json:"quota,omitempty"`
	Full      bool           `json:"full"`
	Occupants []domain.Event `json:"occupants"`
}

type waitlistRoomResponse struct {
	RoomType string         `json:"roomType"`
	Waiting  []domain.Event `json:"waiting"`
}

type memberResponse struct {
	MemberID         string   `json:"memberId"`
	Registered       bool     `json:"registered"`
	OnWaitinglist    bool     `json:"onWaitinglist"`
	RoomTypes        []string `json:"roomTypes"`
	SelectedOptions  string   `json:"selectedOptions"`
	JoinedSoCraTesAt *int64   `json:"joinedSoCraTesAt,omitempty"`
	JoinedWaitlistAt *int64   `json:"joinedWaitlistAt,omitempty"`
}

type sessionReservationResponse struct {
	SessionID string `json:"sessionId"`
	Valid     bool   `json:"valid"`
	ExpiresAt *int64 `json:"expiresAt,omitempty"`
}
