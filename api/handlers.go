package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"socrates-registration/domain"
	"socrates-registration/storage"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Store, logger *log.Logger) {
	locks := newLockRegistry()

	g := e.Group("/api/conferences/:conference")
	g.PUT("/quota", putQuota(store, locks, logger))
	g.POST("/reservations", postReservation(store, locks, logger))
	g.POST("/participants", postParticipant(store, locks, logger))
	g.POST("/participants/from-waitlist", postPromotion(store, locks, logger))
	g.DELETE("/participants/:member", deleteParticipant(store, locks, logger))
	g.PUT("/participants/:member/room-type", putParticipantRoomType(store, locks, logger))
	g.PUT("/participants/:member/duration", putParticipantDuration(store, locks, logger))
	g.POST("/waitlist/reservations", postWaitlistReservation(store, locks, logger))
	g.POST("/waitlist/participants", postWaitlistParticipant(store, locks, logger))
	g.DELETE("/waitlist/participants/:member", deleteWaitlistParticipant(store, locks, logger))
	g.PUT("/waitlist/participants/:member/room-types", putDesiredRoomTypes(store, locks, logger))
	g.GET("/rooms/:roomType", getRoom(store, logger))
	g.GET("/waitlist/rooms/:roomType", getWaitlistRoom(store, logger))
	g.GET("/members/:member", getMember(store, logger))
	g.GET("/sessions/:session/reservation", getSessionReservation(store, logger))
	e.GET("/healthz", healthz())

	initNotificationSender(store, logger)
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, commandBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// executeCommand runs the load-decide-save cycle for one command under the
// conference lock and renders the appended event. A conflicting save is not
// retried here: the client resubmits against fresh state.
func executeCommand(c echo.Context, store Store, locks *lockRegistry, logger *log.Logger, route string,
	decide func(*domain.CommandProcessor, time.Time) domain.Event) (err error) {

	ctx := c.Request().Context()
	conferenceID := c.Param("conference")
	metrics := newCommandRequestMetrics(logger, route, conferenceID)
	defer func() {
		metrics.Log(c.Response().Status, err)
	}()

	lockStart := time.Now()
	unlock := locks.acquire(conferenceID)
	defer unlock()
	metrics.ObserveLockWait(time.Since(lockStart))

	loadStart := time.Now()
	eventLog, version, loadErr := store.Load(ctx, conferenceID)
	metrics.ObserveLoad(time.Since(loadStart))
	if loadErr != nil {
		metrics.SetErrorStage("load")
		c.Logger().Error(loadErr)
		err = c.JSON(http.StatusInternalServerError, errorResponse{Error: loadErr.Error()})
		return err
	}

	ev := decide(domain.NewCommandProcessor(eventLog), time.Now())
	metrics.SetOutcome(ev.Kind)

	saveStart := time.Now()
	_, saveErr := store.Save(ctx, eventLog, version)
	metrics.ObserveSave(time.Since(saveStart))
	if saveErr != nil {
		if errors.Is(saveErr, storage.ErrConflictingVersion) {
			metrics.SetErrorStage("version_conflict")
			err = c.JSON(http.StatusConflict, errorResponse{Error: "conflicting version, reload and resubmit"})
			return err
		}
		metrics.SetErrorStage("save")
		c.Logger().Error(saveErr)
		err = c.JSON(http.StatusInternalServerError, errorResponse{Error: saveErr.Error()})
		return err
	}

	if notifiable(ev.Kind) {
		publishNotification(storage.Notification{
			ID:           uuid.NewString(),
			ConferenceID: conferenceID,
			Event:        ev,
		})
	}

	err = c.JSON(http.StatusOK, ev)
	return err
}

func putQuota(store Store, locks *lockRegistry, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req quotaRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		return executeCommand(c, store, locks, logger, "quota", func(p *domain.CommandProcessor, _ time.Time) domain.Event {
			return p.SetRoomQuota(req.RoomType, req.Quota)
		})
	}
}

func postReservation(store Store, locks *lockRegistry, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req reservationRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		}
		return executeCommand(c, store, locks, logger, "reservations", func(p *domain.CommandProcessor, now time.Time) domain.Event {
			return p.IssueReservation(req.RoomType, req.Duration, req.SessionID, req.MemberID, now)
		})
	}
}

func postParticipant(store Store, locks *lockRegistry, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req reservationRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		return executeCommand(c, store, locks, logger, "participants", func(p *domain.CommandProcessor, now time.Time) domain.Event {
			return p.RegisterParticipant(req.RoomType, req.Duration, req.SessionID, req.MemberID, now)
		})
	}
}

func postPromotion(store Store, locks *lockRegistry, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req promotionRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		return executeCommand(c, store, locks, logger, "promotion", func(p *domain.CommandProcessor, now time.Time) domain.Event {
			return p.FromWaitlistToParticipant(req.RoomType, req.MemberID, req.Duration, now)
		})
	}
}

func deleteParticipant(store Store, locks *lockRegistry, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		memberID := c.Param("member")
		roomType := c.QueryParam("roomType")
		return executeCommand(c, store, locks, logger, "remove_participant", func(p *domain.CommandProcessor, now time.Time) domain.Event {
			return p.RemoveParticipant(roomType, memberID, now)
		})
	}
}

func putParticipantRoomType(store Store, locks *lockRegistry, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		memberID := c.Param("member")
		var req roomTypeChangeRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		return executeCommand(c, store, locks, logger, "room_type_change", func(p *domain.CommandProcessor, now time.Time) domain.Event {
			return p.MoveParticipantToNewRoomType(memberID, req.RoomType, now)
		})
	}
}

func putParticipantDuration(store Store, locks *lockRegistry, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		memberID := c.Param("member")
		var req durationChangeRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		return executeCommand(c, store, locks, logger, "duration_change", func(p *domain.CommandProcessor, now time.Time) domain.Event {
			return p.SetNewDurationForParticipant(memberID, req.Duration, now)
		})
	}
}

func postWaitlistReservation(store Store, locks *lockRegistry, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req waitlistRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		}
		return executeCommand(c, store, locks, logger, "waitlist_reservations", func(p *domain.CommandProcessor, now time.Time) domain.Event {
			return p.IssueWaitlistReservation(req.DesiredRoomTypes, req.SessionID, req.MemberID, now)
		})
	}
}

func postWaitlistParticipant(store Store, locks *lockRegistry, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req waitlistRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		return executeCommand(c, store, locks, logger, "waitlist_participants", func(p *domain.CommandProcessor, now time.Time) domain.Event {
			return p.RegisterWaitlistParticipant(req.DesiredRoomTypes, req.SessionID, req.MemberID, now)
		})
	}
}

func deleteWaitlistParticipant(store Store, locks *lockRegistry, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		memberID := c.Param("member")
		desired := splitRoomTypes(c.QueryParam("desiredRoomTypes"))
		return executeCommand(c, store, locks, logger, "remove_waitlist_participant", func(p *domain.CommandProcessor, now time.Time) domain.Event {
			return p.RemoveWaitlistParticipant(desired, memberID, now)
		})
	}
}

func putDesiredRoomTypes(store Store, locks *lockRegistry, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		memberID := c.Param("member")
		var req desiredRoomTypesRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		return executeCommand(c, store, locks, logger, "desired_room_types", func(p *domain.CommandProcessor, now time.Time) domain.Event {
			return p.ChangeDesiredRoomTypes(memberID, req.DesiredRoomTypes, now)
		})
	}
}

func getRoom(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		conferenceID := c.Param("conference")
		roomType := c.Param("roomType")
		eventLog, _, err := store.Load(ctx, conferenceID)
		if err != nil {
			logger.WithError(err).Errorf("load event log for %s failed", conferenceID)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		m := domain.NewReadModel(eventLog, time.Now())
		resp := roomResponse{
			RoomType:  roomType,
			Full:      m.IsFull(roomType),
			Occupants: m.ReservationsAndParticipantsFor(roomType),
		}
		if quota, ok := m.QuotaFor(roomType); ok {
			resp.Quota = &quota
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func getWaitlistRoom(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		conferenceID := c.Param("conference")
		roomType := c.Param("roomType")
		eventLog, _, err := store.Load(ctx, conferenceID)
		if err != nil {
			logger.WithError(err).Errorf("load event log for %s failed", conferenceID)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		m := domain.NewReadModel(eventLog, time.Now())
		return c.JSON(http.StatusOK, waitlistRoomResponse{
			RoomType: roomType,
			Waiting:  m.WaitlistReservationsAndParticipantsFor(roomType),
		})
	}
}

func getMember(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		conferenceID := c.Param("conference")
		memberID := c.Param("member")
		eventLog, _, err := store.Load(ctx, conferenceID)
		if err != nil {
			logger.WithError(err).Errorf("load event log for %s failed", conferenceID)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		m := domain.NewReadModel(eventLog, time.Now())
		resp := memberResponse{
			MemberID:        memberID,
			Registered:      m.IsAlreadyRegistered(memberID),
			OnWaitinglist:   m.IsAlreadyOnWaitinglist(memberID),
			RoomTypes:       m.RoomTypesOf(memberID),
			SelectedOptions: m.SelectedOptionsFor(memberID),
		}
		if t, ok := m.JoinedSoCraTesAt(memberID); ok {
			millis := t.UnixMilli()
			resp.JoinedSoCraTesAt = &millis
		}
		if t, ok := m.JoinedWaitlistAt(memberID); ok {
			millis := t.UnixMilli()
			resp.JoinedWaitlistAt = &millis
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func getSessionReservation(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		conferenceID := c.Param("conference")
		sessionID := c.Param("session")
		eventLog, _, err := store.Load(ctx, conferenceID)
		if err != nil {
			logger.WithError(err).Errorf("load event log for %s failed", conferenceID)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		m := domain.NewReadModel(eventLog, time.Now())
		resp := sessionReservationResponse{
			SessionID: sessionID,
			Valid:     m.HasValidReservationFor(sessionID),
		}
		if t, ok := m.ReservationExpiration(sessionID); ok {
			millis := t.UnixMilli()
			resp.ExpiresAt = &millis
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func splitRoomTypes(raw string) []string {
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	roomTypes := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roomTypes = append(roomTypes, p)
		}
	}
	return roomTypes
}
