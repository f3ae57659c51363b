package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"socrates-registration/domain"
	"socrates-registration/storage"
)

type fakeStore struct {
	mu            sync.Mutex
	docs          map[string][]byte
	versions      map[string]int
	loadErr       error
	saveErr       error
	notifications []storage.Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string][]byte{}, versions: map[string]int{}}
}

func (f *fakeStore) Load(ctx context.Context, conferenceID string) (*domain.EventLog, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, "", f.loadErr
	}
	doc, ok := f.docs[conferenceID]
	if !ok {
		return domain.NewEventLog(conferenceID), "", nil
	}
	eventLog, err := domain.DecodeEventLog(doc)
	if err != nil {
		return nil, "", err
	}
	return eventLog, strconv.Itoa(f.versions[conferenceID]), nil
}

func (f *fakeStore) Save(ctx context.Context, eventLog *domain.EventLog, version string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	current := ""
	if _, ok := f.docs[eventLog.ConferenceID]; ok {
		current = strconv.Itoa(f.versions[eventLog.ConferenceID])
	}
	if version != current {
		return "", storage.ErrConflictingVersion
	}
	doc, err := domain.EncodeEventLog(eventLog)
	if err != nil {
		return "", err
	}
	f.docs[eventLog.ConferenceID] = doc
	f.versions[eventLog.ConferenceID]++
	return strconv.Itoa(f.versions[eventLog.ConferenceID]), nil
}

func (f *fakeStore) EnqueueNotification(ctx context.Context, n storage.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeStore) Notifications() []storage.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.Notification, len(f.notifications))
	copy(out, f.notifications)
	return out
}

// seed runs commands against the stored aggregate outside of any handler.
func (f *fakeStore) seed(t *testing.T, conferenceID string, mutate func(*domain.CommandProcessor)) {
	t.Helper()
	eventLog, version, err := f.Load(context.Background(), conferenceID)
	if err != nil {
		t.Fatalf("seed load: %v", err)
	}
	mutate(domain.NewCommandProcessor(eventLog))
	if _, err := f.Save(context.Background(), eventLog, version); err != nil {
		t.Fatalf("seed save: %v", err)
	}
}

func newTestContext(t *testing.T, method, target, body string, params map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	names := make([]string, 0, len(params))
	values := make([]string, 0, len(params))
	for k, v := range params {
		names = append(names, k)
		values = append(values, v)
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	return c, rec
}

func decodeEvent(t *testing.T, data []byte) domain.Event {
	t.Helper()
	var ev domain.Event
	if err := sonic.Unmarshal(data, &ev); err != nil {
		t.Fatalf("invalid event json: %v", err)
	}
	return ev
}

func TestPostReservationIssuesEvent(t *testing.T) {
	store := newFakeStore()
	store.seed(t, "socrates-2026", func(p *domain.CommandProcessor) {
		p.SetRoomQuota("single", 2)
	})
	locks := newLockRegistry()

	c, rec := newTestContext(t, http.MethodPost, "/api/conferences/socrates-2026/reservations",
		`{"roomType":"single","duration":"Sat","memberId":"m1"}`,
		map[string]string{"conference": "socrates-2026"})

	if err := postReservation(store, locks, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	ev := decodeEvent(t, rec.Body.Bytes())
	if ev.Kind != domain.ReservationIssued {
		t.Fatalf("expected RESERVATION_ISSUED, got %s", ev.Kind)
	}
	if ev.SessionID == "" {
		t.Fatal("expected a generated session id")
	}

	eventLog, _, err := store.Load(context.Background(), "socrates-2026")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	last, ok := eventLog.LastRegistrationEvent()
	if !ok || last.Kind != domain.ReservationIssued {
		t.Fatalf("expected the event to be persisted, got %v (ok=%v)", last.Kind, ok)
	}
}

func TestPostReservationRejectionIsRecorded(t *testing.T) {
	store := newFakeStore()
	store.seed(t, "socrates-2026", func(p *domain.CommandProcessor) {
		p.SetRoomQuota("single", 0)
	})
	locks := newLockRegistry()

	c, rec := newTestContext(t, http.MethodPost, "/api/conferences/socrates-2026/reservations",
		`{"roomType":"single","duration":"Sat","sessionId":"s1","memberId":"m1"}`,
		map[string]string{"conference": "socrates-2026"})

	if err := postReservation(store, locks, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	// Domain rejections are outcomes, not HTTP errors.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	ev := decodeEvent(t, rec.Body.Bytes())
	if ev.Kind != domain.RejectedFull {
		t.Fatalf("expected REJECTED_FULL, got %s", ev.Kind)
	}

	eventLog, _, err := store.Load(context.Background(), "socrates-2026")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(eventLog.RegistrationEvents) != 1 {
		t.Fatalf("expected the rejection to leave an audit trace, got %d events", len(eventLog.RegistrationEvents))
	}
}

func TestVersionConflictReturns409(t *testing.T) {
	store := newFakeStore()
	store.saveErr = storage.ErrConflictingVersion
	locks := newLockRegistry()

	c, rec := newTestContext(t, http.MethodPost, "/api/conferences/socrates-2026/participants",
		`{"roomType":"single","duration":"Sat","sessionId":"s1","memberId":"m1"}`,
		map[string]string{"conference": "socrates-2026"})

	if err := postParticipant(store, locks, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	var resp errorResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Error == "" {
		t.Fatal("expected a descriptive conflict error")
	}
}

func TestInvalidBodyReturns400(t *testing.T) {
	store := newFakeStore()
	locks := newLockRegistry()

	c, rec := newTestContext(t, http.MethodPost, "/api/conferences/socrates-2026/reservations",
		`{"roomType":"single","unknown":true}`,
		map[string]string{"conference": "socrates-2026"})

	if err := postReservation(store, locks, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestGetRoom(t *testing.T) {
	store := newFakeStore()
	store.seed(t, "socrates-2026", func(p *domain.CommandProcessor) {
		p.SetRoomQuota("single", 1)
		p.RegisterParticipant("single", "Sat", "s1", "m1", time.Now())
	})

	c, rec := newTestContext(t, http.MethodGet, "/api/conferences/socrates-2026/rooms/single", "",
		map[string]string{"conference": "socrates-2026", "roomType": "single"})

	if err := getRoom(store, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp roomResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.Full {
		t.Fatal("expected the room to be full")
	}
	if resp.Quota == nil || *resp.Quota != 1 {
		t.Fatalf("expected quota 1, got %v", resp.Quota)
	}
	if len(resp.Occupants) != 1 || resp.Occupants[0].MemberID != "m1" {
		t.Fatalf("unexpected occupants: %#v", resp.Occupants)
	}
}

func TestGetMemberSelectedOptions(t *testing.T) {
	store := newFakeStore()
	store.seed(t, "socrates-2026", func(p *domain.CommandProcessor) {
		p.RegisterWaitlistParticipant([]string{"single", "junior"}, "s1", "m1", time.Now())
	})

	c, rec := newTestContext(t, http.MethodGet, "/api/conferences/socrates-2026/members/m1", "",
		map[string]string{"conference": "socrates-2026", "member": "m1"})

	if err := getMember(store, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	var resp memberResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Registered {
		t.Fatal("member should not be registered")
	}
	if !resp.OnWaitinglist {
		t.Fatal("member should be on the waiting list")
	}
	if resp.SelectedOptions != "single,waitinglist;junior,waitinglist" {
		t.Fatalf("unexpected selected options: %q", resp.SelectedOptions)
	}
	if resp.JoinedWaitlistAt == nil {
		t.Fatal("expected a waitlist joined timestamp")
	}
}

func TestGetSessionReservation(t *testing.T) {
	store := newFakeStore()
	joined := time.Now()
	store.seed(t, "socrates-2026", func(p *domain.CommandProcessor) {
		p.SetRoomQuota("single", 1)
		p.IssueReservation("single", "Sat", "s1", "m1", joined)
	})

	c, rec := newTestContext(t, http.MethodGet, "/api/conferences/socrates-2026/sessions/s1/reservation", "",
		map[string]string{"conference": "socrates-2026", "session": "s1"})

	if err := getSessionReservation(store, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	var resp sessionReservationResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.Valid {
		t.Fatal("expected a valid reservation")
	}
	if resp.ExpiresAt == nil {
		t.Fatal("expected an expiry timestamp")
	}
	if want := joined.Add(domain.ReservationHold).UnixMilli(); *resp.ExpiresAt != want {
		t.Fatalf("expected expiry %d, got %d", want, *resp.ExpiresAt)
	}
}

func TestGetRoomLoadFailureReturns500AndLogs(t *testing.T) {
	store := newFakeStore()
	store.loadErr = errors.New("table storage unavailable")

	var logged bytes.Buffer
	logger := log.New()
	logger.SetOutput(&logged)

	c, rec := newTestContext(t, http.MethodGet, "/api/conferences/socrates-2026/rooms/single", "",
		map[string]string{"conference": "socrates-2026", "roomType": "single"})

	if err := getRoom(store, logger)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if !strings.Contains(logged.String(), "table storage unavailable") {
		t.Fatalf("expected the load error to reach the handler logger, got %q", logged.String())
	}
}

func TestRegistrationPublishesNotification(t *testing.T) {
	store := newFakeStore()
	store.seed(t, "socrates-2026", func(p *domain.CommandProcessor) {
		p.SetRoomQuota("single", 1)
	})
	locks := newLockRegistry()

	initNotificationSender(store, log.New())
	t.Cleanup(shutdownNotificationSender)

	c, rec := newTestContext(t, http.MethodPost, "/api/conferences/socrates-2026/participants",
		`{"roomType":"single","duration":"Sat","sessionId":"s1","memberId":"m1"}`,
		map[string]string{"conference": "socrates-2026"})

	if err := postParticipant(store, locks, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if ns := store.Notifications(); len(ns) == 1 {
			if ns[0].Event.Kind != domain.ParticipantRegistered {
				t.Fatalf("unexpected notification event: %s", ns[0].Event.Kind)
			}
			if ns[0].ConferenceID != "socrates-2026" || ns[0].ID == "" {
				t.Fatalf("unexpected notification envelope: %#v", ns[0])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("notification was never delivered")
}
