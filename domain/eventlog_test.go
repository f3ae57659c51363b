package domain

import (
	"reflect"
	"testing"
	"time"
)

func TestEventLogRoundTrip(t *testing.T) {
	p, eventLog := newProcessor()
	p.SetRoomQuota("single", 2)
	p.SetRoomQuota("junior", 1)
	p.IssueReservation("single", "Sat", "s1", "m1", t0)
	p.RegisterParticipant("single", "Sat", "s1", "m1", t0.Add(5*time.Minute))
	p.RegisterWaitlistParticipant([]string{"single", "junior"}, "s2", "m2", t0.Add(6*time.Minute))
	p.IssueReservation("junior", "Sun", "s3", "m3", t0.Add(7*time.Minute))

	data, err := EncodeEventLog(eventLog)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	restored, err := DecodeEventLog(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if restored.ConferenceID != eventLog.ConferenceID {
		t.Fatalf("conference id changed: %q", restored.ConferenceID)
	}
	if !reflect.DeepEqual(restored.ConfigEvents, eventLog.ConfigEvents) {
		t.Fatalf("config events changed: %#v", restored.ConfigEvents)
	}
	if !reflect.DeepEqual(restored.RegistrationEvents, eventLog.RegistrationEvents) {
		t.Fatalf("registration events changed: %#v", restored.RegistrationEvents)
	}

	now := t0.Add(8 * time.Minute)
	got := NewWriteModel(restored, now)
	want := NewWriteModel(eventLog, now)
	if !reflect.DeepEqual(got.ReservationsBySession(), want.ReservationsBySession()) {
		t.Fatal("reservations projection differs after round trip")
	}
	if !reflect.DeepEqual(got.ParticipantsByMember(), want.ParticipantsByMember()) {
		t.Fatal("participants projection differs after round trip")
	}
	if !reflect.DeepEqual(got.WaitlistParticipantsByMember(), want.WaitlistParticipantsByMember()) {
		t.Fatal("waitlist projection differs after round trip")
	}
	if !reflect.DeepEqual(got.OccupantsOf("single"), want.OccupantsOf("single")) {
		t.Fatal("occupants projection differs after round trip")
	}
	gotQuota, gotOK := got.QuotaFor("junior")
	wantQuota, wantOK := want.QuotaFor("junior")
	if gotQuota != wantQuota || gotOK != wantOK {
		t.Fatalf("quota differs after round trip: %d/%v vs %d/%v", gotQuota, gotOK, wantQuota, wantOK)
	}
}

func TestDecodeEventLogInitializesStreams(t *testing.T) {
	restored, err := DecodeEventLog([]byte(`{"conferenceId":"socrates-2026"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if restored.ConfigEvents == nil || restored.RegistrationEvents == nil {
		t.Fatal("expected empty streams, not nil")
	}
}

func TestLastRegistrationEvent(t *testing.T) {
	p, eventLog := newProcessor()
	if _, ok := eventLog.LastRegistrationEvent(); ok {
		t.Fatal("expected no last event on an empty log")
	}
	p.SetRoomQuota("single", 1)
	p.IssueReservation("single", "Sat", "s1", "m1", t0)
	last, ok := eventLog.LastRegistrationEvent()
	if !ok || last.Kind != ReservationIssued {
		t.Fatalf("unexpected last event: %v (ok=%v)", last.Kind, ok)
	}
}
