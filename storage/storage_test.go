package storage

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"socrates-registration/domain"
)

func sampleEventLog(t *testing.T) *domain.EventLog {
	t.Helper()
	eventLog := domain.NewEventLog("socrates-2026")
	p := domain.NewCommandProcessor(eventLog)
	p.SetRoomQuota("single", 2)
	p.IssueReservation("single", "Sat", "s1", "m1", time.Date(2026, 6, 5, 12, 0, 0, 0, time.UTC))
	return eventLog
}

func TestEventLogEntityRoundTrip(t *testing.T) {
	eventLog := sampleEventLog(t)

	payload, err := encodeEventLogEntity(eventLog)
	if err != nil {
		t.Fatalf("encode entity: %v", err)
	}

	var ent eventLogEntity
	if err := json.Unmarshal(payload, &ent); err != nil {
		t.Fatalf("unmarshal entity: %v", err)
	}
	if ent.PartitionKey != "socrates-2026" || ent.RowKey != eventLogRowKey {
		t.Fatalf("unexpected entity keys: %s/%s", ent.PartitionKey, ent.RowKey)
	}

	restored, err := decodeEventLogEntity(ent)
	if err != nil {
		t.Fatalf("decode entity: %v", err)
	}
	if !reflect.DeepEqual(restored, eventLog) {
		t.Fatalf("event log changed across entity round trip: %#v", restored)
	}
}

func TestClassifySaveError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"precondition failed", &azcore.ResponseError{StatusCode: 412}, ErrConflictingVersion},
		{"conflict", &azcore.ResponseError{StatusCode: 409}, ErrConflictingVersion},
		{"server error", &azcore.ResponseError{StatusCode: 500}, nil},
		{"plain error", errors.New("boom"), nil},
	}
	for _, tc := range cases {
		got := classifySaveError(tc.err)
		if tc.want != nil {
			if !errors.Is(got, tc.want) {
				t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
			}
			continue
		}
		if !errors.Is(got, tc.err) {
			t.Fatalf("%s: expected the original error back, got %v", tc.name, got)
		}
	}
}
