package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"socrates-registration/domain"
)

// ErrConflictingVersion indicates that another writer saved the aggregate
// after it was loaded. The caller must reload, re-decide and resubmit; the
// save is never retried with stale state.
var ErrConflictingVersion = errors.New("conflicting aggregate version")

const eventLogRowKey = "eventlog"

// Storage persists one versioned event-log document per conference in table
// storage and publishes notification messages to a queue.
type Storage struct {
	registrationTable *aztables.Client
	notificationQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, registrationTable, notificationQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	nq, err := azqueue.NewQueueClientFromConnectionString(connStr, notificationQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{registrationTable: svc.NewClient(registrationTable), notificationQueue: nq}, nil
}

type eventLogEntity struct {
	aztables.Entity
	Data string `json:"Data"`
}

// Load fetches the event log for a conference together with the version tag
// the matching Save must carry. A conference that was never touched yields a
// fresh empty log and an empty version.
func (s *Storage) Load(ctx context.Context, conferenceID string) (*domain.EventLog, string, error) {
	resp, err := s.registrationTable.GetEntity(ctx, conferenceID, eventLogRowKey, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return domain.NewEventLog(conferenceID), "", nil
		}
		return nil, "", err
	}
	var ent eventLogEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, "", err
	}
	eventLog, err := decodeEventLogEntity(ent)
	if err != nil {
		return nil, "", err
	}
	return eventLog, string(resp.ETag), nil
}

// Save writes the aggregate document back under optimistic concurrency. An
// empty version inserts; otherwise the stored version must still match. It
// returns the new version on success and ErrConflictingVersion when another
// writer got there first.
func (s *Storage) Save(ctx context.Context, eventLog *domain.EventLog, version string) (string, error) {
	payload, err := encodeEventLogEntity(eventLog)
	if err != nil {
		return "", err
	}
	if version == "" {
		resp, err := s.registrationTable.AddEntity(ctx, payload, nil)
		if err != nil {
			return "", classifySaveError(err)
		}
		return string(resp.ETag), nil
	}
	etag := azcore.ETag(version)
	resp, err := s.registrationTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &etag,
		UpdateMode: aztables.UpdateModeReplace,
	})
	if err != nil {
		return "", classifySaveError(err)
	}
	return string(resp.ETag), nil
}

func classifySaveError(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusConflict, http.StatusPreconditionFailed:
			return ErrConflictingVersion
		}
	}
	return err
}

func encodeEventLogEntity(eventLog *domain.EventLog) ([]byte, error) {
	doc, err := domain.EncodeEventLog(eventLog)
	if err != nil {
		return nil, err
	}
	ent := eventLogEntity{
		Entity: aztables.Entity{PartitionKey: eventLog.ConferenceID, RowKey: eventLogRowKey},
		Data:   string(doc),
	}
	return json.Marshal(ent)
}

func decodeEventLogEntity(ent eventLogEntity) (*domain.EventLog, error) {
	return domain.DecodeEventLog([]byte(ent.Data))
}

// Notification is the message handed to the mail service when a success event
// warrants one.
type Notification struct {
	ID           string       `json:"id"`
	ConferenceID string       `json:"conferenceId"`
	Event        domain.Event `json:"event"`
}

// EnqueueNotification publishes a notification message for the mail service.
func (s *Storage) EnqueueNotification(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = s.notificationQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}
