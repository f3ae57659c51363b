package domain

import "encoding/json"

// EventLog is the aggregate root for one conference: two ordered, append-only
// event streams. It holds no business logic; its only contract is
// insertion-order preservation. The command processor is the sole writer.
type EventLog struct {
	ConferenceID       string  `json:"conferenceId"`
	ConfigEvents       []Event `json:"configEvents"`
	RegistrationEvents []Event `json:"registrationEvents"`
}

// NewEventLog returns the empty log a conference starts with when its
// registration subsystem is first touched.
func NewEventLog(conferenceID string) *EventLog {
	return &EventLog{
		ConferenceID:       conferenceID,
		ConfigEvents:       []Event{},
		RegistrationEvents: []Event{},
	}
}

func (l *EventLog) AppendConfig(ev Event) {
	l.ConfigEvents = append(l.ConfigEvents, ev)
}

func (l *EventLog) AppendRegistration(ev Event) {
	l.RegistrationEvents = append(l.RegistrationEvents, ev)
}

// LastRegistrationEvent returns the most recently appended registration event,
// which is how callers inspect the outcome of a command.
func (l *EventLog) LastRegistrationEvent() (Event, bool) {
	if len(l.RegistrationEvents) == 0 {
		return Event{}, false
	}
	return l.RegistrationEvents[len(l.RegistrationEvents)-1], true
}

// EncodeEventLog serializes the aggregate to its document form.
func EncodeEventLog(l *EventLog) ([]byte, error) {
	return json.Marshal(l)
}

// DecodeEventLog restores an aggregate from its document form.
func DecodeEventLog(data []byte) (*EventLog, error) {
	var l EventLog
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	if l.ConfigEvents == nil {
		l.ConfigEvents = []Event{}
	}
	if l.RegistrationEvents == nil {
		l.RegistrationEvents = []Event{}
	}
	return &l, nil
}
