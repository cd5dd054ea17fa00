package messages

// Event type codes describe the trigger condition a subscriber asked for.
const (
	EventTypePeriodic    uint8 = 0
	EventTypeEveryChange uint8 = 1
	EventTypeFirstChange uint8 = 2
)

// Event request/confirm response codes.
const (
	EventResponseCreated             uint8 = 0
	EventResponseUnsupportedMessage  uint8 = 1
	EventResponseInsufficientRate    uint8 = 2
	EventResponseConditionsNotMet    uint8 = 3
	EventResponseTableFull           uint8 = 4
)

// CreateEventRequest asks a component to produce an Event envelope whenever
// MessageCode's value satisfies EventType's trigger condition.
type CreateEventRequest struct {
	RequestID      uint8
	EventType      uint8
	MessageCode    uint16
	RequestedRate  float64
	PresenceVector uint32
}

func NewCreateEventRequest() *CreateEventRequest { return &CreateEventRequest{} }
func (m *CreateEventRequest) CommandCode() uint16 { return CodeCreateEventRequest }

func (m *CreateEventRequest) Encode() ([]byte, error) {
	buf := make([]byte, 10)
	buf[0] = m.RequestID
	buf[1] = m.EventType
	putU16(buf[2:4], m.MessageCode)
	putU16(buf[4:6], uint16(clampRate(m.RequestedRate)*16.0))
	putU32(buf[6:10], m.PresenceVector)
	return buf, nil
}

func (m *CreateEventRequest) Decode(body []byte) error {
	if len(body) < 10 {
		return ErrShortBody
	}
	m.RequestID = body[0]
	m.EventType = body[1]
	m.MessageCode = getU16(body[2:4])
	m.RequestedRate = float64(getU16(body[4:6])) / 16.0
	m.PresenceVector = getU32(body[6:10])
	return nil
}

// UpdateEvent revises the trigger condition or rate of an already-confirmed
// event, identified by EventID.
type UpdateEvent struct {
	EventID        uint8
	EventType      uint8
	MessageCode    uint16
	RequestedRate  float64
	PresenceVector uint32
}

func NewUpdateEvent() *UpdateEvent  { return &UpdateEvent{} }
func (m *UpdateEvent) CommandCode() uint16 { return CodeUpdateEvent }

func (m *UpdateEvent) Encode() ([]byte, error) {
	buf := make([]byte, 10)
	buf[0] = m.EventID
	buf[1] = m.EventType
	putU16(buf[2:4], m.MessageCode)
	putU16(buf[4:6], uint16(clampRate(m.RequestedRate)*16.0))
	putU32(buf[6:10], m.PresenceVector)
	return buf, nil
}

func (m *UpdateEvent) Decode(body []byte) error {
	if len(body) < 10 {
		return ErrShortBody
	}
	m.EventID = body[0]
	m.EventType = body[1]
	m.MessageCode = getU16(body[2:4])
	m.RequestedRate = float64(getU16(body[4:6])) / 16.0
	m.PresenceVector = getU32(body[6:10])
	return nil
}

// CancelEvent tears down a previously confirmed event.
type CancelEvent struct {
	EventID     uint8
	MessageCode uint16
}

func NewCancelEvent() *CancelEvent  { return &CancelEvent{} }
func (m *CancelEvent) CommandCode() uint16 { return CodeCancelEvent }

func (m *CancelEvent) Encode() ([]byte, error) {
	buf := make([]byte, 3)
	buf[0] = m.EventID
	putU16(buf[1:3], m.MessageCode)
	return buf, nil
}

func (m *CancelEvent) Decode(body []byte) error {
	if len(body) < 3 {
		return ErrShortBody
	}
	m.EventID = body[0]
	m.MessageCode = getU16(body[1:3])
	return nil
}

// ConfirmEventRequest is the provider's affirmative reply to
// CreateEventRequest or UpdateEvent, assigning an EventID.
type ConfirmEventRequest struct {
	RequestID     uint8
	EventID       uint8
	ConfirmedRate float64
}

func NewConfirmEventRequest() *ConfirmEventRequest { return &ConfirmEventRequest{} }
func (m *ConfirmEventRequest) CommandCode() uint16 { return CodeConfirmEventRequest }

func (m *ConfirmEventRequest) Encode() ([]byte, error) {
	buf := make([]byte, 4)
	buf[0] = m.RequestID
	buf[1] = m.EventID
	putU16(buf[2:4], uint16(clampRate(m.ConfirmedRate)*16.0))
	return buf, nil
}

func (m *ConfirmEventRequest) Decode(body []byte) error {
	if len(body) < 4 {
		return ErrShortBody
	}
	m.RequestID = body[0]
	m.EventID = body[1]
	m.ConfirmedRate = float64(getU16(body[2:4])) / 16.0
	return nil
}

// RejectEventRequest is the provider's negative reply, carrying a response
// code and a short human-readable reason.
type RejectEventRequest struct {
	RequestID    uint8
	ResponseCode uint8
	ErrorMessage string
}

func NewRejectEventRequest() *RejectEventRequest { return &RejectEventRequest{} }
func (m *RejectEventRequest) CommandCode() uint16 { return CodeRejectEventRequest }

func (m *RejectEventRequest) Encode() ([]byte, error) {
	buf := make([]byte, 0, 2+2+len(m.ErrorMessage))
	buf = append(buf, m.RequestID, m.ResponseCode)
	buf = append(buf, putString(m.ErrorMessage)...)
	return buf, nil
}

func (m *RejectEventRequest) Decode(body []byte) error {
	if len(body) < 2 {
		return ErrShortBody
	}
	m.RequestID = body[0]
	m.ResponseCode = body[1]
	msg, _, err := readString(body[2:])
	if err != nil {
		return err
	}
	m.ErrorMessage = msg
	return nil
}

// Event is the envelope a provider sends for every triggered subscription:
// EventID identifies which subscription fired, SequenceNumber increments per
// delivery so a subscriber can detect loss, and ReportBody carries the
// encoded report message itself.
type Event struct {
	EventID        uint8
	SequenceNumber uint8
	ReportBody     []byte
}

func NewEvent() *Event          { return &Event{} }
func (m *Event) CommandCode() uint16 { return CodeEvent }

func (m *Event) Encode() ([]byte, error) {
	buf := make([]byte, 2+len(m.ReportBody))
	buf[0] = m.EventID
	buf[1] = m.SequenceNumber
	copy(buf[2:], m.ReportBody)
	return buf, nil
}

func (m *Event) Decode(body []byte) error {
	if len(body) < 2 {
		return ErrShortBody
	}
	m.EventID = body[0]
	m.SequenceNumber = body[1]
	m.ReportBody = append([]byte(nil), body[2:]...)
	return nil
}
