package messages

// CreateServiceConnection requests a new service connection from the
// receiving component, subscribing the sender to periodic reports of the
// given message type at the given rate.
//
// Grounded on original_source/1.0/include/jaus/messages/command/core/createserviceconnection.h:
// command code, desired update rate and presence vector fields, carried
// fixed-layout instead of the C++ class's getter/setter pair.
type CreateServiceConnection struct {
	MessageCode     uint16
	PeriodicRateHz  float64
	PresenceVector  uint32
}

func NewCreateServiceConnection() *CreateServiceConnection { return &CreateServiceConnection{} }

func (m *CreateServiceConnection) CommandCode() uint16 { return CodeCreateServiceConnection }

func (m *CreateServiceConnection) Encode() ([]byte, error) {
	buf := make([]byte, 8)
	putU16(buf[0:2], m.MessageCode)
	rate := uint16(clampRate(m.PeriodicRateHz) * 16.0)
	putU16(buf[2:4], rate)
	putU32(buf[4:8], m.PresenceVector)
	return buf, nil
}

func (m *CreateServiceConnection) Decode(body []byte) error {
	if len(body) < 8 {
		return ErrShortBody
	}
	m.MessageCode = getU16(body[0:2])
	m.PeriodicRateHz = float64(getU16(body[2:4])) / 16.0
	m.PresenceVector = getU32(body[4:8])
	return nil
}

func clampRate(hz float64) float64 {
	const max = 1092.0
	switch {
	case hz < 0:
		return 0
	case hz > max:
		return max
	default:
		return hz
	}
}

// ConfirmServiceConnection is the provider's reply to CreateServiceConnection,
// carrying the instance ID assigned to the new connection and the actual
// confirmed rate, which may be lower than requested.
type ConfirmServiceConnection struct {
	MessageCode    uint16
	InstanceID     uint8
	ConfirmedRate  float64
	ResponseCode   uint8
}

func NewConfirmServiceConnection() *ConfirmServiceConnection { return &ConfirmServiceConnection{} }

func (m *ConfirmServiceConnection) CommandCode() uint16 { return CodeConfirmServiceConnection }

func (m *ConfirmServiceConnection) Encode() ([]byte, error) {
	buf := make([]byte, 6)
	putU16(buf[0:2], m.MessageCode)
	buf[2] = m.InstanceID
	putU16(buf[3:5], uint16(clampRate(m.ConfirmedRate)*16.0))
	buf[5] = m.ResponseCode
	return buf, nil
}

func (m *ConfirmServiceConnection) Decode(body []byte) error {
	if len(body) < 6 {
		return ErrShortBody
	}
	m.MessageCode = getU16(body[0:2])
	m.InstanceID = body[2]
	m.ConfirmedRate = float64(getU16(body[3:5])) / 16.0
	m.ResponseCode = body[5]
	return nil
}

// ConfirmServiceConnection response codes.
const (
	SCResponseCreated            uint8 = 0
	SCResponseUnsupportedMessage uint8 = 1
	SCResponseInsufficientRate   uint8 = 2
	SCResponseTableFull          uint8 = 3
)

// ActivateServiceConnection, SuspendServiceConnection and
// TerminateServiceConnection all share the same fixed (message code,
// instance ID) layout: they act on an already-established connection rather
// than negotiating a new one.
type scAction struct {
	MessageCode uint16
	InstanceID  uint8
}

func (m *scAction) Encode() ([]byte, error) {
	buf := make([]byte, 3)
	putU16(buf[0:2], m.MessageCode)
	buf[2] = m.InstanceID
	return buf, nil
}

func (m *scAction) Decode(body []byte) error {
	if len(body) < 3 {
		return ErrShortBody
	}
	m.MessageCode = getU16(body[0:2])
	m.InstanceID = body[2]
	return nil
}

type ActivateServiceConnection struct{ scAction }

func NewActivateServiceConnection() *ActivateServiceConnection { return &ActivateServiceConnection{} }
func (m *ActivateServiceConnection) CommandCode() uint16       { return CodeActivateServiceConnection }

type SuspendServiceConnection struct{ scAction }

func NewSuspendServiceConnection() *SuspendServiceConnection { return &SuspendServiceConnection{} }
func (m *SuspendServiceConnection) CommandCode() uint16      { return CodeSuspendServiceConnection }

type TerminateServiceConnection struct{ scAction }

func NewTerminateServiceConnection() *TerminateServiceConnection {
	return &TerminateServiceConnection{}
}
func (m *TerminateServiceConnection) CommandCode() uint16 { return CodeTerminateServiceConnection }
