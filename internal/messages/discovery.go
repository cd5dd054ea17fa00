package messages

import "jauscore/component/internal/wire"

// QuerySubsystemList has no body: it simply asks the node manager for every
// subsystem ID it currently knows about.
type QuerySubsystemList struct{}

func NewQuerySubsystemList() *QuerySubsystemList   { return &QuerySubsystemList{} }
func (m *QuerySubsystemList) CommandCode() uint16  { return CodeQuerySubsystemList }
func (m *QuerySubsystemList) Encode() ([]byte, error) { return nil, nil }
func (m *QuerySubsystemList) Decode(body []byte) error { return nil }

// ReportSubsystemList enumerates every subsystem ID visible to the
// reporting node manager.
type ReportSubsystemList struct {
	SubsystemIDs []byte
}

func NewReportSubsystemList() *ReportSubsystemList { return &ReportSubsystemList{} }
func (m *ReportSubsystemList) CommandCode() uint16 { return CodeReportSubsystemList }

func (m *ReportSubsystemList) Encode() ([]byte, error) {
	buf := make([]byte, 1+len(m.SubsystemIDs))
	buf[0] = byte(len(m.SubsystemIDs))
	copy(buf[1:], m.SubsystemIDs)
	return buf, nil
}

func (m *ReportSubsystemList) Decode(body []byte) error {
	if len(body) < 1 {
		return ErrShortBody
	}
	n := int(body[0])
	if len(body) < 1+n {
		return ErrShortBody
	}
	m.SubsystemIDs = append([]byte(nil), body[1:1+n]...)
	return nil
}

// QueryConfiguration asks a node manager for its component layout.
type QueryConfiguration struct{}

func NewQueryConfiguration() *QueryConfiguration    { return &QueryConfiguration{} }
func (m *QueryConfiguration) CommandCode() uint16   { return CodeQueryConfiguration }
func (m *QueryConfiguration) Encode() ([]byte, error) { return nil, nil }
func (m *QueryConfiguration) Decode(body []byte) error { return nil }

// ReportConfiguration enumerates every (node, component, instance) triple
// present in the reporting subsystem.
//
// Grounded on original_source's Configuration::Subsystem member of
// common/platform/platform.h, flattened into a plain address slice instead
// of a nested node/component tree class.
type ReportConfiguration struct {
	Components []wire.Address
}

func NewReportConfiguration() *ReportConfiguration { return &ReportConfiguration{} }
func (m *ReportConfiguration) CommandCode() uint16  { return CodeReportConfiguration }

func (m *ReportConfiguration) Encode() ([]byte, error) {
	buf := make([]byte, 1+4*len(m.Components))
	buf[0] = byte(len(m.Components))
	for i, a := range m.Components {
		copy(buf[1+4*i:], putAddress(a))
	}
	return buf, nil
}

func (m *ReportConfiguration) Decode(body []byte) error {
	if len(body) < 1 {
		return ErrShortBody
	}
	n := int(body[0])
	if len(body) < 1+4*n {
		return ErrShortBody
	}
	m.Components = make([]wire.Address, n)
	for i := 0; i < n; i++ {
		m.Components[i] = getAddress(body[1+4*i:])
	}
	return nil
}

// QueryIdentification requests a human-readable identity string at the
// given level (subsystem, node or component).
type QueryIdentification struct {
	Type uint8
}

func NewQueryIdentification() *QueryIdentification { return &QueryIdentification{} }
func (m *QueryIdentification) CommandCode() uint16  { return CodeQueryIdentification }

func (m *QueryIdentification) Encode() ([]byte, error) { return []byte{m.Type}, nil }

func (m *QueryIdentification) Decode(body []byte) error {
	if len(body) < 1 {
		return ErrShortBody
	}
	m.Type = body[0]
	return nil
}

// Identification levels queryable via QueryIdentification.
const (
	IdentificationSubsystem uint8 = 0
	IdentificationNode      uint8 = 1
	IdentificationComponent uint8 = 2
)

// ReportIdentification answers QueryIdentification.
type ReportIdentification struct {
	Type       uint8
	Authority  uint8
	Identity   string
}

func NewReportIdentification() *ReportIdentification { return &ReportIdentification{} }
func (m *ReportIdentification) CommandCode() uint16   { return CodeReportIdentification }

func (m *ReportIdentification) Encode() ([]byte, error) {
	buf := make([]byte, 0, 2+2+len(m.Identity))
	buf = append(buf, m.Type, m.Authority)
	buf = append(buf, putString(m.Identity)...)
	return buf, nil
}

func (m *ReportIdentification) Decode(body []byte) error {
	if len(body) < 2 {
		return ErrShortBody
	}
	m.Type = body[0]
	m.Authority = body[1]
	s, _, err := readString(body[2:])
	if err != nil {
		return err
	}
	m.Identity = s
	return nil
}

// QueryServices asks a component to enumerate the services it implements.
type QueryServices struct{}

func NewQueryServices() *QueryServices        { return &QueryServices{} }
func (m *QueryServices) CommandCode() uint16  { return CodeQueryServices }
func (m *QueryServices) Encode() ([]byte, error) { return nil, nil }
func (m *QueryServices) Decode(body []byte) error { return nil }

// ReportServices answers QueryServices with the set of service identifiers
// the component implements.
type ReportServices struct {
	Services []string
}

func NewReportServices() *ReportServices { return &ReportServices{} }
func (m *ReportServices) CommandCode() uint16 { return CodeReportServices }

func (m *ReportServices) Encode() ([]byte, error) {
	buf := []byte{byte(len(m.Services))}
	for _, s := range m.Services {
		buf = append(buf, putString(s)...)
	}
	return buf, nil
}

func (m *ReportServices) Decode(body []byte) error {
	if len(body) < 1 {
		return ErrShortBody
	}
	n := int(body[0])
	rest := body[1:]
	services := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, consumed, err := readString(rest)
		if err != nil {
			return err
		}
		services = append(services, s)
		rest = rest[consumed:]
	}
	m.Services = services
	return nil
}

// ReportHeartbeatPulse carries no data; its arrival alone signals liveness.
type ReportHeartbeatPulse struct{}

func NewReportHeartbeatPulse() *ReportHeartbeatPulse { return &ReportHeartbeatPulse{} }
func (m *ReportHeartbeatPulse) CommandCode() uint16  { return CodeReportHeartbeatPulse }
func (m *ReportHeartbeatPulse) Encode() ([]byte, error) { return nil, nil }
func (m *ReportHeartbeatPulse) Decode(body []byte) error { return nil }
