package messages

import "jauscore/component/internal/wire"

// Scaling ranges for the sensor report fields below follow the JAUS
// reference architecture's standard bounds for these quantities (latitude
// +/-90 deg, longitude +/-180 deg, elevation -10000..35000 m, attitude
// +/-pi rad, velocity +/-327 m/s, range 0..65 m); the retrieved reference
// sources only carry the sensor *service* classes
// (original_source/1.0/include/jaus/services/{globalposesensor,
// velocitystatesensor,rangesensor}.h), not the report/query message bodies,
// so these bounds are this component's own restatement of the well known
// JAUS RA scaling conventions rather than a verbatim transcription.
const (
	latBound     = 90.0
	lonBound     = 180.0
	elevLoBound  = -10000.0
	elevHiBound  = 35000.0
	attitudeBound = 3.14159265358979
	velocityBound = 327.0
	rangeBound    = 65.0
)

// presenceVector bits for ReportGlobalPose's optional fields.
const (
	PVGlobalPoseLatitude uint32 = 1 << iota
	PVGlobalPoseLongitude
	PVGlobalPoseElevation
	PVGlobalPoseRoll
	PVGlobalPosePitch
	PVGlobalPoseYaw
)

// QueryGlobalPose requests the subset of pose fields named by
// PresenceVector; a zero vector requests every field.
type QueryGlobalPose struct {
	PresenceVector uint32
}

func NewQueryGlobalPose() *QueryGlobalPose  { return &QueryGlobalPose{} }
func (m *QueryGlobalPose) CommandCode() uint16 { return CodeQueryGlobalPose }

func (m *QueryGlobalPose) Encode() ([]byte, error) {
	buf := make([]byte, 4)
	putU32(buf, m.PresenceVector)
	return buf, nil
}

func (m *QueryGlobalPose) Decode(body []byte) error {
	if len(body) < 4 {
		return ErrShortBody
	}
	m.PresenceVector = getU32(body)
	return nil
}

// ReportGlobalPose carries a platform's global position and attitude,
// scaled-integer encoded per field.
type ReportGlobalPose struct {
	PresenceVector       uint32
	LatitudeDegrees      float64
	LongitudeDegrees     float64
	ElevationMeters      float64
	RollRadians          float64
	PitchRadians         float64
	YawRadians           float64
}

func NewReportGlobalPose() *ReportGlobalPose { return &ReportGlobalPose{} }
func (m *ReportGlobalPose) CommandCode() uint16 { return CodeReportGlobalPose }

func (m *ReportGlobalPose) Encode() ([]byte, error) {
	buf := make([]byte, 4+6*4)
	putU32(buf[0:4], m.PresenceVector)
	off := 4
	wire.PutScaled(buf[off:], m.LatitudeDegrees, -latBound, latBound, wire.ScaledInt)
	off += 4
	wire.PutScaled(buf[off:], m.LongitudeDegrees, -lonBound, lonBound, wire.ScaledInt)
	off += 4
	wire.PutScaled(buf[off:], m.ElevationMeters, elevLoBound, elevHiBound, wire.ScaledInt)
	off += 4
	wire.PutScaled(buf[off:], m.RollRadians, -attitudeBound, attitudeBound, wire.ScaledInt)
	off += 4
	wire.PutScaled(buf[off:], m.PitchRadians, -attitudeBound, attitudeBound, wire.ScaledInt)
	off += 4
	wire.PutScaled(buf[off:], m.YawRadians, -attitudeBound, attitudeBound, wire.ScaledInt)
	return buf, nil
}

func (m *ReportGlobalPose) Decode(body []byte) error {
	if len(body) < 4+6*4 {
		return ErrShortBody
	}
	m.PresenceVector = getU32(body[0:4])
	off := 4
	m.LatitudeDegrees = wire.ReadScaled(body[off:], -latBound, latBound, wire.ScaledInt)
	off += 4
	m.LongitudeDegrees = wire.ReadScaled(body[off:], -lonBound, lonBound, wire.ScaledInt)
	off += 4
	m.ElevationMeters = wire.ReadScaled(body[off:], elevLoBound, elevHiBound, wire.ScaledInt)
	off += 4
	m.RollRadians = wire.ReadScaled(body[off:], -attitudeBound, attitudeBound, wire.ScaledInt)
	off += 4
	m.PitchRadians = wire.ReadScaled(body[off:], -attitudeBound, attitudeBound, wire.ScaledInt)
	off += 4
	m.YawRadians = wire.ReadScaled(body[off:], -attitudeBound, attitudeBound, wire.ScaledInt)
	return nil
}

// QueryVelocityState requests a platform's linear/angular velocity report.
type QueryVelocityState struct {
	PresenceVector uint32
}

func NewQueryVelocityState() *QueryVelocityState  { return &QueryVelocityState{} }
func (m *QueryVelocityState) CommandCode() uint16 { return CodeQueryVelocityState }

func (m *QueryVelocityState) Encode() ([]byte, error) {
	buf := make([]byte, 4)
	putU32(buf, m.PresenceVector)
	return buf, nil
}

func (m *QueryVelocityState) Decode(body []byte) error {
	if len(body) < 4 {
		return ErrShortBody
	}
	m.PresenceVector = getU32(body)
	return nil
}

// ReportVelocityState carries a platform's velocity vector and yaw rate.
type ReportVelocityState struct {
	PresenceVector uint32
	VelocityX      float64
	VelocityY      float64
	VelocityZ      float64
	YawRateRadiansPerSec float64
}

func NewReportVelocityState() *ReportVelocityState { return &ReportVelocityState{} }
func (m *ReportVelocityState) CommandCode() uint16  { return CodeReportVelocityState }

func (m *ReportVelocityState) Encode() ([]byte, error) {
	buf := make([]byte, 4+4*4)
	putU32(buf[0:4], m.PresenceVector)
	off := 4
	wire.PutScaled(buf[off:], m.VelocityX, -velocityBound, velocityBound, wire.ScaledInt)
	off += 4
	wire.PutScaled(buf[off:], m.VelocityY, -velocityBound, velocityBound, wire.ScaledInt)
	off += 4
	wire.PutScaled(buf[off:], m.VelocityZ, -velocityBound, velocityBound, wire.ScaledInt)
	off += 4
	wire.PutScaled(buf[off:], m.YawRateRadiansPerSec, -attitudeBound, attitudeBound, wire.ScaledInt)
	return buf, nil
}

func (m *ReportVelocityState) Decode(body []byte) error {
	if len(body) < 4+4*4 {
		return ErrShortBody
	}
	m.PresenceVector = getU32(body[0:4])
	off := 4
	m.VelocityX = wire.ReadScaled(body[off:], -velocityBound, velocityBound, wire.ScaledInt)
	off += 4
	m.VelocityY = wire.ReadScaled(body[off:], -velocityBound, velocityBound, wire.ScaledInt)
	off += 4
	m.VelocityZ = wire.ReadScaled(body[off:], -velocityBound, velocityBound, wire.ScaledInt)
	off += 4
	m.YawRateRadiansPerSec = wire.ReadScaled(body[off:], -attitudeBound, attitudeBound, wire.ScaledInt)
	return nil
}

// QueryRangeScan requests the most recent range-sensor scan.
type QueryRangeScan struct{}

func NewQueryRangeScan() *QueryRangeScan        { return &QueryRangeScan{} }
func (m *QueryRangeScan) CommandCode() uint16   { return CodeQueryRangeScan }
func (m *QueryRangeScan) Encode() ([]byte, error) { return nil, nil }
func (m *QueryRangeScan) Decode(body []byte) error { return nil }

// ReportRangeScan carries a fixed-step angular range scan: RangesMeters[i]
// is the measured distance at angle StartAngleRadians + i*StepRadians.
type ReportRangeScan struct {
	StartAngleRadians float64
	StepRadians       float64
	RangesMeters      []float64
}

func NewReportRangeScan() *ReportRangeScan { return &ReportRangeScan{} }
func (m *ReportRangeScan) CommandCode() uint16 { return CodeReportRangeScan }

func (m *ReportRangeScan) Encode() ([]byte, error) {
	buf := make([]byte, 4+4+2+2*len(m.RangesMeters))
	wire.PutScaled(buf[0:], m.StartAngleRadians, -attitudeBound, attitudeBound, wire.ScaledInt)
	wire.PutScaled(buf[4:], m.StepRadians, -attitudeBound, attitudeBound, wire.ScaledInt)
	putU16(buf[8:10], uint16(len(m.RangesMeters)))
	for i, r := range m.RangesMeters {
		wire.PutScaled(buf[10+2*i:], r, 0, rangeBound, wire.ScaledUShort)
	}
	return buf, nil
}

func (m *ReportRangeScan) Decode(body []byte) error {
	if len(body) < 10 {
		return ErrShortBody
	}
	m.StartAngleRadians = wire.ReadScaled(body[0:], -attitudeBound, attitudeBound, wire.ScaledInt)
	m.StepRadians = wire.ReadScaled(body[4:], -attitudeBound, attitudeBound, wire.ScaledInt)
	n := int(getU16(body[8:10]))
	if len(body) < 10+2*n {
		return ErrShortBody
	}
	ranges := make([]float64, n)
	for i := 0; i < n; i++ {
		ranges[i] = wire.ReadScaled(body[10+2*i:], 0, rangeBound, wire.ScaledUShort)
	}
	m.RangesMeters = ranges
	return nil
}
