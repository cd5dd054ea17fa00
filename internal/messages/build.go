package messages

import "jauscore/component/internal/registry"

// Build returns a registry pre-populated with every message type this
// component implements. Registration happens once, explicitly, here —
// never through a package-level lazy-initialized global.
func Build() *registry.Registry {
	r := registry.New()

	r.MustRegister(registry.Descriptor{
		Code: CodeCreateServiceConnection, Name: "CreateServiceConnection", Kind: registry.KindCommand,
		New: func() registry.Message { return NewCreateServiceConnection() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeConfirmServiceConnection, Name: "ConfirmServiceConnection", Kind: registry.KindInform,
		New: func() registry.Message { return NewConfirmServiceConnection() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeActivateServiceConnection, Name: "ActivateServiceConnection", Kind: registry.KindCommand,
		New: func() registry.Message { return NewActivateServiceConnection() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeSuspendServiceConnection, Name: "SuspendServiceConnection", Kind: registry.KindCommand,
		New: func() registry.Message { return NewSuspendServiceConnection() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeTerminateServiceConnection, Name: "TerminateServiceConnection", Kind: registry.KindCommand,
		New: func() registry.Message { return NewTerminateServiceConnection() },
	})

	r.MustRegister(registry.Descriptor{
		Code: CodeCreateEventRequest, Name: "CreateEventRequest", Kind: registry.KindCommand,
		PairedCode: CodeConfirmEventRequest,
		New:        func() registry.Message { return NewCreateEventRequest() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeUpdateEvent, Name: "UpdateEvent", Kind: registry.KindCommand,
		PairedCode: CodeConfirmEventRequest,
		New:        func() registry.Message { return NewUpdateEvent() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeCancelEvent, Name: "CancelEvent", Kind: registry.KindCommand,
		New: func() registry.Message { return NewCancelEvent() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeConfirmEventRequest, Name: "ConfirmEventRequest", Kind: registry.KindInform,
		New: func() registry.Message { return NewConfirmEventRequest() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeRejectEventRequest, Name: "RejectEventRequest", Kind: registry.KindInform,
		New: func() registry.Message { return NewRejectEventRequest() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeEvent, Name: "Event", Kind: registry.KindEvent,
		New: func() registry.Message { return NewEvent() },
	})

	r.MustRegister(registry.Descriptor{
		Code: CodeQuerySubsystemList, Name: "QuerySubsystemList", Kind: registry.KindQuery,
		PairedCode: CodeReportSubsystemList,
		New:        func() registry.Message { return NewQuerySubsystemList() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeReportSubsystemList, Name: "ReportSubsystemList", Kind: registry.KindInform,
		PairedCode: CodeQuerySubsystemList,
		New:        func() registry.Message { return NewReportSubsystemList() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeQueryConfiguration, Name: "QueryConfiguration", Kind: registry.KindQuery,
		PairedCode: CodeReportConfiguration,
		New:        func() registry.Message { return NewQueryConfiguration() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeReportConfiguration, Name: "ReportConfiguration", Kind: registry.KindInform,
		PairedCode: CodeQueryConfiguration,
		New:        func() registry.Message { return NewReportConfiguration() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeQueryIdentification, Name: "QueryIdentification", Kind: registry.KindQuery,
		PairedCode: CodeReportIdentification,
		New:        func() registry.Message { return NewQueryIdentification() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeReportIdentification, Name: "ReportIdentification", Kind: registry.KindInform,
		PairedCode: CodeQueryIdentification,
		New:        func() registry.Message { return NewReportIdentification() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeQueryServices, Name: "QueryServices", Kind: registry.KindQuery,
		PairedCode: CodeReportServices,
		New:        func() registry.Message { return NewQueryServices() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeReportServices, Name: "ReportServices", Kind: registry.KindInform,
		PairedCode: CodeQueryServices,
		New:        func() registry.Message { return NewReportServices() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeReportHeartbeatPulse, Name: "ReportHeartbeatPulse", Kind: registry.KindInform,
		New: func() registry.Message { return NewReportHeartbeatPulse() },
	})

	r.MustRegister(registry.Descriptor{
		Code: CodeQueryGlobalPose, Name: "QueryGlobalPose", Kind: registry.KindQuery,
		PairedCode: CodeReportGlobalPose,
		New:        func() registry.Message { return NewQueryGlobalPose() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeReportGlobalPose, Name: "ReportGlobalPose", Kind: registry.KindInform,
		PairedCode: CodeQueryGlobalPose, PresenceVectorMask: PVGlobalPoseYaw<<1 - 1,
		New: func() registry.Message { return NewReportGlobalPose() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeQueryVelocityState, Name: "QueryVelocityState", Kind: registry.KindQuery,
		PairedCode: CodeReportVelocityState,
		New:        func() registry.Message { return NewQueryVelocityState() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeReportVelocityState, Name: "ReportVelocityState", Kind: registry.KindInform,
		PairedCode: CodeQueryVelocityState,
		New:        func() registry.Message { return NewReportVelocityState() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeQueryRangeScan, Name: "QueryRangeScan", Kind: registry.KindQuery,
		PairedCode: CodeReportRangeScan,
		New:        func() registry.Message { return NewQueryRangeScan() },
	})
	r.MustRegister(registry.Descriptor{
		Code: CodeReportRangeScan, Name: "ReportRangeScan", Kind: registry.KindInform,
		PairedCode: CodeQueryRangeScan,
		New:        func() registry.Message { return NewReportRangeScan() },
	})

	return r
}
