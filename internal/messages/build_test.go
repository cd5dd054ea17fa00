package messages

import "testing"

func TestBuildRegistersEveryMessage(t *testing.T) {
	r := Build()
	if r.Len() != 26 {
		t.Fatalf("expected 26 registered message types, got %d", r.Len())
	}
}

func TestBuildPairsQueryAndInform(t *testing.T) {
	r := Build()
	paired, ok := r.PairedCode(CodeQueryGlobalPose)
	if !ok || paired != CodeReportGlobalPose {
		t.Fatalf("QueryGlobalPose pairing = (%x, %v), want (%x, true)", paired, ok, CodeReportGlobalPose)
	}

	back, ok := r.PairedCode(CodeReportGlobalPose)
	if !ok || back != CodeQueryGlobalPose {
		t.Fatalf("ReportGlobalPose pairing = (%x, %v), want (%x, true)", back, ok, CodeQueryGlobalPose)
	}
}

func TestBuildConstructsFreshMessages(t *testing.T) {
	r := Build()
	msg, err := r.NewMessage(CodeCreateServiceConnection)
	if err != nil {
		t.Fatalf("NewMessage returned error: %v", err)
	}
	if msg.CommandCode() != CodeCreateServiceConnection {
		t.Fatalf("unexpected command code: %x", msg.CommandCode())
	}
}
