package apierrors

import "testing"

func TestWithRequestIDDoesNotMutateOriginal(t *testing.T) {
	base := Internal("boom")
	withID := base.WithRequestID("req-1")

	if base.RequestID != "" {
		t.Errorf("base.RequestID = %q, want empty (WithRequestID must not mutate receiver)", base.RequestID)
	}
	if withID.RequestID != "req-1" {
		t.Errorf("withID.RequestID = %q, want req-1", withID.RequestID)
	}
}

func TestErrorString(t *testing.T) {
	err := ValidationFailed("bad property")
	if err.Error() != "VALIDATION_FAILED: bad property" {
		t.Errorf("Error() = %q, unexpected", err.Error())
	}
}
