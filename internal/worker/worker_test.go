package worker

import (
	"testing"

	"github.com/technosupport/cashvision/internal/model"
)

func TestFrameHandle_GetBeforeSetReturnsNil(t *testing.T) {
	var h FrameHandle
	if got := h.Get(); got != nil {
		t.Fatalf("expected nil before any frame published, got %v", got)
	}
}

func TestFrameHandle_SetThenGetReturnsCopy(t *testing.T) {
	var h FrameHandle
	h.set([]byte{1, 2, 3})

	got := h.Get()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected frame bytes: %v", got)
	}

	got[0] = 99
	if h.Get()[0] != 1 {
		t.Fatal("Get must return a copy, not a view into internal state")
	}
}

func TestStatus_ReflectsInitialState(t *testing.T) {
	w := New(model.CameraConfig{CameraID: "cam-1"}, -1, nil, nil)
	status := w.Status()
	if status.CameraID != "cam-1" {
		t.Fatalf("expected camera id cam-1, got %s", status.CameraID)
	}
	if status.State != model.WorkerStarting {
		t.Fatalf("expected initial state %s, got %s", model.WorkerStarting, status.State)
	}
}

func TestDetectEveryN_DefaultsToOneWhenUnset(t *testing.T) {
	if n := detectEveryN(model.CameraConfig{}); n != 1 {
		t.Fatalf("expected default 1, got %d", n)
	}
	if n := detectEveryN(model.CameraConfig{DetectEveryN: 4}); n != 4 {
		t.Fatalf("expected configured 4, got %d", n)
	}
}

func TestUnionBBox_EmptyPosesReturnsFalse(t *testing.T) {
	if _, ok := unionBBox(nil); ok {
		t.Fatal("expected ok=false for no poses")
	}
}

func TestUnionBBox_CoversAllPoses(t *testing.T) {
	poses := []model.PoseResult{
		{BBox: model.BBox{X1: 10, Y1: 10, X2: 50, Y2: 50}},
		{BBox: model.BBox{X1: 40, Y1: 5, X2: 90, Y2: 60}},
	}
	u, ok := unionBBox(poses)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if u.X1 != 10 || u.Y1 != 5 || u.X2 != 90 || u.Y2 != 60 {
		t.Fatalf("unexpected union bbox: %+v", u)
	}
}

func TestResolvePassword_PlaintextCredential(t *testing.T) {
	w := New(model.CameraConfig{
		CameraID:   "cam-1",
		Credential: model.Credential{Username: "admin", Password: "hunter2"},
	}, -1, nil, nil)

	pw, err := w.resolvePassword()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pw != "hunter2" {
		t.Fatalf("expected hunter2, got %q", pw)
	}
}

func TestResolvePassword_EncryptedWithNoVaultFails(t *testing.T) {
	w := New(model.CameraConfig{
		CameraID: "cam-1",
		Credential: model.Credential{
			Username:          "admin",
			PasswordEncrypted: &model.EncryptedCredentialFields{KeyID: "k1", Nonce: "n", Ciphertext: "c", Tag: "t"},
		},
	}, -1, nil, nil)

	if _, err := w.resolvePassword(); err == nil {
		t.Fatal("expected error when an encrypted credential has no vault to decrypt it")
	}
}

func TestPinToCPU_NegativeIndexIsNoOp(t *testing.T) {
	// Must not panic; a negative index means "do not pin".
	pinToCPU(-1)
}
