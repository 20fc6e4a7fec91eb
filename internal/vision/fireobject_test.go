package vision

import "testing"

func TestDecodeFireOutput(t *testing.T) {
	data := make([]float32, fireAttrCount*fireMaxDetects)

	const slot = 42
	data[0*fireMaxDetects+slot] = 320
	data[1*fireMaxDetects+slot] = 320
	data[2*fireMaxDetects+slot] = 80
	data[3*fireMaxDetects+slot] = 80
	data[4*fireMaxDetects+slot] = 0.9
	data[5*fireMaxDetects+slot] = 0.95 // fire class score
	data[6*fireMaxDetects+slot] = 0.1  // smoke
	data[7*fireMaxDetects+slot] = 0.05 // other

	results := decodeFireOutput(data, 640, 640, 0.5)
	if len(results) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(results))
	}
	if results[0].Class != "fire" {
		t.Errorf("Class = %v, want fire", results[0].Class)
	}
}

func TestDecodeFireOutput_BelowThreshold(t *testing.T) {
	data := make([]float32, fireAttrCount*fireMaxDetects)
	data[4*fireMaxDetects+10] = 0.1

	results := decodeFireOutput(data, 640, 640, 0.5)
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}
