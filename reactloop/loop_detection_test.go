package reactloop

import "testing"

func TestCallSignatureDeterministic(t *testing.T) {
	a := callSignature("tool", map[string]string{"x": "1", "y": "2"})
	b := callSignature("tool", map[string]string{"y": "2", "x": "1"})
	if a != b {
		t.Error("expected the signature to be independent of map iteration order")
	}

	c := callSignature("tool", map[string]string{"x": "1", "y": "3"})
	if a == c {
		t.Error("expected different arguments to produce different signatures")
	}

	d := callSignature("other", map[string]string{"x": "1", "y": "2"})
	if a == d {
		t.Error("expected different names to produce different signatures")
	}
}

func TestDetectLoopSingleCall(t *testing.T) {
	sigs := []string{"a", "a", "a", "a"}
	if !DetectLoop(sigs, 4) {
		t.Error("expected a length-1 pattern to be detected")
	}
}

func TestDetectLoopPairPattern(t *testing.T) {
	sigs := []string{"a", "b", "a", "b", "a", "b"}
	if !DetectLoop(sigs, 6) {
		t.Error("expected a length-2 pattern to be detected")
	}
}

func TestDetectLoopTriplePattern(t *testing.T) {
	sigs := []string{"a", "b", "c", "a", "b", "c"}
	if !DetectLoop(sigs, 6) {
		t.Error("expected a length-3 pattern to be detected")
	}
}

func TestDetectLoopNoPattern(t *testing.T) {
	sigs := []string{"a", "b", "c", "d", "e", "f"}
	if DetectLoop(sigs, 6) {
		t.Error("expected distinct calls not to be flagged")
	}
}

func TestDetectLoopTooFewSignatures(t *testing.T) {
	sigs := []string{"a", "a"}
	if DetectLoop(sigs, 10) {
		t.Error("expected no detection before the window is full")
	}
}

func TestDetectLoopOnlyRecentWindow(t *testing.T) {
	// Varied history followed by a repeating tail.
	sigs := []string{"x", "y", "z", "a", "a", "a", "a"}
	if !DetectLoop(sigs, 4) {
		t.Error("expected detection over the trailing window only")
	}
}
