package model

import "testing"

func TestStageAtLeast(t *testing.T) {
	cases := []struct {
		current Stage
		target  Stage
		want    bool
	}{
		{StageCreated, StageCreated, true},
		{StageUploaded, StageTranscriptReady, false},
		{StageTranscriptReady, StageUploaded, true},
		{StageAnalysisReady, StageTranscriptReady, true},
		{StageComplete, StageDocumentReady, true},
		{StageCreated, StageComplete, false},
	}
	for _, c := range cases {
		if got := c.current.AtLeast(c.target); got != c.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", c.current, c.target, got, c.want)
		}
	}
}

func TestStageFailedHasNoOrder(t *testing.T) {
	// FAILED is outside the progress order; comparisons involving it
	// must never report an ordinal answer.
	for _, s := range []Stage{StageCreated, StageUploaded, StageComplete} {
		if StageFailed.AtLeast(s) {
			t.Errorf("StageFailed.AtLeast(%s) must be false", s)
		}
		if s.AtLeast(StageFailed) {
			t.Errorf("%s.AtLeast(StageFailed) must be false", s)
		}
	}
	if !StageFailed.Valid() {
		t.Error("StageFailed should still be a valid stage value")
	}
}

func TestStageNext(t *testing.T) {
	chain := []Stage{StageCreated, StageUploaded, StageTranscriptReady, StageAnalysisReady, StageDocumentReady, StageComplete}
	for i := 0; i < len(chain)-1; i++ {
		next, ok := chain[i].Next()
		if !ok || next != chain[i+1] {
			t.Fatalf("%s.Next() = %s, %v; want %s", chain[i], next, ok, chain[i+1])
		}
	}
	if _, ok := StageComplete.Next(); ok {
		t.Error("StageComplete must have no successor")
	}
	if _, ok := StageFailed.Next(); ok {
		t.Error("StageFailed must have no successor")
	}
}

func TestMediaTypeForKey(t *testing.T) {
	cases := map[string]string{
		"meetings/abc/audio.m4a": "audio/mp4",
		"meetings/abc/audio.MP3": "audio/mpeg",
		"meetings/abc/audio.ogg": "audio/ogg",
		"meetings/abc/audio":     "audio/webm",
		"meetings/abc/audio.bin": "audio/webm",
	}
	for key, want := range cases {
		if got := MediaTypeForKey(key); got != want {
			t.Errorf("MediaTypeForKey(%q) = %q, want %q", key, got, want)
		}
	}
}
