package queue

import (
	"testing"
	"time"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
)

func TestTaskTypeRoundTrip(t *testing.T) {
	for _, stage := range []model.Stage{
		model.StageTranscriptReady,
		model.StageAnalysisReady,
		model.StageDocumentReady,
	} {
		taskType, err := TaskType(stage)
		if err != nil {
			t.Fatalf("TaskType(%s): %v", stage, err)
		}
		back, err := StageForTask(taskType)
		if err != nil {
			t.Fatalf("StageForTask(%s): %v", taskType, err)
		}
		if back != stage {
			t.Errorf("round trip %s -> %s -> %s", stage, taskType, back)
		}
	}
}

func TestTaskTypeRejectsNonRunnableStages(t *testing.T) {
	for _, stage := range []model.Stage{
		model.StageCreated,
		model.StageUploaded,
		model.StageComplete,
		model.StageFailed,
	} {
		if _, err := TaskType(stage); err == nil {
			t.Errorf("TaskType(%s) should fail", stage)
		}
	}
}

func TestJobIDDeterministic(t *testing.T) {
	a := JobID(model.StageAnalysisReady, "m-1")
	b := JobID(model.StageAnalysisReady, "m-1")
	if a != b {
		t.Fatalf("%q != %q", a, b)
	}
	if a == JobID(model.StageDocumentReady, "m-1") {
		t.Fatal("different stages must yield different identities")
	}
	if a == JobID(model.StageAnalysisReady, "m-2") {
		t.Fatal("different meetings must yield different identities")
	}
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	base := time.Second
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}
	for n, expected := range want {
		if got := RetryDelay(n, base); got != expected {
			t.Errorf("RetryDelay(%d) = %s, want %s", n, got, expected)
		}
	}
	if got := RetryDelay(30, base); got != 10*time.Minute {
		t.Errorf("large retry count should cap at 10m, got %s", got)
	}
}
