package pipeline

// Stage is a barrier in the recap pipeline. Every work item of a stage
// completes before the next stage starts.
type Stage int

const (
	StageNone Stage = iota
	StageRasterized
	StageSegmented
	StageTranscribed
	StageScripted
	StageSynthesized
	StageAllocated
	StageRendered
	StageAssembled
	StageEmitted
)

var stageNames = [...]string{
	StageNone:        "none",
	StageRasterized:  "rasterized",
	StageSegmented:   "segmented",
	StageTranscribed: "transcribed",
	StageScripted:    "scripted",
	StageSynthesized: "synthesized",
	StageAllocated:   "allocated",
	StageRendered:    "rendered",
	StageAssembled:   "assembled",
	StageEmitted:     "emitted",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Stages lists the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageRasterized, StageSegmented, StageTranscribed, StageScripted, StageSynthesized,
		StageAllocated, StageRendered, StageAssembled, StageEmitted,
	}
}

// ProgressFunc observes progress. fraction is within [0, 1] for the given
// stage and reaches 1 exactly once per completed stage.
type ProgressFunc func(stage Stage, fraction float64)
