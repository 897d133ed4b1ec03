package merge

// Stage is a coarse-grained progress label.
type Stage string

const (
	StageFilling         Stage = "filling template"
	StageCreatingSurface Stage = "creating container"
	StageRendering       Stage = "rendering"
	StageWaitingFonts    Stage = "waiting for fonts"
	StageWaitingImages   Stage = "waiting for images"
	StageGenerating      Stage = "generating output"
	StageSaving          Stage = "saving output"
	StageCleaningUp      Stage = "cleaning up"
	StageDone            Stage = "done"
	StageBatchComplete   Stage = "batch complete"
)

// ProgressEvent is delivered to progress callbacks. Result is set only on the
// final StageBatchComplete event.
type ProgressEvent struct {
	Stage  Stage
	JobID  string
	Index  int
	Total  int
	Result *BatchResult
}

// ProgressFunc receives progress events. It is called from the worker
// goroutine and must not block for long.
type ProgressFunc func(ProgressEvent)

func (f ProgressFunc) emit(event ProgressEvent) {
	if f == nil {
		return
	}
	f(event)
}
