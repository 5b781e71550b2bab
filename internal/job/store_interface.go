package job

// JobStore defines the interface for job storage (both in-memory and persistent)
type JobStore interface {
	Add(j *Job) error
	Get(id string) (*Job, error)
	SetStatus(id string, status Status) error
	SetExternalTask(id, taskID string) error
	Complete(id, resultText, imageURL string) error
	Fail(id string, errMsg string) error
	Stats() (pending, processing, completed, failed int)
}
