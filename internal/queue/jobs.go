package queue

import (
	"sync"
	"time"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/pipeline"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// Job represents a transcription job
type Job struct {
	ID        string
	Kind      types.SourceKind
	Request   pipeline.Request
	CreatedAt time.Time

	mu          sync.Mutex
	status      string
	progress    pipeline.Progress
	result      *pipeline.Result
	err         error
	driveURL    string
	finishedAt  time.Time
	subscribers map[int]chan pipeline.Progress
	nextSub     int
	done        chan struct{}
}

// JobStatus is a point-in-time view of a job
type JobStatus struct {
	ID         string            `json:"job_id"`
	Kind       types.SourceKind  `json:"kind"`
	Source     string            `json:"source"`
	Status     string            `json:"status"`
	Progress   pipeline.Progress `json:"progress"`
	Output     string            `json:"output,omitempty"`
	Sections   int               `json:"sections,omitempty"`
	WordCount  int               `json:"word_count,omitempty"`
	DriveURL   string            `json:"gdrive_url,omitempty"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// NewJob creates a queued job
func NewJob(id string, kind types.SourceKind, req pipeline.Request) *Job {
	req.RunID = id
	return &Job{
		ID:          id,
		Kind:        kind,
		Request:     req,
		CreatedAt:   time.Now(),
		status:      types.StatusQueued,
		subscribers: map[int]chan pipeline.Progress{},
		done:        make(chan struct{}),
	}
}

// Status returns a snapshot of the job
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := JobStatus{
		ID:        j.ID,
		Kind:      j.Kind,
		Source:    j.Request.Source,
		Status:    j.status,
		Progress:  j.progress,
		DriveURL:  j.driveURL,
		CreatedAt: j.CreatedAt,
	}
	if j.result != nil {
		s.Output = j.result.Output
		s.Sections = j.result.Sections
		s.WordCount = j.result.WordCount
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		s.FinishedAt = &t
	}
	return s
}

// Result returns the pipeline result and error once the job is done
func (j *Job) Result() (*pipeline.Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Done is closed when the job finishes
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Subscribe returns a channel of progress updates and a function that
// unsubscribes. The channel is closed when the job finishes. Slow readers
// miss updates rather than blocking the pipeline.
func (j *Job) Subscribe() (<-chan pipeline.Progress, func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	ch := make(chan pipeline.Progress, 16)
	if !j.finishedAt.IsZero() {
		close(ch)
		return ch, func() {}
	}

	id := j.nextSub
	j.nextSub++
	j.subscribers[id] = ch
	ch <- j.progress

	return ch, func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if c, ok := j.subscribers[id]; ok {
			delete(j.subscribers, id)
			close(c)
		}
	}
}

func (j *Job) setStatus(status string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
}

func (j *Job) setProgress(p pipeline.Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = p
	for _, ch := range j.subscribers {
		select {
		case ch <- p:
		default:
		}
	}
}

func (j *Job) setDriveURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.driveURL = url
}

func (j *Job) finish(status string, res *pipeline.Result, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.finishedAt.IsZero() {
		return
	}
	j.status = status
	j.result = res
	j.err = err
	j.finishedAt = time.Now()
	for id, ch := range j.subscribers {
		close(ch)
		delete(j.subscribers, id)
	}
	close(j.done)
}
