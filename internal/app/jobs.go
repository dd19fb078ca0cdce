package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For progress (optional fields)
	Uploaded int `json:"uploaded,omitempty"`
	Total    int `json:"total,omitempty"`

	// For results
	URL          string `json:"url,omitempty"`
	DeploymentID string `json:"deployment_id,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

// Job is one tracked deploy run. Events carries progress to a WebSocket
// subscriber and is closed when the job settles.
type Job struct {
	ID        string        `json:"id"`
	Project   string        `json:"project"`
	Preview   bool          `json:"preview"`
	Status    JobStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Events    chan JobEvent `json:"-"`

	// Optional result:
	URL          string `json:"url,omitempty"`
	DeploymentID string `json:"deployment_id,omitempty"`
}

// jobRegistry tracks running and recently finished deploy jobs. Finished jobs
// are pruned after the retention window.
type jobRegistry struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	cancels   map[string]context.CancelFunc
	retention time.Duration
}

func newJobRegistry(retention time.Duration) *jobRegistry {
	if retention <= 0 {
		retention = time.Hour
	}
	return &jobRegistry{
		jobs:      make(map[string]*Job),
		cancels:   make(map[string]context.CancelFunc),
		retention: retention,
	}
}

func (r *jobRegistry) set(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
}

func (r *jobRegistry) setCancel(jobID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[jobID] = cancel
}

func (r *jobRegistry) deleteCancel(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, jobID)
}

func (r *jobRegistry) getCancel(jobID string) context.CancelFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancels[jobID]
}

func (r *jobRegistry) emit(jobID string, ev JobEvent) {
	r.mu.Lock()
	job, ok := r.jobs[jobID]
	r.mu.Unlock()
	if !ok || job == nil || job.Events == nil {
		return
	}

	// Non-blocking send; drop if the subscriber is slow.
	select {
	case job.Events <- ev:
	default:
	}
}

// prune drops finished jobs older than the retention window. Callers must not
// hold r.mu.
func (r *jobRegistry) prune(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, j := range r.jobs {
		if j.EndedAt.IsZero() {
			continue
		}
		if now.Sub(j.EndedAt) > r.retention {
			delete(r.jobs, id)
		}
	}
}

// StartDeployJob runs a deploy in the background and returns the tracking
// handle immediately. Progress and the final result stream over job.Events.
func (a *Application) StartDeployJob(ctx context.Context, ownerID, projectIdentifier, accessToken string, preview bool) (*Job, error) {
	a.jobs.prune(time.Now().UTC())

	jobID := uuid.New().String()
	job := &Job{
		ID:        jobID,
		Project:   projectIdentifier,
		Preview:   preview,
		Status:    JobPending,
		StartedAt: time.Now().UTC(),
		Events:    make(chan JobEvent, 16),
	}
	a.jobs.set(job)

	jobCtx, cancel := context.WithCancel(ctx)
	a.jobs.setCancel(jobID, cancel)

	a.jobs.emit(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: JobPending})

	go func() {
		defer func() {
			a.jobs.mu.Lock()
			j := a.jobs.jobs[jobID]
			if j != nil {
				j.EndedAt = time.Now().UTC()
			}
			a.jobs.mu.Unlock()
			a.jobs.deleteCancel(jobID)

			// Close events channel so the websocket loop terminates cleanly.
			if j != nil && j.Events != nil {
				close(j.Events)
			}
		}()

		a.setJobStatus(jobID, JobRunning, "")
		a.jobs.emit(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: JobRunning})

		progress := func(done, total int) {
			a.jobs.emit(jobID, JobEvent{
				JobID:    jobID,
				Type:     JobEventProgress,
				Uploaded: done,
				Total:    total,
			})
		}

		deployment, err := a.Deploy(jobCtx, ownerID, projectIdentifier, accessToken, preview, progress)
		if err != nil {
			st := JobFailed
			msg := err.Error()
			select {
			case <-jobCtx.Done():
				st = JobCanceled
				msg = jobCtx.Err().Error()
			default:
			}
			a.setJobStatus(jobID, st, msg)
			a.jobs.emit(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: st, Error: msg})
			return
		}

		a.jobs.mu.Lock()
		if j, ok := a.jobs.jobs[jobID]; ok {
			j.Status = JobDone
			j.URL = deployment.URL
			j.DeploymentID = deployment.ID
		}
		a.jobs.mu.Unlock()
		a.jobs.emit(jobID, JobEvent{
			JobID:        jobID,
			Type:         JobEventResult,
			Status:       JobDone,
			URL:          deployment.URL,
			DeploymentID: deployment.ID,
		})
	}()

	return job, nil
}

func (a *Application) setJobStatus(jobID string, st JobStatus, msg string) {
	a.jobs.mu.Lock()
	defer a.jobs.mu.Unlock()
	if j, ok := a.jobs.jobs[jobID]; ok {
		j.Status = st
		j.Error = msg
	}
}

// GetJob returns a job by id, or nil when unknown or pruned.
func (a *Application) GetJob(jobID string) *Job {
	a.jobs.prune(time.Now().UTC())
	a.jobs.mu.Lock()
	defer a.jobs.mu.Unlock()
	return a.jobs.jobs[jobID]
}

// ListJobs returns every retained job, newest first.
func (a *Application) ListJobs() []*Job {
	a.jobs.prune(time.Now().UTC())
	a.jobs.mu.Lock()
	defer a.jobs.mu.Unlock()

	out := make([]*Job, 0, len(a.jobs.jobs))
	for _, j := range a.jobs.jobs {
		out = append(out, j)
	}
	for i := 1; i < len(out); i++ {
		for k := i; k > 0 && out[k].StartedAt.After(out[k-1].StartedAt); k-- {
			out[k], out[k-1] = out[k-1], out[k]
		}
	}
	return out
}

// CancelJob aborts a running job. Unknown ids are a no-op.
func (a *Application) CancelJob(jobID string) {
	if cancel := a.jobs.getCancel(jobID); cancel != nil {
		cancel()
	}
}
