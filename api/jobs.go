package api

import (
	"sync"

	"driftlens/engine"
)

// jobStatus is an async analysis job's lifecycle state.
type jobStatus string

const (
	jobRunning   jobStatus = "running"
	jobCompleted jobStatus = "completed"
	jobFailed    jobStatus = "failed"
)

// job tracks one async analysis started via POST /api/v1/analyze/async.
type job struct {
	id       string
	fileID   string
	mu       sync.Mutex
	status   jobStatus
	result   map[string]*engine.MetricInsight
	err      error
	subs     []chan engine.ProgressEvent
}

// jobRegistry holds in-flight and recently-completed jobs, plus the most
// recent completed result per file id so the secondary endpoints
// (related segments, segment time series, waterfall) can serve it
// without re-running the analysis.
type jobRegistry struct {
	mu          sync.Mutex
	jobs        map[string]*job
	byFile      map[string]map[string]*engine.MetricInsight
	idGenerator func() string
}

func newJobRegistry(idGenerator func() string) *jobRegistry {
	return &jobRegistry{
		jobs:        map[string]*job{},
		byFile:      map[string]map[string]*engine.MetricInsight{},
		idGenerator: idGenerator,
	}
}

func (r *jobRegistry) create() *job {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := &job{id: r.idGenerator(), status: jobRunning}
	r.jobs[j.id] = j
	return j
}

func (r *jobRegistry) get(id string) (*job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

func (r *jobRegistry) publish(id string, ev engine.ProgressEvent) {
	j, ok := r.get(id)
	if !ok {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, sub := range j.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

func (r *jobRegistry) complete(id string, result map[string]*engine.MetricInsight) {
	j, ok := r.get(id)
	if !ok {
		return
	}
	j.mu.Lock()
	j.status = jobCompleted
	j.result = result
	subs := j.subs
	j.mu.Unlock()

	for _, sub := range subs {
		close(sub)
	}

	if j.fileID != "" {
		r.mu.Lock()
		r.byFile[j.fileID] = result
		r.mu.Unlock()
	}
}

func (r *jobRegistry) fail(id string, err error) {
	j, ok := r.get(id)
	if !ok {
		return
	}
	j.mu.Lock()
	j.status = jobFailed
	j.err = err
	subs := j.subs
	j.mu.Unlock()
	for _, sub := range subs {
		close(sub)
	}
}

// subscribe registers a progress channel with job id and returns it. If
// the job has already finished, the returned channel is closed immediately.
func (r *jobRegistry) subscribe(id string) (<-chan engine.ProgressEvent, bool) {
	j, ok := r.get(id)
	if !ok {
		return nil, false
	}
	ch := make(chan engine.ProgressEvent, 16)
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != jobRunning {
		close(ch)
		return ch, true
	}
	j.subs = append(j.subs, ch)
	return ch, true
}

func (r *jobRegistry) resultForFile(fileID string) (map[string]*engine.MetricInsight, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.byFile[fileID]
	return result, ok
}
