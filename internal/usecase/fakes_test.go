package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"voxjob/internal/domain"
	"voxjob/internal/ports"
)

type fakeResponse struct {
	payload string
	err     error
	gate    chan struct{}
}

func ok(payload string) fakeResponse { return fakeResponse{payload: payload} }

func networkDown() fakeResponse {
	return fakeResponse{err: domain.NewFailure(domain.FailureTransport, "request failed: network down", errors.New("network down"))}
}

// fakeTransport scripts submit responses per job id and poll responses per task id.
// The last poll response for a task repeats once the script is exhausted.
type fakeTransport struct {
	mu sync.Mutex

	submitDefault fakeResponse
	submitByJob   map[string]fakeResponse
	polls         map[string][]fakeResponse

	submitCalls int
	pollCalls   map[string]int
	submitted   []*ports.MultipartBody
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		submitDefault: ok(`{"taskId":"task-1"}`),
		submitByJob:   make(map[string]fakeResponse),
		polls:         make(map[string][]fakeResponse),
		pollCalls:     make(map[string]int),
	}
}

func (f *fakeTransport) Do(ctx context.Context, req ports.Request) (json.RawMessage, error) {
	f.mu.Lock()
	var resp fakeResponse
	if req.Method == http.MethodPost {
		f.submitCalls++
		body, _ := req.Body.(*ports.MultipartBody)
		f.submitted = append(f.submitted, body)
		resp = f.submitDefault
		if body != nil {
			if scripted, ok := f.submitByJob[body.Fields["id"]]; ok {
				resp = scripted
			}
		}
	} else {
		taskID := strings.TrimPrefix(req.Endpoint, ports.StatusEndpoint)
		f.pollCalls[taskID]++
		script := f.polls[taskID]
		switch {
		case len(script) == 0:
			resp = ok(`{"status":"processing"}`)
		case f.pollCalls[taskID] > len(script):
			resp = script[len(script)-1]
		default:
			resp = script[f.pollCalls[taskID]-1]
		}
	}
	f.mu.Unlock()

	if resp.gate != nil {
		select {
		case <-resp.gate:
		case <-ctx.Done():
			return nil, domain.NewFailure(domain.FailureTransport, "request failed: "+ctx.Err().Error(), ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.NewFailure(domain.FailureTransport, "request failed: "+err.Error(), err)
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return json.RawMessage(resp.payload), nil
}

func (f *fakeTransport) polled(taskID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCalls[taskID]
}

func (f *fakeTransport) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

func (f *fakeTransport) totalPolls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.pollCalls {
		total += n
	}
	return total
}

type fakeEventSink struct {
	mu sync.Mutex

	states   []stateEvent
	updates  []domain.Job
	progress []progressEvent
	errors   []errEvent
}

type stateEvent struct {
	state  domain.RecordingState
	reason domain.RecordingReason
}

type progressEvent struct {
	jobID    string
	progress int
}

type errEvent struct {
	jobID  string
	kind   domain.FailureKind
	detail string
}

func (f *fakeEventSink) RecordingStateChanged(state domain.RecordingState, reason domain.RecordingReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) JobUpdated(job domain.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, job)
}

func (f *fakeEventSink) JobProgress(jobID string, progress int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, progressEvent{jobID: jobID, progress: progress})
}

func (f *fakeEventSink) JobError(jobID string, kind domain.FailureKind, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{jobID: jobID, kind: kind, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) snapshotUpdates() []domain.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Job, len(f.updates))
	copy(out, f.updates)
	return out
}

// progressRecorder is a ProgressObserver that remembers every call.
type progressRecorder struct {
	mu     sync.Mutex
	values []int
	jobIDs []string
	notify chan struct{}
}

func newProgressRecorder() *progressRecorder {
	return &progressRecorder{notify: make(chan struct{}, 64)}
}

func (p *progressRecorder) observe(jobID string, progress int) {
	p.mu.Lock()
	p.values = append(p.values, progress)
	p.jobIDs = append(p.jobIDs, jobID)
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *progressRecorder) snapshot() ([]string, []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.jobIDs...), append([]int(nil), p.values...)
}

type fakeClipboard struct {
	mu       sync.Mutex
	lastText string
	err      error
}

func (f *fakeClipboard) SetText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastText = text
	return f.err
}

func (f *fakeClipboard) text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastText
}
