// Package jobstore implements the job store (spec. §4.3): submitted jobs
// carrying a source image, a result-image slot, a status, and a snapshot
// of the stage registry observed during the job's last successful run.
//
// Grounded in original_source/src/oipcore/oipcore/job.c naming
// (job_create, jobs_register/jobs_unregister, job_save) and the teacher's
// ownership conventions in core/types.go.
package jobstore

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Skryldev/oipipe/codec"
	"github.com/Skryldev/oipipe/imgerr"
	"github.com/Skryldev/oipipe/registry"
)

// Status is a job's terminal or pending outcome.
type Status int

const (
	Pending Status = iota
	Success
	Fail
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Fail:
		return "fail"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Job is one submitted unit of work.
type Job struct {
	mu sync.Mutex

	jobID     string
	filepath  string
	srcImg    *codec.Image
	resultImg *codec.Image
	status    Status
	snapshot  []registry.SnapshotEntry
}

func (j *Job) ID() string           { return j.jobID }
func (j *Job) Filepath() string     { return j.filepath }
func (j *Job) SrcImg() *codec.Image { return j.srcImg }
func (j *Job) ResultImg() *codec.Image {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.resultImg
}

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) setStatus(s Status) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

// Snapshot returns a copy of the job's last-successful-run (uid, arg_rev)
// vector. Empty when the job has never succeeded.
func (j *Job) Snapshot() []registry.SnapshotEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]registry.SnapshotEntry, len(j.snapshot))
	copy(out, j.snapshot)
	return out
}

// Store holds all submitted jobs, keyed by job id.
type Store struct {
	mu sync.Mutex

	decoder codec.Decoder
	jobs    map[string]*Job
	nextID  int64
}

// New returns an empty Store. decoder is the collaborator used by
// Create to load a job's source image (spec. §1 treats the codec as
// external).
func New(decoder codec.Decoder) *Store {
	return &Store{decoder: decoder, jobs: make(map[string]*Job)}
}

// Create loads the image at filepath, allocates an empty result image,
// assigns a fresh job id, and returns a Pending job. It does not register
// the job into the store; call Register next (spec. §4.3).
func (s *Store) Create(filepath string) (*Job, error) {
	src, err := s.decoder.Decode(filepath)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.CategoryResourceFailure, "jobstore.create.decode", err)
	}

	id := atomic.AddInt64(&s.nextID, 1) - 1
	return &Job{
		jobID:     strconv.FormatInt(id, 10),
		filepath:  filepath,
		srcImg:    src,
		resultImg: &codec.Image{},
		status:    Pending,
	}, nil
}

// Register inserts job into the store.
func (s *Store) Register(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.jobID]; exists {
		return imgerr.New(imgerr.CategoryInvalidInput, "jobstore.register", fmt.Errorf("job id %q already registered", job.jobID))
	}
	s.jobs[job.jobID] = job
	return nil
}

// Unregister removes jobID from the store. destroy additionally drops
// the job's image references (there is no further cleanup needed in Go:
// the garbage collector reclaims them once unreferenced).
func (s *Store) Unregister(jobID string, destroy bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return imgerr.New(imgerr.CategoryInvalidInput, "jobstore.unregister", imgerr.ErrUnknownJob)
	}
	delete(s.jobs, jobID)
	if destroy {
		job.mu.Lock()
		job.srcImg = nil
		job.resultImg = nil
		job.mu.Unlock()
	}
	return nil
}

// FindByID looks up a job by id.
func (s *Store) FindByID(jobID string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	return job, ok
}

// SnapshotUpdate overwrites job's snapshot with reg's current
// (uid, arg_rev) vector and marks the job Success. Called by the
// pipeline engine after a successful run (spec. §4.3, §4.4 step 4).
func SnapshotUpdate(job *Job, reg *registry.Registry) {
	snap := reg.Snapshot()
	job.mu.Lock()
	job.snapshot = snap
	job.status = Success
	job.mu.Unlock()
}

// MarkFail sets job's status to Fail, e.g. when the cache prelude fails
// to load (spec. §4.4 step 2).
func MarkFail(job *Job) { job.setStatus(Fail) }

// Save writes job's result image to path using the given encoder. Fails
// iff the codec fails (spec. §4.3).
func Save(job *Job, enc codec.Encoder, path string) error {
	result := job.ResultImg()
	if err := enc.Encode(result, path); err != nil {
		return imgerr.Wrap(imgerr.CategoryResourceFailure, "jobstore.save", err)
	}
	return nil
}
