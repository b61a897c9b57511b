package imports

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeStorage is an in-memory Storage implementation for pipeline tests.
type fakeStorage struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*ImportJob
	customers map[string]int64
	products  map[string]int64
	stores    map[string]int64
	purchases map[int64]int
	facts     []SalesFact
	nextID    int64

	failInsertFact   bool
	failSaveProgress bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		jobs:      map[uuid.UUID]*ImportJob{},
		customers: map[string]int64{},
		products:  map[string]int64{},
		stores:    map[string]int64{},
		purchases: map[int64]int{},
	}
}

func (s *fakeStorage) CreateJob(ctx context.Context, job ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *fakeStorage) GetJob(ctx context.Context, id uuid.UUID) (ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ImportJob{}, ErrJobNotFound
	}
	return *job, nil
}

func (s *fakeStorage) ListJobs(ctx context.Context, limit, offset int) ([]ImportJob, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ImportJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	return out, len(out), nil
}

func (s *fakeStorage) StartJob(ctx context.Context, id uuid.UUID, total int, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != JobPending {
		return ErrJobNotPending
	}
	job.Status = JobProcessing
	job.TotalRows = total
	job.StartedAt = &startedAt
	job.UpdatedAt = startedAt
	return nil
}

func (s *fakeStorage) SaveProgress(ctx context.Context, id uuid.UUID, imported, failed, percent int, errs []RowError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaveProgress {
		return errors.New("connection reset")
	}
	job := s.jobs[id]
	job.ImportedRows = imported
	job.FailedRows = failed
	job.Progress = percent
	job.ErrorLog = append(job.ErrorLog, errs...)
	return nil
}

func (s *fakeStorage) CompleteJob(ctx context.Context, id uuid.UUID, imported, failed, percent int, errs []RowError, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	job.Status = JobCompleted
	job.ImportedRows = imported
	job.FailedRows = failed
	job.Progress = percent
	job.ErrorLog = append(job.ErrorLog, errs...)
	job.CompletedAt = &completedAt
	return nil
}

func (s *fakeStorage) FailJob(ctx context.Context, id uuid.UUID, imported, failed, percent int, errs []RowError, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	job.Status = JobFailed
	job.ImportedRows = imported
	job.FailedRows = failed
	job.Progress = percent
	job.ErrorLog = append(job.ErrorLog, errs...)
	job.ErrorMessage = message
	return nil
}

func (s *fakeStorage) ResetJob(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != JobProcessing {
		return ErrJobNotResettable
	}
	job.Status = JobPending
	return nil
}

func (s *fakeStorage) DeleteJobCascade(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}
	kept := s.facts[:0]
	for _, fact := range s.facts {
		if fact.JobID != id {
			kept = append(kept, fact)
		}
	}
	s.facts = kept
	delete(s.jobs, id)
	return nil
}

func (s *fakeStorage) ensure(m map[string]int64, normalized string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := m[normalized]; ok {
		return id, nil
	}
	s.nextID++
	m[normalized] = s.nextID
	return s.nextID, nil
}

func (s *fakeStorage) EnsureCustomer(ctx context.Context, name, normalized, region string) (int64, error) {
	return s.ensure(s.customers, normalized)
}

func (s *fakeStorage) EnsureProduct(ctx context.Context, name, normalized, category string) (int64, error) {
	return s.ensure(s.products, normalized)
}

func (s *fakeStorage) EnsureStore(ctx context.Context, name, normalized, region string) (int64, error) {
	return s.ensure(s.stores, normalized)
}

func (s *fakeStorage) ApplyCustomerAggregate(ctx context.Context, id int64, amount float64, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases[id]++
	return nil
}

func (s *fakeStorage) ApplyProductAggregate(ctx context.Context, id int64, amount, quantity float64, date time.Time) error {
	return nil
}

func (s *fakeStorage) ApplyStoreAggregate(ctx context.Context, id int64, amount float64, date time.Time) error {
	return nil
}

func (s *fakeStorage) InsertFact(ctx context.Context, fact SalesFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsertFact {
		return errors.New("disk full")
	}
	s.facts = append(s.facts, fact)
	return nil
}

// fakeFiles is an in-memory FileStore.
type fakeFiles struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	removed []string
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{blobs: map[string][]byte{}}
}

func (f *fakeFiles) Save(name string, r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	path := "mem://" + name
	f.blobs[path] = data
	return path, int64(len(data)), nil
}

func (f *fakeFiles) Open(path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[path]
	if !ok {
		return nil, errors.New("no such blob")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFiles) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, path)
	f.removed = append(f.removed, path)
	return nil
}

type fakeQueue struct {
	enqueued []uuid.UUID
}

func (q *fakeQueue) EnqueueImport(ctx context.Context, jobID uuid.UUID) error {
	q.enqueued = append(q.enqueued, jobID)
	return nil
}

type fakeCache struct {
	bumps int
}

func (c *fakeCache) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

func newTestService(storage *fakeStorage, files *fakeFiles, queue *fakeQueue, cache *fakeCache) *Service {
	return NewService(storage, files, queue, cache, slog.Default(), 30*time.Minute)
}

func uploadAndGet(t *testing.T, svc *Service, kind EntityKind, content string) ImportJob {
	t.Helper()
	job, err := svc.CreateFromUpload(context.Background(), "upload.csv", kind, strings.NewReader(content))
	if err != nil {
		t.Fatalf("create upload: %v", err)
	}
	return job
}

func TestCreateFromUploadEnqueues(t *testing.T) {
	storage := newFakeStorage()
	queue := &fakeQueue{}
	svc := newTestService(storage, newFakeFiles(), queue, &fakeCache{})

	job := uploadAndGet(t, svc, KindSales, "date,customer,quantity,price\n2025-03-01,Ivanov,1,10\n")
	if job.Status != JobPending {
		t.Fatalf("expected pending job, got %s", job.Status)
	}
	if len(queue.enqueued) != 1 || queue.enqueued[0] != job.ID {
		t.Fatalf("expected job enqueued, got %v", queue.enqueued)
	}
}

func TestProcessImportsValidRowsAndSkipsInvalid(t *testing.T) {
	storage := newFakeStorage()
	cache := &fakeCache{}
	svc := newTestService(storage, newFakeFiles(), &fakeQueue{}, cache)

	content := "date,customer,product,quantity,price\n" +
		"2025-03-01,Ivanov,Widget,2,100\n" +
		"2025-03-02,,Widget,1,50\n" + // missing customer
		"2025-03-03,Petrov,Widget,0,50\n" + // zero quantity
		"2025-03-04,Ivanov,Gadget,1,200\n"
	job := uploadAndGet(t, svc, KindSales, content)

	if err := svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, err := svc.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != JobCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.TotalRows != 4 || got.ImportedRows != 2 || got.FailedRows != 2 {
		t.Fatalf("unexpected counters: %+v", got)
	}
	if got.ImportedRows+got.FailedRows != got.TotalRows {
		t.Fatalf("counters must partition total rows: %+v", got)
	}
	if got.Progress != 50 {
		t.Fatalf("expected 50%% progress (2 of 4 imported), got %d", got.Progress)
	}
	if len(got.ErrorLog) != 2 {
		t.Fatalf("expected 2 error log entries, got %d", len(got.ErrorLog))
	}
	if got.ErrorLog[0].Line != 3 || got.ErrorLog[1].Line != 4 {
		t.Fatalf("error lines must point at the source file: %+v", got.ErrorLog)
	}
	if len(storage.facts) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(storage.facts))
	}
	// Ivanov appears twice but resolves to one customer.
	if len(storage.customers) != 1 {
		t.Fatalf("expected 1 customer, got %d", len(storage.customers))
	}
	if len(storage.products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(storage.products))
	}
	if cache.bumps != 1 {
		t.Fatalf("expected one cache bump after completion, got %d", cache.bumps)
	}
}

func TestProcessReusesExistingCustomerAndFoldsAggregates(t *testing.T) {
	storage := newFakeStorage()
	storage.customers["ivanov"] = 1
	storage.nextID = 1
	svc := newTestService(storage, newFakeFiles(), &fakeQueue{}, &fakeCache{})

	content := "date,customer,quantity,price\n" +
		"2025-03-01,Ivanov,2,100\n" +
		"2025-03-02,IVANOV,1,50\n" +
		"2025-03-03,Petrov,1,200\n"
	job := uploadAndGet(t, svc, KindSales, content)
	if err := svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, err := svc.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.ImportedRows != 3 || got.FailedRows != 0 {
		t.Fatalf("unexpected counters: %+v", got)
	}
	// Only Petrov is new; both Ivanov rows resolve to the seeded entity.
	if len(storage.customers) != 2 {
		t.Fatalf("expected 2 customers, got %d", len(storage.customers))
	}
	if storage.purchases[1] != 2 {
		t.Fatalf("expected 2 purchases folded into existing customer, got %d", storage.purchases[1])
	}
	petrovID := storage.customers["petrov"]
	if storage.purchases[petrovID] != 1 {
		t.Fatalf("expected 1 purchase for new customer, got %d", storage.purchases[petrovID])
	}
}

func TestProcessFactsCarryCalendarFields(t *testing.T) {
	storage := newFakeStorage()
	svc := newTestService(storage, newFakeFiles(), &fakeQueue{}, &fakeCache{})

	// 2025-03-02 is a Sunday in ISO week 9.
	job := uploadAndGet(t, svc, KindSales, "date,customer,quantity,price\n2025-03-02,Ivanov,1,10\n")
	if err := svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(storage.facts) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(storage.facts))
	}
	fact := storage.facts[0]
	if fact.Year != 2025 || fact.Month != 3 || fact.Week != 9 || fact.DayOfWeek != 7 {
		t.Fatalf("unexpected calendar fields: %+v", fact)
	}
	if fact.JobID != job.ID {
		t.Fatalf("fact must be tagged with its job")
	}
}

func TestProcessFailedFlushKeepsErrorLog(t *testing.T) {
	storage := newFakeStorage()
	storage.failSaveProgress = true
	svc := newTestService(storage, newFakeFiles(), &fakeQueue{}, &fakeCache{})

	// One rejected row among enough valid ones to trigger a progress flush.
	var sb strings.Builder
	sb.WriteString("date,customer,quantity,price\n")
	sb.WriteString("2025-03-01,,1,10\n") // missing customer, line 2
	for i := 0; i < 24; i++ {
		sb.WriteString("2025-03-01,Ivanov,1,10\n")
	}
	job := uploadAndGet(t, svc, KindSales, sb.String())

	if err := svc.Process(context.Background(), job.ID); err == nil {
		t.Fatal("expected process to abort on flush failure")
	}

	got, err := svc.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != JobFailed {
		t.Fatalf("expected failed job, got %s", got.Status)
	}
	// The rejection recorded before the failed flush must survive into the
	// persisted log, not be dropped as already-flushed.
	if len(got.ErrorLog) != 1 || got.ErrorLog[0].Line != 2 {
		t.Fatalf("expected the line-2 rejection persisted, got %+v", got.ErrorLog)
	}
}

func TestProcessStorageFailureFailsJob(t *testing.T) {
	storage := newFakeStorage()
	storage.failInsertFact = true
	cache := &fakeCache{}
	svc := newTestService(storage, newFakeFiles(), &fakeQueue{}, cache)

	job := uploadAndGet(t, svc, KindSales, "date,customer,quantity,price\n2025-03-01,Ivanov,1,10\n")
	err := svc.Process(context.Background(), job.ID)
	if err == nil {
		t.Fatal("expected process to fail")
	}
	var sErr *StorageError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected StorageError, got %T: %v", err, err)
	}

	got, _ := svc.Get(context.Background(), job.ID)
	if got.Status != JobFailed {
		t.Fatalf("expected failed job, got %s", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Fatal("expected failure message recorded")
	}
	if cache.bumps != 0 {
		t.Fatalf("failed import must not bump the cache, got %d", cache.bumps)
	}
}

func TestProcessRejectsNonPendingJob(t *testing.T) {
	storage := newFakeStorage()
	svc := newTestService(storage, newFakeFiles(), &fakeQueue{}, &fakeCache{})

	job := uploadAndGet(t, svc, KindSales, "date,customer,quantity,price\n2025-03-01,Ivanov,1,10\n")
	if err := svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("first process: %v", err)
	}
	if err := svc.Process(context.Background(), job.ID); !errors.Is(err, ErrJobNotPending) {
		t.Fatalf("expected ErrJobNotPending on replay, got %v", err)
	}
	if len(storage.facts) != 1 {
		t.Fatalf("replay must not re-ingest rows, facts: %d", len(storage.facts))
	}
}

func TestProcessHeaderOnlyFileCompletes(t *testing.T) {
	storage := newFakeStorage()
	svc := newTestService(storage, newFakeFiles(), &fakeQueue{}, &fakeCache{})

	job := uploadAndGet(t, svc, KindSales, "date,customer,quantity,price\n")
	if err := svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, err := svc.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != JobCompleted {
		t.Fatalf("expected completed job for exhausted input, got %s", got.Status)
	}
	if got.TotalRows != 0 || got.ImportedRows != 0 || got.FailedRows != 0 {
		t.Fatalf("expected zero counters, got %+v", got)
	}
}

func TestProcessUnparseableFileFailsJob(t *testing.T) {
	storage := newFakeStorage()
	svc := newTestService(storage, newFakeFiles(), &fakeQueue{}, &fakeCache{})

	job := uploadAndGet(t, svc, KindSales, "nothing,useful\n1,2\n")
	if err := svc.Process(context.Background(), job.ID); err == nil {
		t.Fatal("expected failure for unrecognizable header")
	}
	got, _ := svc.Get(context.Background(), job.ID)
	if got.Status != JobFailed {
		t.Fatalf("expected failed job, got %s", got.Status)
	}
}

func TestProcessMasterDataUpload(t *testing.T) {
	storage := newFakeStorage()
	svc := newTestService(storage, newFakeFiles(), &fakeQueue{}, &fakeCache{})

	content := "name,region\nIvanov,North\nPetrov,South\nIVANOV,North\n"
	job := uploadAndGet(t, svc, KindCustomers, content)
	if err := svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := svc.Get(context.Background(), job.ID)
	if got.Status != JobCompleted || got.ImportedRows != 3 {
		t.Fatalf("unexpected job state: %+v", got)
	}
	// Case-insensitive dedup: IVANOV folds into Ivanov.
	if len(storage.customers) != 2 {
		t.Fatalf("expected 2 distinct customers, got %d", len(storage.customers))
	}
	if len(storage.facts) != 0 {
		t.Fatalf("master uploads must not write facts, got %d", len(storage.facts))
	}
}

func TestDeleteCascadeRemovesFactsAndFile(t *testing.T) {
	storage := newFakeStorage()
	files := newFakeFiles()
	cache := &fakeCache{}
	svc := newTestService(storage, files, &fakeQueue{}, cache)

	job := uploadAndGet(t, svc, KindSales, "date,customer,quantity,price\n2025-03-01,Ivanov,1,10\n")
	if err := svc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := svc.Delete(context.Background(), job.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := svc.Get(context.Background(), job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected job gone, got %v", err)
	}
	if len(storage.facts) != 0 {
		t.Fatalf("expected facts cascade-deleted, got %d", len(storage.facts))
	}
	if len(files.removed) != 1 {
		t.Fatalf("expected upload file removed, got %v", files.removed)
	}
	// Master-data entities survive deletion.
	if len(storage.customers) != 1 {
		t.Fatalf("entities must survive cascade delete, got %d customers", len(storage.customers))
	}
	if cache.bumps != 2 {
		t.Fatalf("expected bump on completion and deletion, got %d", cache.bumps)
	}
}

func TestResetStuckRequiresStaleProcessingJob(t *testing.T) {
	storage := newFakeStorage()
	svc := newTestService(storage, newFakeFiles(), &fakeQueue{}, &fakeCache{})

	job := uploadAndGet(t, svc, KindSales, "date,customer,quantity,price\n2025-03-01,Ivanov,1,10\n")

	// Pending jobs are not resettable.
	if err := svc.ResetStuck(context.Background(), job.ID); !errors.Is(err, ErrJobNotResettable) {
		t.Fatalf("expected ErrJobNotResettable for pending job, got %v", err)
	}

	// Simulate a worker that died mid-run half a day ago.
	stale := time.Now().UTC().Add(-12 * time.Hour)
	storage.mu.Lock()
	storage.jobs[job.ID].Status = JobProcessing
	storage.jobs[job.ID].UpdatedAt = stale
	storage.mu.Unlock()

	if err := svc.ResetStuck(context.Background(), job.ID); err != nil {
		t.Fatalf("reset stale job: %v", err)
	}
	got, _ := svc.Get(context.Background(), job.ID)
	if got.Status != JobPending {
		t.Fatalf("expected pending after reset, got %s", got.Status)
	}

	// A recently active processing job stays untouched.
	storage.mu.Lock()
	storage.jobs[job.ID].Status = JobProcessing
	storage.jobs[job.ID].UpdatedAt = time.Now().UTC()
	storage.mu.Unlock()
	if err := svc.ResetStuck(context.Background(), job.ID); !errors.Is(err, ErrJobNotResettable) {
		t.Fatalf("expected ErrJobNotResettable for fresh job, got %v", err)
	}
}
