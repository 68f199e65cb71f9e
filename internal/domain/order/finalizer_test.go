package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockJobRepo struct {
	mu     sync.Mutex
	nextID int64
	jobs   []Job
	done   []int64
	failed map[int64]string
}

func newMockJobRepo() *mockJobRepo {
	return &mockJobRepo{failed: make(map[int64]string)}
}

func (m *mockJobRepo) Enqueue(_ context.Context, orderID int64, target Status) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.jobs = append(m.jobs, Job{ID: m.nextID, OrderID: orderID, TargetStatus: target, State: JobPending})
	return m.nextID, nil
}

func (m *mockJobRepo) Pending(_ context.Context, limit int) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, j := range m.jobs {
		if j.State == JobPending {
			out = append(out, j)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *mockJobRepo) MarkDone(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setState(id, JobDone)
	m.done = append(m.done, id)
	return nil
}

func (m *mockJobRepo) MarkFailed(_ context.Context, id int64, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setState(id, JobFailed)
	m.failed[id] = msg
	return nil
}

func (m *mockJobRepo) setState(id int64, state JobState) {
	for i := range m.jobs {
		if m.jobs[i].ID == id {
			m.jobs[i].State = state
		}
	}
}

func (m *mockJobRepo) doneIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.done...)
}

func (m *mockJobRepo) failedMsg(id int64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.failed[id]
	return msg, ok
}

type mockStatusOrderRepo struct {
	mu       sync.Mutex
	orders   map[int64]*Order
	updErr   error
	statuses []Status
}

func (m *mockStatusOrderRepo) Create(_ context.Context, _ *Order) error { return nil }

func (m *mockStatusOrderRepo) GetByID(_ context.Context, id int64) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, errors.New("order not found")
	}
	cp := *o
	return &cp, nil
}

func (m *mockStatusOrderRepo) UpdateStatus(_ context.Context, id int64, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updErr != nil {
		return m.updErr
	}
	m.orders[id].Status = status
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *mockStatusOrderRepo) LatestForProduct(_ context.Context, _ int64) (*Summary, error) {
	return nil, nil
}

func (m *mockStatusOrderRepo) status(id int64) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

func (m *mockStatusOrderRepo) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.statuses)
}

// startFinalizer runs the worker and returns a stop function that blocks
// until it has exited.
func startFinalizer(f *Finalizer) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	go f.Run(ctx)
	return func() {
		cancel()
		f.Wait()
	}
}

func TestFinalizer_ProcessesScheduledJob(t *testing.T) {
	jobs := newMockJobRepo()
	orders := &mockStatusOrderRepo{orders: map[int64]*Order{
		1: {ID: 1, Status: StatusPending},
	}}
	f := NewFinalizer(jobs, orders, zap.NewNop(), time.Hour)

	var (
		mu         sync.Mutex
		transition []Status
	)
	f.RegisterHandler(StatusChangedFunc(func(_ context.Context, o *Order, previous Status) error {
		mu.Lock()
		defer mu.Unlock()
		transition = []Status{previous, o.Status}
		return nil
	}))

	stop := startFinalizer(f)
	defer stop()

	require.NoError(t, f.Schedule(context.Background(), 1, StatusProcessing))

	require.Eventually(t, func() bool {
		return len(jobs.doneIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, StatusProcessing, orders.status(1))
	mu.Lock()
	assert.Equal(t, []Status{StatusPending, StatusProcessing}, transition)
	mu.Unlock()
}

func TestFinalizer_StartupDrainPicksUpPreexistingJobs(t *testing.T) {
	// Simulates a job enqueued before a restart: it exists in the store but
	// no nudge was ever delivered to this process.
	jobs := newMockJobRepo()
	_, err := jobs.Enqueue(context.Background(), 2, StatusCompleted)
	require.NoError(t, err)

	orders := &mockStatusOrderRepo{orders: map[int64]*Order{
		2: {ID: 2, Status: StatusPending},
	}}
	f := NewFinalizer(jobs, orders, zap.NewNop(), time.Hour)

	stop := startFinalizer(f)
	defer stop()

	require.Eventually(t, func() bool {
		return orders.status(2) == StatusCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestFinalizer_AlreadyAtTarget(t *testing.T) {
	jobs := newMockJobRepo()
	orders := &mockStatusOrderRepo{orders: map[int64]*Order{
		3: {ID: 3, Status: StatusProcessing},
	}}
	f := NewFinalizer(jobs, orders, zap.NewNop(), time.Hour)

	stop := startFinalizer(f)
	defer stop()

	require.NoError(t, f.Schedule(context.Background(), 3, StatusProcessing))

	require.Eventually(t, func() bool {
		return len(jobs.doneIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Zero(t, orders.updateCount(), "no redundant update issued")
}

func TestFinalizer_FailedTransitionMarksJobFailed(t *testing.T) {
	jobs := newMockJobRepo()
	orders := &mockStatusOrderRepo{
		orders: map[int64]*Order{4: {ID: 4, Status: StatusPending}},
		updErr: errors.New("deadlock detected"),
	}
	f := NewFinalizer(jobs, orders, zap.NewNop(), time.Hour)

	stop := startFinalizer(f)
	defer stop()

	require.NoError(t, f.Schedule(context.Background(), 4, StatusProcessing))

	require.Eventually(t, func() bool {
		_, ok := jobs.failedMsg(1)
		return ok
	}, time.Second, 5*time.Millisecond)

	msg, _ := jobs.failedMsg(1)
	assert.Contains(t, msg, "deadlock")
	assert.Empty(t, jobs.doneIDs())
	assert.Equal(t, StatusPending, orders.status(4), "order stays pending for reconciliation")
}

func TestFinalizer_HandlerErrorDoesNotFailJob(t *testing.T) {
	jobs := newMockJobRepo()
	orders := &mockStatusOrderRepo{orders: map[int64]*Order{
		5: {ID: 5, Status: StatusPending},
	}}
	f := NewFinalizer(jobs, orders, zap.NewNop(), time.Hour)
	f.RegisterHandler(StatusChangedFunc(func(_ context.Context, _ *Order, _ Status) error {
		return errors.New("notification service down")
	}))

	stop := startFinalizer(f)
	defer stop()

	require.NoError(t, f.Schedule(context.Background(), 5, StatusCompleted))

	require.Eventually(t, func() bool {
		return len(jobs.doneIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, StatusCompleted, orders.status(5))
}

func TestFinalizer_ScheduleNudgeNeverBlocks(t *testing.T) {
	jobs := newMockJobRepo()
	f := NewFinalizer(jobs, &mockStatusOrderRepo{orders: map[int64]*Order{}}, zap.NewNop(), time.Hour)

	// Without a running worker the nudge channel fills after one send; the
	// rest must still return immediately.
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, f.Schedule(context.Background(), i, StatusProcessing))
	}
	assert.Len(t, jobs.jobs, 5)
}
