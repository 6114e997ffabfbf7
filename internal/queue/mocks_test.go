package queue

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/stretchr/testify/mock"
)

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(task.Type(), task.Payload())
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

type mockInspector struct {
	mock.Mock
}

func (m *mockInspector) GetTaskInfo(queue, id string) (*asynq.TaskInfo, error) {
	args := m.Called(queue, id)
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

func (m *mockInspector) DeleteTask(queue, id string) error {
	return m.Called(queue, id).Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Run(ctx context.Context, job service.PublishJob) service.Outcome {
	return m.Called(job).Get(0).(service.Outcome)
}

func (m *mockPublisher) FailTerminal(ctx context.Context, job service.PublishJob, cause error) error {
	return m.Called(job, cause).Error(0)
}

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) RefreshExpiring(ctx context.Context) (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) Tick(ctx context.Context) (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

func (m *mockScheduler) Sweep(ctx context.Context) (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}
