package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// Dispatcher delivers a notification request to the Center, directly or
// through a queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, in NotifyInput) error
}

// Direct hands requests straight to the Center.
type Direct struct {
	Center *Center
}

func (d Direct) Dispatch(ctx context.Context, in NotifyInput) error {
	_, _, err := d.Center.Notify(ctx, in)
	return err
}

// NewNotifyTask builds the queue task for in. The task id is derived from the
// event and recipient so a re-enqueue of the same event is rejected by Redis.
func NewNotifyTask(in NotifyInput) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{asynq.Queue(queueNotifications), asynq.MaxRetry(5)}
	if in.EventID != "" {
		opts = append(opts, asynq.TaskID(fmt.Sprintf("%s:%s", in.EventID, in.RecipientID)))
	}
	return asynq.NewTask(TaskNotify, b), opts, nil
}

// AsynqDispatcher enqueues notification requests for the Processor.
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(redisAddr string) *AsynqDispatcher {
	return &AsynqDispatcher{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, in NotifyInput) error {
	task, opts, err := NewNotifyTask(in)
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}
