package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
)

// Processor consumes TaskNotify from Redis and stores the notifications.
type Processor struct {
	center *Center
	server *asynq.Server
}

func NewProcessor(center *Center, redisAddr string) *Processor {
	return &Processor{
		center: center,
		server: asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				queueNotifications: 10,
			},
		}),
	}
}

// Start runs the asynq server in the background.
func (p *Processor) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskNotify, p.HandleNotifyTask)
	if err := p.server.Start(mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	log.Printf("[notify] asynq processor started")
	return nil
}

func (p *Processor) Shutdown() {
	p.server.Shutdown()
}

// HandleNotifyTask stores the notification carried by t. Invalid payloads are
// not retried.
func (p *Processor) HandleNotifyTask(ctx context.Context, t *asynq.Task) error {
	var in NotifyInput
	if err := json.Unmarshal(t.Payload(), &in); err != nil {
		return fmt.Errorf("decode %s: %v: %w", TaskNotify, err, asynq.SkipRetry)
	}
	n, created, err := p.center.Notify(ctx, in)
	if err != nil {
		log.Printf("[notify][ERROR] %s for %s: %v", TaskNotify, in.RecipientID, err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if created {
		log.Printf("[notify] stored %s -> user=%s id=%s", n.Type, n.RecipientID, n.ID)
	}
	return nil
}
