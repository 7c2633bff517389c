package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/anjiri1684/attendance_chat/repositories"
	"github.com/robfig/cron/v3"
)

// ChatRetentionJob deletes chat messages older than the retention window.
type ChatRetentionJob struct {
	messages  repositories.IMessageRepository
	retention time.Duration
	timeout   time.Duration
	log       *slog.Logger
	now       func() time.Time
}

func NewChatRetentionJob(messages repositories.IMessageRepository, retention time.Duration, log *slog.Logger) *ChatRetentionJob {
	return &ChatRetentionJob{
		messages:  messages,
		retention: retention,
		timeout:   time.Minute,
		log:       log,
		now:       time.Now,
	}
}

// Run performs one sweep. Failures are logged and left for the next tick.
func (j *ChatRetentionJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	cutoff := j.now().Add(-j.retention)
	deleted, err := j.messages.PurgeExpired(ctx, cutoff)
	if err != nil {
		j.log.Error("chat cleanup failed", "cutoff", cutoff, "error", err)
		return
	}
	j.log.Info("chat cleanup", "deleted", deleted, "retention", j.retention.String())
}

// Schedule registers the sweep on c and runs it once right away.
func (j *ChatRetentionJob) Schedule(c *cron.Cron, schedule string) (cron.EntryID, error) {
	id, err := c.AddJob(schedule, j)
	if err != nil {
		return 0, err
	}
	go j.Run()
	return id, nil
}
