package app

import (
	"context"
	"fmt"
	"time"

	"busybeaver/internal/notify"
	"busybeaver/internal/queue"
	"busybeaver/pkg/requestcontext"
)

// JobRecordSync stores the time an installation last synced.
const JobRecordSync = "kvstore.record_sync"

// RecordSyncPayload is the JobRecordSync payload.
type RecordSyncPayload struct {
	InstallationID string `json:"installation_id"`
	Key            string `json:"key"`
}

func (a *App) registerJobs() {
	a.queue.Register(notify.JobPostMessage, RequireAppContext(notify.JobHandler(a.notify)))
	a.queue.Register(JobRecordSync, RequireAppContext(recordSync))
}

func recordSync(ctx context.Context, job *queue.Job) (any, error) {
	current, _ := FromContext(ctx)

	var p RecordSyncPayload
	if err := job.Decode(&p); err != nil {
		return nil, err
	}
	if p.Key == "" {
		p.Key = "last_sync"
	}
	at := requestcontext.Now(ctx).UTC()
	if err := current.KV().PutTime(ctx, p.InstallationID, p.Key, at); err != nil {
		return nil, fmt.Errorf("record sync: %w", err)
	}
	return map[string]string{"recorded_at": at.Format(time.RFC3339Nano)}, nil
}
