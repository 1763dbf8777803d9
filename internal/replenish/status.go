package replenish

import (
	"errors"

	"github.com/hibiken/asynq"
)

// QueueStatus aggregates job counts across the three priority queues.
type QueueStatus struct {
	Waiting   int  `json:"waiting"`
	Active    int  `json:"active"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	IsPaused  bool `json:"is_paused"`
}

// QueueInspector is the slice of asynq.Inspector the status reader needs.
type QueueInspector interface {
	GetQueueInfo(qname string) (*asynq.QueueInfo, error)
}

// Status sums job counts over all replenishment queues. Queues that have
// never seen a job do not exist yet in redis and are skipped. Archived jobs
// exhausted their retries, so they count as failed.
func Status(insp QueueInspector) (QueueStatus, error) {
	var out QueueStatus
	for _, q := range []string{QueueCritical, QueueDefault, QueueLow} {
		info, err := insp.GetQueueInfo(q)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return QueueStatus{}, err
		}
		out.Waiting += info.Pending + info.Scheduled + info.Retry
		out.Active += info.Active
		out.Completed += info.Completed
		out.Failed += info.Archived
		out.IsPaused = out.IsPaused || info.Paused
	}
	return out, nil
}
