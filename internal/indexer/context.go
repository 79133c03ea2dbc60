package indexer

import (
	"context"
	"encoding/json"

	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/logger"
)

// JobContext is the per-job handle passed to a Handler: the job's own
// context, its row, and a decoder for its payload. Grounded on the
// teacher's jobs/runtime.Context, trimmed down since this engine has no
// DAG/waitpoint machinery to carry.
type JobContext struct {
	Ctx context.Context
	Job *domain.JobRun
	Log *logger.Logger
}

// Decode unmarshals the job's JSON payload into dst.
func (jc *JobContext) Decode(dst any) error {
	return json.Unmarshal(jc.Job.Payload, dst)
}
