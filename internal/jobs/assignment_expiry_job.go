package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AssignmentExpiryJobName is the name of the assignment expiry sweep
const AssignmentExpiryJobName = "assignment_expiry"

// AssignmentExpirer deactivates project assignments past their expiry.
// This interface allows the job to call the service without importing the service package directly.
type AssignmentExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// AssignmentExpiryJob flips isActive off on assignments whose expiresAt has passed
type AssignmentExpiryJob struct {
	expirer AssignmentExpirer
	logger  *zap.Logger
	timeout time.Duration
}

// NewAssignmentExpiryJob creates the sweep. The timeout bounds one run.
func NewAssignmentExpiryJob(expirer AssignmentExpirer, logger *zap.Logger, timeout time.Duration) *AssignmentExpiryJob {
	return &AssignmentExpiryJob{
		expirer: expirer,
		logger:  logger,
		timeout: timeout,
	}
}

// Run executes one sweep
func (j *AssignmentExpiryJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	expired, err := j.expirer.ExpireStale(ctx)
	if err != nil {
		return err
	}
	if expired > 0 {
		j.logger.Info("expired project assignments",
			zap.Int("expired", expired),
			zap.Duration("duration", time.Since(start)))
	}
	return nil
}

// RegisterAssignmentExpiryJob registers the sweep with the scheduler. When
// runAtStartup is set one sweep runs in the background immediately so
// assignments that lapsed while the process was down are closed.
func RegisterAssignmentExpiryJob(scheduler *Scheduler, expirer AssignmentExpirer, logger *zap.Logger, cronExpr string, timeout time.Duration, runAtStartup bool) error {
	job := NewAssignmentExpiryJob(expirer, logger, timeout)

	if runAtStartup {
		go scheduler.run(AssignmentExpiryJobName, job.Run)
	}

	return scheduler.AddJob(AssignmentExpiryJobName, cronExpr, job.Run)
}
