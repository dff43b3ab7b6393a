package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

// Names of the maintenance jobs.
const (
	JobFetchFio              = "fetch_fio"
	JobCheckUnclosedEvents   = "check_unclosed_events"
	JobCheckUnclosedTraining = "check_unclosed_trainings"
	JobFeatureExpiryMail     = "send_feature_expiry_mail"
	JobCollectTokens         = "garbage_collect_tokens"
)

type expiryNotifier interface {
	SendExpiryNotices(ctx context.Context) (int, error)
}

type unclosedReminder interface {
	RemindUnclosed(ctx context.Context, kind models.EventKind) (int, error)
}

type bankReconciler interface {
	Run(ctx context.Context, days int) (*ReconcileResult, error)
}

type tokenCollector interface {
	CollectExpiredTokens(ctx context.Context) (TokenCollection, error)
}

// JobOptions tunes a single job run.
type JobOptions struct {
	Days int
}

// JobReport describes a finished job.
type JobReport struct {
	Job      string         `json:"job"`
	Started  time.Time      `json:"started"`
	Duration time.Duration  `json:"duration"`
	Counts   map[string]int `json:"counts"`
}

// JobService runs the periodic maintenance jobs, from the CLI or on demand
// over HTTP.
type JobService struct {
	features   expiryNotifier
	occurrence unclosedReminder
	reconciler bankReconciler
	tokens     tokenCollector
	logger     *zap.Logger
	clock      Clock
}

// NewJobService creates an instance of JobService.
func NewJobService(features expiryNotifier, occurrences unclosedReminder, reconciler bankReconciler, tokens tokenCollector, logger *zap.Logger) *JobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobService{
		features:   features,
		occurrence: occurrences,
		reconciler: reconciler,
		tokens:     tokens,
		logger:     logger,
		clock:      systemClock,
	}
}

// Names lists the jobs Run accepts.
func (s *JobService) Names() []string {
	names := []string{JobFetchFio, JobCheckUnclosedEvents, JobCheckUnclosedTraining, JobFeatureExpiryMail, JobCollectTokens}
	sort.Strings(names)
	return names
}

// Run executes the named job.
func (s *JobService) Run(ctx context.Context, name string, opts JobOptions) (*JobReport, error) {
	report := &JobReport{Job: name, Started: s.clock(), Counts: map[string]int{}}
	var err error
	switch name {
	case JobFetchFio:
		var result *ReconcileResult
		if result, err = s.reconciler.Run(ctx, opts.Days); err == nil {
			report.Counts["entries"] = result.Entries
			for outcome, n := range result.Outcomes {
				report.Counts[outcome] = n
			}
		}
	case JobCheckUnclosedEvents:
		report.Counts["messages"], err = s.occurrence.RemindUnclosed(ctx, models.EventKindOneTime)
	case JobCheckUnclosedTraining:
		report.Counts["messages"], err = s.occurrence.RemindUnclosed(ctx, models.EventKindTraining)
	case JobFeatureExpiryMail:
		report.Counts["messages"], err = s.features.SendExpiryNotices(ctx)
	case JobCollectTokens:
		var collected TokenCollection
		if collected, err = s.tokens.CollectExpiredTokens(ctx); err == nil {
			report.Counts["reset_tokens"] = int(collected.ResetTokens)
			report.Counts["refresh_tokens"] = int(collected.RefreshTokens)
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown job %q", name))
	}
	report.Duration = s.clock().Sub(report.Started)
	if err != nil {
		s.logger.Error("job failed", zap.String("job", name), zap.Error(err))
		return nil, err
	}
	s.logger.Info("job finished", zap.String("job", name), zap.Any("counts", report.Counts), zap.Duration("duration", report.Duration))
	return report, nil
}
