package telemetry

import (
	"context"

	"codeberg.org/mutker/powerctl/internal/errors"
	"codeberg.org/mutker/powerctl/internal/logger"
)

type service struct {
	repo   Repository
	cfg    Config
	logger logger.Logger
}

type noopRecorder struct{}

func (noopRecorder) Record(_ context.Context, _ *Entry) error { return nil }
func (noopRecorder) Close() error                             { return nil }

// NewService returns a Recorder backed by the journal database, or a no-op
// recorder when journaling is disabled
func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("measurement journal disabled")
		return noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	return &service{
		repo:   repo,
		cfg:    cfg,
		logger: log,
	}, nil
}

func (s *service) Record(ctx context.Context, entry *Entry) error {
	errFactory := errors.New()

	if entry == nil || len(entry.Counters) == 0 {
		return errFactory.New(ErrInvalidEntry)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrRecordFailed, ctx.Err())
	default:
		if err := s.repo.Store(entry); err != nil {
			return errFactory.Wrap(ErrRecordFailed, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	return s.repo.Close()
}
