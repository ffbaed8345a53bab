package sweep

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/ernop/gpt-webdiff/internal/logger"
	"github.com/ernop/gpt-webdiff/internal/summarize"
)

// Watch runs CheckCron on schedule until ctx is done. A sweep still
// running when the next tick arrives causes that tick to be skipped.
// A fatal parse failure stops the loop and is returned.
func (s *Sweeper) Watch(ctx context.Context, schedule string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clog := cronLogger{log: s.log}
	c := cron.New(cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)))

	var (
		mu    sync.Mutex
		fatal error
	)
	_, err := c.AddFunc(schedule, func() {
		_, err := s.CheckCron(ctx, false)
		switch {
		case err == nil:
		case errors.Is(err, ErrSweepInProgress):
			s.log.Warn("Skipping tick, another sweep holds the lock")
		case errors.Is(err, summarize.ErrFatalParse):
			mu.Lock()
			fatal = err
			mu.Unlock()
			cancel()
		case ctx.Err() != nil:
		default:
			s.log.Error("Sweep failed", logger.Error(err))
		}
	})
	if err != nil {
		return errors.Wrapf(err, "invalid schedule %q", schedule)
	}

	s.log.Info("Watching", logger.String("schedule", schedule))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("Watch stopped")

	mu.Lock()
	defer mu.Unlock()
	return fatal
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
