package coordinator

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// Schedule runs a cycle of c on every tick of spec (standard cron syntax or
// a descriptor such as "@every 30s") until ctx is done. A tick that fires
// while the previous cycle is still running is skipped. Failed cycles are
// logged and retried on the next tick.
func Schedule(ctx context.Context, spec string, c *Coordinator) error {
	logger := cronLogger{logger: c.logger.With().Str("schedule", spec).Logger()}
	runner := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))

	_, err := runner.AddFunc(spec, func() {
		// the report and error are logged by Cycle
		_, _ = c.Cycle(ctx)
	})
	if err != nil {
		return err
	}

	runner.Start()
	<-ctx.Done()
	<-runner.Stop().Done()
	return nil
}
