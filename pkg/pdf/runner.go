package pdf

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Runner lets tests stub the poppler binaries.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger zerolog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	ev := r.logger.Debug()
	if err != nil {
		ev = r.logger.Error().Err(err).Str("stderr", truncate(errb.String(), 8<<10))
	}
	ev.Str("cmd", name).
		Str("args", strings.Join(args, " ")).
		Dur("duration", time.Since(start)).
		Int("stdout_bytes", out.Len()).
		Msg("exec")

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
