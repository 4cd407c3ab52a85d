package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"wavebatch/internal/model"
	"wavebatch/internal/opt"
)

func solveCmd(args []string, stdout, stderr io.Writer) int {
	fs := newFlags("solve", stderr)
	solverFlags(fs)
	fs.StringP("instance", "i", "", "instance file (or first argument)")
	fs.StringP("output", "o", "", "solution file (default stdout)")
	fs.String("checkpoint", "", "rewrite this file with the best wave after every improvement")
	v, err := bind(fs, args)
	if err != nil {
		return exitUsage
	}
	path := firstArg(v, fs, "instance")
	if path == "" {
		fmt.Fprintln(stderr, "solve: instance file required")
		return exitUsage
	}
	d, err := solverDefaults(v)
	if err != nil {
		fmt.Fprintln(stderr, "solve:", err)
		return exitUsage
	}
	inst, err := model.LoadInstance(path)
	if err != nil {
		fmt.Fprintln(stderr, "solve:", err)
		return exitFailure
	}

	ctx := context.Background()
	if d.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(d.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	p := d.Params()
	if cp := v.GetString("checkpoint"); cp != "" {
		p.Hooks.OnCheckpoint = func(c opt.Checkpoint) {
			text := opt.FormatSolution(opt.Solution{Orders: c.Orders, Aisles: c.Aisles})
			if err := writeFileAtomic(cp, []byte(text)); err != nil {
				log.Warn().Err(err).Str("path", cp).Msg("write checkpoint")
			}
		}
	}

	res, err := opt.Solve(ctx, inst, p)
	switch {
	case errors.Is(err, opt.ErrNoFeasibleBatch):
		fmt.Fprintln(stderr, opt.ErrNoFeasibleBatch.Error())
		return exitInfeasible
	case errors.Is(err, context.DeadlineExceeded) && res.Best != nil:
		log.Warn().Dur("timeout", time.Duration(d.TimeoutMs)*time.Millisecond).Msg("timed out; writing best wave found so far")
	case errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintln(stderr, "solve: timed out before finding a feasible batch")
		return exitInfeasible
	case err != nil:
		fmt.Fprintln(stderr, "solve:", err)
		return exitFailure
	}

	text := []byte(opt.FormatSolution(res.Solution))
	if out := v.GetString("output"); out != "" {
		if err := writeFileAtomic(out, text); err != nil {
			fmt.Fprintln(stderr, "solve:", err)
			return exitFailure
		}
	} else {
		_, _ = stdout.Write(text)
	}
	log.Info().
		Str("instance", path).
		Str("algorithm", res.Algorithm).
		Float64("efficiency", res.Best.Fitness).
		Int("total_items", res.Best.TotalItems).
		Int("aisles", len(res.Solution.Aisles)).
		Int("evaluations", res.Stats.Evaluations).
		Int("cache_hits", res.Stats.CacheHits).
		Dur("took", res.Duration).
		Msg("solved")
	return exitOK
}

// writeFileAtomic replaces path so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".wavebatch-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
