package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"wavebatch/internal/opt"
	"wavebatch/internal/runner"
)

func batchCmd(args []string, stdout, stderr io.Writer) int {
	fs := newFlags("batch", stderr)
	solverFlags(fs)
	fs.StringSlice("algorithms", []string{opt.AlgorithmGrasp, opt.AlgorithmPSO}, "algorithms to run on every instance")
	fs.String("out", "results", "output directory")
	fs.Int("parallel", 4, "pairs solved at once")
	v, err := bind(fs, args)
	if err != nil {
		return exitUsage
	}
	paths, err := instancePaths(fs.Args())
	if err != nil {
		fmt.Fprintln(stderr, "batch:", err)
		return exitFailure
	}
	if len(paths) == 0 {
		fmt.Fprintln(stderr, "batch: instance files or directories required")
		return exitUsage
	}
	d, err := solverDefaults(v)
	if err != nil {
		fmt.Fprintln(stderr, "batch:", err)
		return exitUsage
	}
	timeout := time.Duration(d.TimeoutMs) * time.Millisecond
	results, err := runner.RunBatch(context.Background(), runner.BatchOptions{
		Instances:  paths,
		Algorithms: v.GetStringSlice("algorithms"),
		OutDir:     v.GetString("out"),
		Timeout:    timeout,
		Parallel:   v.GetInt("parallel"),
		Defaults:   d,
	})
	if err != nil {
		fmt.Fprintln(stderr, "batch:", err)
		return exitFailure
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tALGORITHM\tOUTCOME\tEFFICIENCY\tTOOK")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%s\n", filepath.Base(r.Instance), r.Algorithm, r.Outcome, r.Efficiency, r.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()
	return exitOK
}

// instancePaths expands directories into the regular files they contain.
func instancePaths(args []string) ([]string, error) {
	var out []string
	for _, a := range args {
		st, err := os.Stat(a)
		if err != nil {
			return nil, err
		}
		if !st.IsDir() {
			out = append(out, a)
			continue
		}
		entries, err := os.ReadDir(a)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Type().IsRegular() {
				out = append(out, filepath.Join(a, e.Name()))
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
