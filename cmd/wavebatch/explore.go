package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"wavebatch/internal/model"
	"wavebatch/internal/opt"
)

func exploreCmd(args []string, stdout, stderr io.Writer) int {
	fs := newFlags("explore", stderr)
	fs.StringP("instance", "i", "", "instance file (or first argument)")
	fs.Int("samples", 1000, "random waves to draw")
	fs.Int64P("seed", "s", 1, "random seed")
	v, err := bind(fs, args)
	if err != nil {
		return exitUsage
	}
	path := firstArg(v, fs, "instance")
	if path == "" {
		fmt.Fprintln(stderr, "explore: instance file required")
		return exitUsage
	}
	inst, err := model.LoadInstance(path)
	if err != nil {
		fmt.Fprintln(stderr, "explore:", err)
		return exitFailure
	}
	s := opt.NewSession(inst, v.GetInt64("seed"))
	ws, err := opt.SampleWaves(context.Background(), s, v.GetInt("samples"))
	if err != nil {
		fmt.Fprintln(stderr, "explore:", err)
		return exitFailure
	}
	out := map[string]any{
		"samples":  ws.Samples,
		"inBounds": ws.InBounds,
		"feasible": ws.Feasible,
		"mean":     ws.Mean,
		"median":   ws.Median,
	}
	if ws.Best != nil {
		sol, _ := opt.Emit(ws.Best)
		out["best"] = map[string]any{"efficiency": ws.Best.Fitness, "totalItems": ws.Best.TotalItems, "solution": sol}
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
	return exitOK
}
