package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"wavebatch/internal/model"
	"wavebatch/internal/opt"
)

func validateCmd(args []string, stdout, stderr io.Writer) int {
	fs := newFlags("validate", stderr)
	fs.StringP("instance", "i", "", "instance file")
	fs.String("solution", "", "solution file (text, or JSON with --json)")
	fs.Bool("json", false, `solution is {"selected_orders": [...], "visited_aisles": [...]}`)
	fs.String("emit", "", "also write the solution in text form to this file")
	v, err := bind(fs, args)
	if err != nil {
		return exitUsage
	}
	instPath, solPath := v.GetString("instance"), v.GetString("solution")
	if instPath == "" || solPath == "" {
		fmt.Fprintln(stderr, "validate: --instance and --solution are required")
		return exitUsage
	}
	inst, err := model.LoadInstance(instPath)
	if err != nil {
		fmt.Fprintln(stderr, "validate:", err)
		return exitFailure
	}
	sol, err := readSolution(solPath, v.GetBool("json"))
	if err != nil {
		fmt.Fprintln(stderr, "validate:", err)
		return exitFailure
	}
	rep, err := opt.ValidateSolution(inst, sol)
	if err != nil {
		fmt.Fprintln(stderr, "validate:", err)
		return exitFailure
	}
	if out := v.GetString("emit"); out != "" {
		if err := writeFileAtomic(out, []byte(opt.FormatSolution(sol))); err != nil {
			fmt.Fprintln(stderr, "validate:", err)
			return exitFailure
		}
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"feasible": rep.Feasible(), "report": rep})
	if !rep.Feasible() {
		return exitInfeasible
	}
	return exitOK
}

func readSolution(path string, asJSON bool) (opt.Solution, error) {
	f, err := os.Open(path)
	if err != nil {
		return opt.Solution{}, err
	}
	defer f.Close()
	if !asJSON {
		return opt.ParseSolution(f)
	}
	var sol opt.Solution
	if err := json.NewDecoder(f).Decode(&sol); err != nil {
		return opt.Solution{}, fmt.Errorf("%w: %v", opt.ErrMalformedSolution, err)
	}
	return sol, nil
}
