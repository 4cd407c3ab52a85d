// Command wavebatch solves, validates and benchmarks wave batching instances.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"wavebatch/internal/buildinfo"
	"wavebatch/internal/config"
	"wavebatch/internal/logging"
)

const usage = `usage: wavebatch <command> [flags]

commands:
  solve     search for a wave and write the solution file
  validate  check a solution against an instance
  batch     solve many instances with many algorithms
  explore   sample random waves for baseline statistics
  version   print the build version

Every flag can also be set as WAVEBATCH_<FLAG>, e.g. WAVEBATCH_SEED=7.
`

// Exit codes.
const (
	exitOK         = 0
	exitFailure    = 1
	exitUsage      = 2
	exitInfeasible = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "solve":
		return solveCmd(rest, stdout, stderr)
	case "validate":
		return validateCmd(rest, stdout, stderr)
	case "batch":
		return batchCmd(rest, stdout, stderr)
	case "explore":
		return exploreCmd(rest, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return exitOK
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return exitUsage
	}
}

// newFlags creates a flag set carrying the flags every command shares.
func newFlags(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.Bool("log-json", false, "log JSON lines instead of console output")
	return fs
}

// solverFlags adds the search tuning flags.
func solverFlags(fs *pflag.FlagSet) {
	fs.StringP("algorithm", "a", "", "grasp, pso, pso-velocity or all")
	fs.Int64P("seed", "s", 0, "random seed (default from solver config)")
	fs.Int("iterations", 0, "search iterations")
	fs.Int("particles", 0, "PSO swarm size")
	fs.Float64("mutation-rate", 0, "PSO order flip probability")
	fs.Int("top-k", 0, "GRASP restricted candidate list size")
	fs.Int("max-aisles", 0, "GRASP initial aisle subset bound")
	fs.String("solver-config", "", "YAML file with solver defaults")
	fs.Duration("timeout", 0, "stop searching after this long")
}

// bind parses args into fs and layers WAVEBATCH_* environment variables under the flags.
func bind(fs *pflag.FlagSet, args []string) (*viper.Viper, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetEnvPrefix("WAVEBATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	logging.Setup(fs.Output(), !v.GetBool("log-json"), v.GetString("log-level"))
	return v, nil
}

// solverDefaults resolves solver settings: file, then flags.
func solverDefaults(v *viper.Viper) (config.SolverDefaults, error) {
	d, err := config.LoadSolverDefaults(v.GetString("solver-config"))
	if err != nil {
		return d, err
	}
	if a := v.GetString("algorithm"); a != "" {
		d.Algorithm = a
	}
	if v.IsSet("seed") {
		d.Seed = v.GetInt64("seed")
	}
	if n := v.GetInt("iterations"); n > 0 {
		d.Grasp.Iterations, d.PSO.Iterations = n, n
	}
	if n := v.GetInt("particles"); n > 0 {
		d.PSO.Particles = n
	}
	if r := v.GetFloat64("mutation-rate"); r > 0 {
		d.PSO.MutationRate = r
	}
	if n := v.GetInt("top-k"); n > 0 {
		d.Grasp.TopK = n
	}
	if n := v.GetInt("max-aisles"); n > 0 {
		d.Grasp.MaxAisles = n
	}
	if t := v.GetDuration("timeout"); t > 0 {
		d.TimeoutMs = int(t / time.Millisecond)
	}
	return d, d.Validate()
}

// firstArg returns the --name flag value or the first positional argument.
func firstArg(v *viper.Viper, fs *pflag.FlagSet, name string) string {
	if s := v.GetString(name); s != "" {
		return s
	}
	return fs.Arg(0)
}
