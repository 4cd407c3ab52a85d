package buildinfo

import "runtime"

// Set at link time with -ldflags "-X wavebatch/internal/buildinfo.Version=...".
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    return map[string]string{
        "version":   Version,
        "commit":    Commit,
        "builtAt":   BuiltAt,
        "goVersion": runtime.Version(),
    }
}

// String is the one-line form printed by `wavebatch version`.
func String() string {
    s := "wavebatch " + Version
    if Commit != "" { s += " (" + Commit + ")" }
    return s + " " + runtime.Version()
}
