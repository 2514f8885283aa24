package buildinfo

// Set at build time via -ldflags.
var (
    Version = "dev"
    Commit  = "none"
    BuiltAt = "unknown"
)

func Info() map[string]string {
    return map[string]string{
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
    }
}
