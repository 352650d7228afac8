package buildinfo

// Set via -ldflags at build time; defaults identify a local dev build.
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

// Info is the build identity reported by the health endpoint.
type Info struct {
    Version string `json:"version"`
    Commit  string `json:"commit,omitempty"`
    BuiltAt string `json:"builtAt,omitempty"`
}

func Current() Info {
    return Info{Version: Version, Commit: Commit, BuiltAt: BuiltAt}
}
