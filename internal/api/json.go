package api

import (
    "encoding/json"
    "net/http"
)

// Problem is the RFC7807 error body every failing endpoint returns.
type Problem struct {
    Type     string `json:"type"`
    Title    string `json:"title"`
    Status   int    `json:"status"`
    Detail   string `json:"detail,omitempty"`
    Instance string `json:"instance,omitempty"`
}

const problemTypeBlank = "about:blank"

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
    p := Problem{
        Type:     problemTypeBlank,
        Title:    title,
        Status:   status,
        Detail:   detail,
        Instance: instance,
    }
    w.Header().Set("Content-Type", "application/problem+json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(p)
}
