package api

import (
	"net/http"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/MJE43/craps-pf-go/internal/api.EngineVersion=..."
var (
	EngineVersion = "dev"
	GitCommit     = "unknown"
	BuildTime     = "unknown"
)

// VersionInfo is the /version body.
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
	GoVersion     string `json:"go_version"`
	Module        string `json:"module,omitempty"`
}

func versionInfo() VersionInfo {
	v := VersionInfo{
		EngineVersion: EngineVersion,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
		GoVersion:     runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		v.Module = bi.Main.Path
	}
	return v
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, versionInfo())
}
