package core

import (
	"strings"
	"time"
)

// Quality describes how strongly a candidate's path corroborates that it is
// the intended installation rather than a stray copy of a same-named file.
type Quality string

const (
	QualityExact     Quality = "exact"
	QualityPathMatch Quality = "path-match"
	QualityPartial   Quality = "partial"
	QualityHeuristic Quality = "heuristic"
)

// Rank returns the ordinal strength of the tier, higher is stronger.
func (q Quality) Rank() int {
	switch q {
	case QualityExact:
		return 3
	case QualityPathMatch:
		return 2
	case QualityPartial:
		return 1
	default:
		return 0
	}
}

// Candidate represents one directory evaluated as a possible installation root.
type Candidate struct {
	Folder        string            `json:"folder"`
	RequiredFiles map[string]string `json:"required_files"` // logical name -> resolved path, "" when absent
	PrimaryPath   string            `json:"primary_path,omitempty"`
	Version       string            `json:"version,omitempty"`
	Token         string            `json:"token,omitempty"` // public key token, lowercase hex
	Quality       Quality           `json:"quality"`
	LastModified  time.Time         `json:"last_modified"`
	Missing       []string          `json:"missing,omitempty"` // manifest declaration order
	MultiDir      bool              `json:"multi_dir,omitempty"`
	Note          string            `json:"note,omitempty"`
}

// IsValid reports whether every required file resolved to an existing file.
func (c *Candidate) IsValid() bool { return len(c.Missing) == 0 }

// Reason returns the human-readable validation failure, or "" when valid.
func (c *Candidate) Reason() string {
	if len(c.Missing) == 0 {
		return ""
	}
	return "Missing: " + strings.Join(c.Missing, ", ")
}

// ModuleIdentity is the managed identity embedded in a module file.
// An empty Culture means the neutral variant.
type ModuleIdentity struct {
	Name    string `json:"name"`
	Culture string `json:"culture,omitempty"`
	Version string `json:"version,omitempty"`
	Token   string `json:"token,omitempty"`
}

// LoadReport captures the outcome of one load attempt. It is written once by
// the orchestrator and read-only afterwards.
type LoadReport struct {
	PrimaryPath    string            `json:"primary_path"`
	PrimaryVersion string            `json:"primary_version,omitempty"`
	SearchDirs     []string          `json:"search_dirs"`
	Loaded         map[string]string `json:"loaded"`           // module name -> path
	Failed         map[string]string `json:"failed,omitempty"` // module name -> error text
	PathHead       []string          `json:"path_head,omitempty"`
	PingOK         bool              `json:"ping_ok"`
}

// Exit codes
const (
	ExitSuccess     = 0
	ExitGeneral     = 1
	ExitNoInstall   = 2
	ExitLoadFailed  = 3
	ExitAmbiguous   = 4
	ExitInterrupted = 130
)

// PathKey canonicalizes a path for identity comparisons: backslashes become
// forward slashes, everything is lowercased, trailing separators are dropped.
func PathKey(path string) string {
	v := strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
	for len(v) > 1 && strings.HasSuffix(v, "/") {
		v = strings.TrimSuffix(v, "/")
	}
	return v
}
