package model

import (
	"strings"
	"time"
)

type RunType string

const (
	RunTypeUpload  RunType = "upload"
	RunTypePreview RunType = "preview"
)

func (t RunType) String() string { return string(t) }

func (t RunType) Valid() bool {
	return t == RunTypeUpload || t == RunTypePreview
}

// ParseRunType normalizes input; returns (value, false) for anything unknown.
func ParseRunType(s string) (RunType, bool) {
	t := RunType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

type RunState string

const (
	StateStart             RunState = "start"
	StateArtifactGenerated RunState = "artifact_generated"
	StateDecoded           RunState = "decoded"
	StateRendered          RunState = "rendered"
	StateDone              RunState = "done"
	StateDoneWithWarning   RunState = "done_with_warning"
	StateAborted           RunState = "aborted"
)

func (s RunState) String() string { return string(s) }

// Succeeded reports whether the state counts as a successful command from the
// process point of view.
func (s RunState) Succeeded() bool {
	return s == StateDone || s == StateDoneWithWarning
}

// RunContext holds the identifiers of one invocation. It is built once at
// command dispatch and only read afterwards.
type RunContext struct {
	ActionID       string
	Type           RunType
	Env            string
	Mode           string
	ConfigPath     string
	ProjectPath    string
	PrivateKeyPath string
	OutputPath     string // preview only
	StartedAt      time.Time
}

// RunRecord is the persisted / published summary of a finished run.
type RunRecord struct {
	ActionID    string    `db:"action_id"    json:"action_id"`
	Type        RunType   `db:"type"         json:"type"`
	AppID       string    `db:"app_id"       json:"app_id"`
	Version     string    `db:"version"      json:"version"`
	Description string    `db:"description"  json:"description"`
	Env         string    `db:"env"          json:"env"`
	Mode        string    `db:"mode"         json:"mode"`
	User        string    `db:"user_name"    json:"user"`
	Branch      string    `db:"branch"       json:"branch"`
	CommitID    string    `db:"commit_id"    json:"commit_id"`
	State       RunState  `db:"state"        json:"state"`
	Error       string    `db:"error"        json:"error,omitempty"`
	NotifyError string    `db:"notify_error" json:"notify_error,omitempty"`
	StartedAt   time.Time `db:"started_at"   json:"started_at"`
	FinishedAt  time.Time `db:"finished_at"  json:"finished_at"`
}
