package domain

import "fmt"

// Role identifies which elementary stream a resource carries.
type Role string

const (
	RoleVideo Role = "video"
	RoleAudio Role = "audio"
)

// FallbackExt returns the extension used when content-type probing
// cannot determine one.
func (r Role) FallbackExt() string {
	if r == RoleAudio {
		return ".mp3"
	}
	return ".mp4"
}

// StagedName builds the hidden workspace filename for this role,
// e.g. ".video_a1B2c3D4.mp4".
func (r Role) StagedName(sessionID, ext string) string {
	return fmt.Sprintf(".%s_%s%s", r, sessionID, ext)
}

// MediaResource is one remote stream staged into the workspace.
type MediaResource struct {
	Role       Role
	SourceURL  string
	Ext        string
	StagedPath string
}

// MergeJob describes one stream-copy mux invocation.
type MergeJob struct {
	Tool       string
	VideoPath  string
	AudioPath  string
	OutputPath string
}

// Stage tracks pipeline progress for logging and error context.
type Stage string

const (
	StagePrepare  Stage = "prepare"
	StageProbe    Stage = "probe"
	StageDownload Stage = "download"
	StageMerge    Stage = "merge"
	StageCleanup  Stage = "cleanup"
)
