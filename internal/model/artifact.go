package model

// Artifact is a file reference bound to a task's working directory and, for
// inputs, to a sibling task's output.
//
// For inputs the pair (Source, SourcePath) resolves the remote object name
// of the file to download; for outputs only Path is used, both to locate
// the local file to upload and to name the resulting remote object.
type Artifact struct {
	Path       string `json:"path"`
	Source     string `json:"source,omitempty"`
	SourcePath string `json:"sourcePath,omitempty"`
}

// IsRouted reports whether the artifact names an upstream producer.
func (a Artifact) IsRouted() bool {
	return a.Source != ""
}
