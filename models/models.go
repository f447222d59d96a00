package models

import "errors"

// ErrForumNotFound is returned when a forum thread cannot be located upstream.
var ErrForumNotFound = errors.New("forum not found")

// VersionEntry is one distinct forum thread representing a version of a paper.
type VersionEntry struct {
	ForumID  string `json:"forumId"`
	ForumURL string `json:"forumUrl"`
	Label    string `json:"label"`
}

// LookupResult is the settled outcome of a title lookup. Found=false always
// carries a human-readable Reason; Found=true always carries a non-empty
// Versions list whose first entry equals ForumID/ForumURL.
type LookupResult struct {
	Found     bool           `json:"found"`
	Reason    string         `json:"reason,omitempty"`
	SearchURL string         `json:"searchUrl"`
	ForumID   string         `json:"forumId,omitempty"`
	ForumURL  string         `json:"forumUrl,omitempty"`
	Versions  []VersionEntry `json:"versions,omitempty"`
}
