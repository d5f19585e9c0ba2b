// Package vcs holds the shared types and errors for version control access.
//
// chatsync pushes the local SillyTavern chat directory to the same GitHub
// repository the viewer loads from. The git implementation lives in
// internal/vcs/git; this package keeps the option types, sentinel errors
// and command helpers it shares with its callers.
package vcs

// CommitOptions configures a commit of the staged changes
type CommitOptions struct {
	// Message is the commit message (required)
	Message string
}

// PushOptions configures a push operation
type PushOptions struct {
	// Remote is the remote name. Empty uses origin.
	Remote string

	// Ref is the branch to push (required)
	Ref string

	// SetUpstream configures the upstream tracking reference
	SetUpstream bool
}
