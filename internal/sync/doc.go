// Package sync loads SillyTavern chats from a GitHub repository into the
// local chat database.
//
// Overview
//
// A sync run walks the repository two levels deep:
//
//	repository root
//	     ├── <character>/           → character folder (type "dir")
//	     │     ├── <chat>.jsonl     → chat file
//	     │     └── ...
//	     └── ...
//	                ↓
//	             Syncer
//	                ↓
//	          local store
//	                ↓
//	     Refresher (chat list re-render)
//
// Each chat file is identified by "<character>_<file name>". A file whose
// stored SHA equals the remote SHA is left alone: it is neither downloaded
// nor written. Everything else is downloaded, parsed and upserted. Files
// without any message lines are skipped.
//
// Usage
//
//	client, err := github.New(github.Options{Owner: "me", Repo: "chats", Branch: "main"})
//	if err != nil {
//	    return err
//	}
//	syncer := sync.New(client, database, sync.Options{
//	    Refresher: dashboardHandler,
//	    Alerter:   dashboardHandler,
//	})
//	result, err := syncer.LoadFromGitHub(ctx, sync.TriggerManual)
//
// Error Handling
//
// Unlike a resilient file sync, a GitHub load is all-or-nothing from the
// user's point of view: the first error (listing, download, parse, save or
// refresh) aborts the run. Chats saved before the failure stay saved. The
// error is logged, recorded in the sync history, reported to the Alerter
// and returned.
//
// Concurrency
//
// A run is strictly sequential. Callers that trigger runs from several
// sources (startup, timer, toolbar) must serialize them; the daemon does
// this with a single loop goroutine.
package sync
