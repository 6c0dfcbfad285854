// Package main hosts the audiocorpus CLI.
//
// The Cobra command tree loads configuration, opens the progress store and
// blob store, and hands work to internal/workflow. Subcommands cover batch
// runs, retries, status and failure views, speaker split summaries, raw
// uploads, dataset publishing, environment checks and configuration
// scaffolding. Processing logic belongs in the internal packages; commands
// here only wire and render.
package main
