// Package preflight provides readiness checks for the external tools,
// stores and directories the corpus pipeline depends on.
//
// These checks run in two contexts:
//   - The diarizer calls VerifyHubToken at construction so a bad model hub
//     credential stops the run before any file is touched.
//   - The CLI "audiocorpus check" command runs RunAll and CheckSystemDeps to
//     display readiness of every configured collaborator.
//
// Checks for disabled features are skipped.
package preflight
