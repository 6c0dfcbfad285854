// Package blobstore is the object storage collaborator used for raw audio
// uploads and dataset publishing.
//
// Store exposes exists, stat, put, list and delete over (container, key)
// pairs. LocalStore maps containers to directories; S3Store talks to any
// S3-compatible service through minio-go. Uploader layers the upload policy
// on top: skip existing or same-size objects, linear-backoff retries, and a
// cooldown before aborting when the credentials file is missing.
package blobstore
