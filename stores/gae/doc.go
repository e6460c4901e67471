// Package gae provides Google Cloud Datastore implementations of the
// kenmon store interfaces. The OTP used latch and session invalidation run
// inside Datastore transactions so concurrent redemptions serialize at the
// database.
package gae
