// Package gorm provides GORM-backed implementations of the kenmon store
// interfaces. The OTP used latch and session invalidation are conditional
// UPDATEs checked via RowsAffected, which is what makes them safe under
// concurrent redemption - the database, not the process, arbitrates.
//
// Run AutoMigrate(db) once at startup to create the tables.
package gorm
