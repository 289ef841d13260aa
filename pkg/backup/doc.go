// Package backup implements Backup/Restore (C7) through the
// backup-manager.sh script convention: capability detection, JSON-over-
// stdout create/restore, and sidecar metadata for listing.
package backup
