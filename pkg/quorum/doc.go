// Package quorum provides the high-level library API for an appliance:
// analyzing normalized log records against the active knowledge stores
// and applying signed offline update packages.
//
// This package is the primary integration point for embedders (the CLI
// and the operator controllers are both built on it). It wraps internal
// packages into a clean, stable public API.
//
// # Concurrency Safety
//
//   - Analyze and AnalyzeBatch are safe to call concurrently with each
//     other and with Submit: every analysis reads one immutable store
//     snapshot, and a commit is a single atomic swap.
//
//   - Submit serializes per store kind. Overlapping submissions that
//     touch the same kind fail with E_CONCURRENT_UPDATE_REJECTED, both
//     in-process and across processes (lease files).
//
//   - Multiple Client instances for DIFFERENT state directories are
//     fully independent. Multiple instances for the SAME state
//     directory may analyze concurrently; their catalogs converge on
//     the next Open or LoadPersisted.
//
// # Recommended Usage Pattern
//
//	client, err := quorum.Open(stateRoot)
//	if err != nil { ... }
//	defer client.Close()
//
//	// Apply an update package delivered on removable media.
//	result, err := client.SubmitFile(ctx, "/media/usb0/2026.08.1.qup", "ops-team")
//
//	// Analyze records as they arrive.
//	verdict, err := client.Analyze(ctx, record)
package quorum
