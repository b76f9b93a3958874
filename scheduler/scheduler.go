// Package scheduler drives the periodic background work of the engine:
// - crypto and equity ingestion (fetch, replace cache snapshot, broadcast)
// - alert evaluation on its own interval
// - daily cleanup of expired triggered alerts
//
// Each cycle is self-excluding; a tick that finds its previous run still in
// flight is dropped, never queued. The jobs live in jobs.go.
package scheduler
