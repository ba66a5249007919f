// Package datamanager routes entity loads and saves to the store owning each
// entity.
//
// Loads are driven by fetch plans: local attributes of the plan are read
// from the owning store, then every reference property with a nested plan is
// loaded from its own store, concurrently, and linked back by ID.
//
// Saves group entities by store and order the stores so that referenced new
// entities get their IDs first. References that still point to an entity
// without an ID when their owner is written are fixed by one repeat pass
// after every store has been written.
package datamanager
