// Package repository implements the fetch plan repository.
//
// The repository resolves an (entity, plan name) pair to a fully materialized
// fetch plan. Plans come from definition files deployed at initialization or
// later through the Deploy methods; the reserved names _local, _minimal and
// _base are synthesized from entity metadata on first use.
//
// # Storage
//
// Stored plans live in an arena of nodes addressed by handles. A property
// nesting a named plan holds that plan's handle, so overwriting a plan swaps
// a single arena slot and every plan nesting it observes the new definition.
// Inline nested plans are owned by their property.
//
// # Resolution
//
// Definitions are resolved by recursive descent carrying a visited set keyed
// by (entity, name). Meeting a key twice on the current path is a
// configuration error. Ancestor and nested plan names resolve against stored
// plans, then synthesized defaults, then definitions of the same deploy
// batch, and finally the ancestor entities of the class.
//
// # Concurrency
//
// A Repository is safe for concurrent use. Lookups share a read lock;
// initialization, deploy, default synthesis and Reset hold the write lock.
// Initialization runs once per generation; Reset starts a new generation.
package repository
