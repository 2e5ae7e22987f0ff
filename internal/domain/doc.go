// Package domain contains the core entities and value objects for insitu.
//
// It has no dependencies on infrastructure (database, file system, HTTP,
// logging) and holds only the coordinate bookkeeping rules.
//
// # Entities
//
//   - [Frame]: a single 2D image plane as recorded by the imaging database
//   - [ManifestRow]: one tile of a manifest (logical coordinate + physical extent)
//   - [ZSelection]: which z-slices to take from each round
//   - [MetadataKeys]: field names used to read pixel size and stage position
package domain
