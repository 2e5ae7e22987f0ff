package ports

import "context"

// NamedManifest is one manifest handed to the bundle writer, e.g. "primary".
type NamedManifest struct {
	Name string
	Path string
}

// BundleArgs are the inputs of one bundle writer invocation.
type BundleArgs struct {
	TileWidth     int
	TileHeight    int
	StoragePrefix string
	OutputDir     string
	Manifests     []NamedManifest
}

// Bundler runs the external tool that turns manifests into an experiment bundle.
type Bundler interface {
	Bundle(ctx context.Context, args BundleArgs) error
}
