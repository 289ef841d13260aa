// Package version implements PackageVersion: parsing, total ordering, and
// the Empty sentinel, layered on top of coreos/go-semver.
package version
