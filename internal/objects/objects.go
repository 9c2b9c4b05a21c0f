// Package objects contains value objects shared by the admission pipeline and
// its collaborators. To avoid circular dependencies, we put them here.
// JSON tags use camel case.
package objects
