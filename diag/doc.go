// Package diag holds the failure taxonomy shared by the resolver, the hook engine and the module registry, and the
// structured records handed to a logging collaborator.
//
// Errors carry a Kind and, once they reach the registry boundary, the Module and Phase they happened in:
//
//	err := diag.New(diag.KindPatternNotFound).Target("CM_Vis").Detail("no match in %s", lib).Build()
//	errors.Is(err, diag.ErrPatternNotFound) // true
//
// The framework never prints. Every failure becomes a [Record] delivered to a [Sink].
package diag
