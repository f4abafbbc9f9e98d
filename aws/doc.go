// Package aws wires the inventory engine to AWS: SDK config loading,
// cross-account role assumption with a credential cache, per-service
// resource sources, Organizations account discovery, and an SNS
// publisher for result notifications.
//
// Each component takes a narrow client interface covering only the SDK
// calls it makes, so tests can substitute fakes without touching the
// network.
package aws
