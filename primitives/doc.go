// Package primitives provides the host functions installed into every sandbox.
//
// Primitives are registered by name in a Registry and installed into the VM's
// global table, where an environment builder can decide which of them a
// script may use. The default registry carries print, log and sandbox_info.
package primitives
