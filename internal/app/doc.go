// Package app wires configuration, the platform adapter, the state store and
// the notifier into the operations the CLI exposes: register, status,
// unregister, schedule preview, and the job-side run and arm-wake.
//
// Every operation is synchronous and runs to completion. The configuration
// is loaded and validated in New, so a ConfigError is always returned before
// any OS scheduler interaction.
package app
