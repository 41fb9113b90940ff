// Package plugin hosts in-process server extensions.
//
// A plugin is a Go type implementing the Plugin interface, registered
// under a factory name and activated by a YAML manifest. The Host owns
// the plugin lifecycle: manifests are validated against an embedded
// JSON schema, the named factory builds an instance, Initialize runs
// with a Context carrying the plugin's logger and configuration store,
// and the instance joins the message dispatch chain in load order.
//
// Plugins that implement MessageHandler are consulted for every inbound
// message before registered handlers; a manifest may narrow that with a
// filter expression evaluated against the message type, namespace and
// data. Unloading a plugin drops its instance, so a subsequent load
// re-runs the factory and Initialize.
package plugin
