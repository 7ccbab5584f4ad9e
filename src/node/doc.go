/*
Package node implements the host-side model of physical peripherals.

A Node is the software proxy for one peripheral. Its behaviour is supplied
by a Profile, which is invoked in four explicit ordered phases at
construction: parameters, packet templates, port bindings, and a final
hook. Bindings tie a port number to a request template, a response
template, and an optional passive handler factory.

The Registry owns the address-to-node mapping: attaching a node either
recalls its persisted address by name or generates a fresh collision-checked
one from the configured range. The Router drains the pipeline's inbound
channel, decodes each payload against the owning node's binding, invokes the
passive handler, and wakes whatever action is awaiting a reply on that
(address, port).

A Group is a proxy over several nodes for operations they must execute in
lock-step: arguments are distributed across members, a shared sync token
lets all members agree on common parameters before any of them commits, and
a multicast trigger packet fires the buffered operations simultaneously.
*/
package node
