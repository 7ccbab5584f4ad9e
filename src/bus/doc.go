/*
Package bus implements the transmission and reception pipeline that sits
between virtual nodes and the shared byte transport.

Outbound traffic flows through two staged workers. The priority stage is an
ordered commit queue: actions leave it in the exact order they were
committed, but only once their owner has cleared them for release, so a
caller may keep adjusting an action's outbound values after committing it.
The access stage is a single-slot arbiter that hands an exclusive token to
one action at a time; transmissions onto the transport are therefore
serialized in commit order.

Inbound traffic is reassembled byte by byte by a receiver state machine and
handed to a consumer channel as decoded bus packets. The two pipelines run
concurrently with each other but are each internally serialized.
*/
package bus
