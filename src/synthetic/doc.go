/*
Package synthetic emulates peripheral firmware in-process.

The Responder stands in for the transport: outbound packets are queued,
decoded, and answered by user-registered handlers, and the fabricated
replies are injected directly into the pipeline's inbound channel. Hosts
run against it without any hardware attached, with unchanged routing,
correlation, and retry behaviour.
*/
package synthetic
