/*
Package wire implements the binary packet template codec.

A Template is an ordered sequence of typed tokens describing the layout of a
packet. Encoding runs in three passes: regular fields first, then length
tokens, then checksum tokens, because length and checksum are functions of
the rest of the packet rather than of caller-supplied values. Decoding walks
the token list from the front until it hits the single unbounded token, then
walks the remaining tokens from the back of the buffer inward, letting the
unbounded token absorb whatever is left between the two cursors.
*/
package wire
