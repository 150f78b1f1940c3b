// Package server implements the Tempest multi-room chat server.
//
// Clients speak a newline-delimited text protocol over TCP, or over the
// WebSocket gateway with one line per frame. The implementation is split into
// files for configuration, the room registry (Hub), sessions and their write
// path, the per-connection handler and command dispatch, and the admin API.
package server
