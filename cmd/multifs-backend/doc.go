// Package main (cmd/multifs-backend) implements the multi-drive contents
// server.
//
// The server exposes a single filesystem-style API over any number of
// storage backends. Each backend is described by a connection URI (local
// filesystem, in-memory, S3-compatible object storage, or IPFS mutable
// files) and is assigned a short deterministic drive identifier derived
// from that URI. Paths of the form "drive:subpath" address the backend
// owning the drive; unprefixed paths address the default local drive.
//
// The registered backend set can be changed at runtime through the
// /api/resources endpoint. Reconfiguration is atomic: it either applies
// fully or leaves the previous set in effect, and backends that remain
// registered keep their open connections and state.
//
// Configuration is handled through command-line flags. Backends to register
// at startup are read from a JSON descriptor file:
//
//	multifs-backend --listen-addr=0.0.0.0:8888 \
//	    --root-dir=/srv/files \
//	    --resources-file=./resources.json
//
// where resources.json holds an array of descriptors such as:
//
//	[
//	  {"url": "s3://bucket/team?region=eu-west-1", "name": "shared"},
//	  {"url": "ipfs://127.0.0.1:5001/notebooks", "name": "ipfs"}
//	]
//
// The server implements graceful shutdown on SIGINT/SIGTERM and serves
// health check, drain, and optional profiling endpoints.
package main
