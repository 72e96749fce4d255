// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the session lifecycle for both roles:
// an authority that loads persisted data, serves the sync endpoint and
// checkpoints to disk, and a replica that mirrors its entity's data from
// the authority. It is decoupled from any specific entrypoint like a CLI.
package app
