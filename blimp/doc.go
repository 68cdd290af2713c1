// Package blimp implements BLIMP, the Discord management bot.
//
// The bot's features (repost boards, role kiosks, welcome messages,
// guild audit logging) all hang off two core pieces: an object store
// that gives deduplicated, stable integer identifiers to references to
// Discord entities (plus per-guild alias names for them), and a wizard
// engine that walks users through multi-step configuration in a single
// self-updating embed.
//
// Configuration of the bot itself comes from environment variables or
// an env file (see the cmd package); configuration of features lives in
// the database and is managed entirely through Discord commands.
package blimp
