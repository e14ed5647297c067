package types

// Version is the canonical project version.
// The CLI, the frame stream and the feed API all report this version.
const Version = "0.1.0"

// FeedVersion is the version of the outbound frame and feed contract.
// It moves in lockstep with Version.
const FeedVersion = Version
