package internal

// Version is the build version, overridden at build time with
// -ldflags "-X github.com/Coded483-max/smartvote-node/internal.Version=v1.2.3"
var Version = "dev"
