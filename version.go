package actionbridge

// Version is the release of the bridge, overridden at build time with
// -ldflags "-X github.com/neurosurgery/actionbridge.Version=<tag>".
var Version = "0.1.0-dev"
