package config

// Version is injected at build time via ldflags:
//
//	go build -ldflags "-X 'github.com/bindery/bindery/internal/config.Version=1.2.0'"
var Version = "dev"
