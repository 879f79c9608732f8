package config

import (
	sharedconfig "github.com/txsubstrate/platform/shared/config"
)

// Config is the consistencysvc process configuration: the shared
// platform config plus whatever this service later needs of its own.
type Config = sharedconfig.Config
