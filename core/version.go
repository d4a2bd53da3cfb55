package core

import (
	"go.uber.org/zap"
)

// Version is the engine version string reported in logs and job metadata.
// Resolution order: -ldflags build flag, then config, then NoVersion.
var Version string

const NoVersion = "no_version_info"

func SetVersion(c *Conf, versionByBuildFlag string) {
	Version = resolveVersion(c, versionByBuildFlag)
	zap.L().Info("engine version resolved", zap.String("version", Version))
}

func resolveVersion(c *Conf, versionByBuildFlag string) string {
	if versionByBuildFlag != "" {
		return versionByBuildFlag
	}
	if c.Version != "" {
		return c.Version
	}
	return NoVersion
}
