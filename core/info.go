package core

type NonSecretConf struct {
	DevMode                     bool
	DisableStdoutLog            bool
	EnableFileLog               bool
	LogDir                      string
	LogLevel                    string
	LogRotationMaxDays          int
	UseDummyBackend             bool
	DeviceSettingsPath          string
	QueueMaxSize                int
	QueueRefillThreshold        int
	WorkloadDir                 string
	DisableStartWorkloadPolling bool
}

type Info struct {
	Conf *NonSecretConf
}

var CurrentInfo *Info

func SetInfo(c *Conf) {
	conf := &NonSecretConf{
		DevMode:                     c.DevMode,
		DisableStdoutLog:            c.DisableStdoutLog,
		EnableFileLog:               c.EnableFileLog,
		LogDir:                      c.LogDir,
		LogLevel:                    c.LogLevel,
		LogRotationMaxDays:          c.LogRotationMaxDays,
		UseDummyBackend:             c.UseDummyBackend,
		DeviceSettingsPath:          c.DeviceSettingPath,
		QueueMaxSize:                c.QueueMaxSize,
		QueueRefillThreshold:        c.QueueRefillThreshold,
		WorkloadDir:                 c.WorkloadDir,
		DisableStartWorkloadPolling: c.DisableStartWorkloadPolling,
	}

	CurrentInfo = &Info{
		Conf: conf,
	}
}
