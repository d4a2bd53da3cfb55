package core

type Conf struct {
	Version                         string `long:"version" description:"version of the engine" env:"QFOLD_ENGINE_VERSION"`
	DevMode                         bool   `long:"dev-mode" description:"run in dev mode" env:"QFOLD_ENGINE_DEV_MODE"`
	DisableStdoutLog                bool   `long:"disable-stdout-log" description:"do not log in standard output" env:"QFOLD_ENGINE_DISABLE_STDOUT_LOG"`
	EnableFileLog                   bool   `long:"enable-file-log" description:"enable log in file" env:"QFOLD_ENGINE_ENABLE_FILE_LOG"`
	LogDir                          string `long:"log-dir" description:"rotating log file dir" default:"./shares/logs" env:"QFOLD_ENGINE_LOG_DIR"`
	LogLevel                        string `long:"log-level" description:"log level" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" env:"QFOLD_ENGINE_LOG_LEVEL"`
	LogRotationMaxDays              int    `long:"log-rotation-max-days" description:"max days of log rotation" default:"7" env:"QFOLD_ENGINE_LOG_ROTATION_MAX_DAYS"`
	UseDummyBackend                 bool   `long:"enable-dummy-backend" description:"use the dummy backend and disable device settings" env:"QFOLD_ENGINE_USE_DUMMY_BACKEND"`
	DeviceSettingPath               string `long:"device-setting-path" description:"device setting file path" default:"./device_setting.toml" env:"QFOLD_ENGINE_DEVICE_SETTING_PATH"`
	QueueMaxSize                    int    `long:"queue-max-size" description:"queue max size" default:"100" env:"QFOLD_ENGINE_QUEUE_MAX_SIZE"`
	QueueRefillThreshold            int    `long:"queue-refill-threshold" description:"queue refill threshold" default:"10" env:"QFOLD_ENGINE_QUEUE_REFILL_THRESHOLD"`
	EnableDummyBackendTimeInsertion bool   `long:"enable-dummy-backend-time-insertion" description:"make the dummy backend wait per job" env:"QFOLD_ENGINE_ENABLE_DUMMY_BACKEND_TIME_INSERTION"`
	DummyBackendTime                int    `long:"dummy-backend-time" description:"dummy backend wait in seconds" default:"10" env:"QFOLD_ENGINE_DUMMY_BACKEND_TIME"`
	WorkloadDir                     string `long:"workload-dir" description:"directory polled for workload files" default:"./workloads" env:"QFOLD_ENGINE_WORKLOAD_DIR"`
	DisableStartWorkloadPolling     bool   `long:"disable-start-workload-polling" description:"disable start workload polling" env:"QFOLD_ENGINE_DISABLE_START_WORKLOAD_POLLING"`
	SettingPath                     string `long:"setting-path" description:"setting file path" default:"./setting/setting.toml" env:"QFOLD_ENGINE_SETTING_PATH"`
}
