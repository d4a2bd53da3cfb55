package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/massn/envordot"
	"github.com/oklog/run"

	"github.com/qfold-team/qfold-engine/backend"
	"github.com/qfold-team/qfold-engine/core"
	"github.com/qfold-team/qfold-engine/estimation"
	"github.com/qfold-team/qfold-engine/grad"
	"github.com/qfold-team/qfold-engine/log"
	multiprog "github.com/qfold-team/qfold-engine/multiprog/manual"
	"github.com/qfold-team/qfold-engine/poller"
	"github.com/qfold-team/qfold-engine/sampling"
	"github.com/qfold-team/qfold-engine/scheduler"
	"github.com/qfold-team/qfold-engine/transform"
	"github.com/qfold-team/qfold-engine/zne"

	"go.uber.org/dig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	rotate "github.com/lestrrat-go/file-rotatelogs"
)

var versionByBuildFlag string
var parser *flags.Parser
var engine *Engine

func init() {
	if err := envordot.Load(false, ".env"); err != nil {
		fmt.Printf("Not found \".env\" file. Use only environment variables. Reason:%s\n", err.Error())
	} else {
		fmt.Println("Found \".env\" file. Environment variables are preferred, " +
			"but non-conflicting variables are those in the \".env\" file.")
	}
	engine = &Engine{}
	setParser(engine)
}

type Engine struct {
	DIContainerParameters *DIContainerParameters
	Conf                  *core.Conf
}

type DIContainerParameters struct {
	DBManager      string `long:"db" description:"db" default:"memory" choice:"memory" env:"QFOLD_ENGINE_DB_MANAGER_TYPE"`
	Rewriter       string `long:"rewriter" description:"rewriter-type" default:"pipeline" choice:"pipeline" env:"QFOLD_ENGINE_REWRITER_TYPE"`
	Backend        string `long:"backend" description:"backend-type" default:"dummy" choice:"dummy" env:"QFOLD_ENGINE_BACKEND_TYPE"`
	Scheduler      string `long:"scheduler" description:"scheduler-type" default:"normal" env:"QFOLD_ENGINE_SCHEDULER_TYPE"`
	Differentiator string `long:"differentiator" description:"differentiator-type" default:"paramshift" choice:"paramshift" choice:"finitediff" env:"QFOLD_ENGINE_DIFFERENTIATOR_TYPE"`
}

func setParser(engine *Engine) {
	parser = flags.NewParser(engine, flags.Default)
	parser.ShortDescription = "qfold engine"
	parser.LongDescription = "the workload engine of the QFold quantum circuit processing system."
	parser.AddCommand("serve", "start the engine", "start polling workload files and processing jobs", newServeCmd())
	parser.AddCommand("run", "run one workload", "execute a single workload file and print the results", newRunCmd())
}

func parse() {
	if _, err := parser.Parse(); err != nil {
		code := 1
		if fe, ok := err.(*flags.Error); ok {
			if fe.Type == flags.ErrHelp {
				code = 0
			}
		}
		if code == 1 {
			fmt.Printf("failed to pasre flags, because %s\n", err)
		}
		os.Exit(code)
	}
}

func (e *Engine) provideDIContainer() (c *dig.Container, err error) {
	c = dig.New()
	err = nil
	err = c.Provide(func() (core.Backend, error) {
		switch e.DIContainerParameters.Backend {
		case "dummy":
			return &backend.Dummy{}, nil
		default:
			return &backend.Dummy{}, fmt.Errorf("%s is an unknown backend", e.DIContainerParameters.Backend)
		}
	})
	if err != nil {
		return &dig.Container{}, err
	}
	err = c.Provide(func() (core.Rewriter, error) {
		switch e.DIContainerParameters.Rewriter {
		case "pipeline":
			return &transform.PipelineRewriter{}, nil
		default:
			return &transform.PipelineRewriter{}, fmt.Errorf("%s is an unknown rewriter", e.DIContainerParameters.Rewriter)
		}
	})
	if err != nil {
		return &dig.Container{}, err
	}
	err = c.Provide(func() core.Scheduler { return &scheduler.NormalScheduler{} })
	if err != nil {
		return &dig.Container{}, err
	}
	err = c.Provide(func() (core.DBManager, error) {
		switch e.DIContainerParameters.DBManager {
		case "memory":
			return &core.MemoryDB{}, nil
		default:
			return &core.MemoryDB{}, fmt.Errorf("%s is an unknown DB", e.DIContainerParameters.DBManager)
		}
	})
	if err != nil {
		return &dig.Container{}, err
	}
	err = c.Provide(func() (core.Differentiator, error) {
		switch e.DIContainerParameters.Differentiator {
		case "paramshift":
			return &grad.ParamShift{}, nil
		case "finitediff":
			return grad.NewFiniteDiff(0), nil
		default:
			return &grad.ParamShift{}, fmt.Errorf("%s is an unknown differentiator", e.DIContainerParameters.Differentiator)
		}
	})
	if err != nil {
		return &dig.Container{}, err
	}
	return
}

func (e *Engine) startCore(conf *core.Conf) error {
	_, err := core.NewJobManager(
		&core.NormalJob{},
		&sampling.SamplingJob{},
		&estimation.EstimationJob{},
		&multiprog.ManualJob{},
		&zne.ZNEJob{},
		&grad.GradientJob{},
	)
	if err != nil {
		return err
	}
	if err := core.GetSystemComponents().StartContainer(); err != nil {
		return err
	}
	core.SetInfo(conf)
	return nil
}

func zapLogger(conf *core.Conf) (*zap.Logger, error) {
	var encoder zapcore.Encoder
	if conf.DevMode {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		c := zap.NewProductionEncoderConfig()
		c.EncodeTime = zapcore.ISO8601TimeEncoder //Not use UnixTime
		c.TimeKey = "timestamp"
		encoder = zapcore.NewJSONEncoder(c)
	}
	var level zap.AtomicLevel
	switch conf.LogLevel {
	case "debug":
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cores := []zapcore.Core{}
	if conf.EnableFileLog {
		rotater, err := makeRotator(conf.LogDir, conf.LogRotationMaxDays)
		if err != nil {
			return &zap.Logger{}, err
		}
		syncer := zapcore.AddSync(rotater)
		rotateCore := zapcore.NewCore(
			encoder,
			syncer,
			level)
		cores = append(cores, rotateCore)
	}
	if !conf.DisableStdoutLog {
		debugCore := zapcore.NewCore(
			encoder,
			zapcore.Lock(os.Stdout),
			level)
		cores = append(cores, debugCore)
	}
	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller()), nil
}

func makeRotator(dirPath string, rotationMaxDays int) (*rotate.RotateLogs, error) {
	info, err := os.Stat(dirPath)
	if err != nil {
		return &rotate.RotateLogs{}, fmt.Errorf("directory:%s is not found", dirPath)
	}
	if info.Mode().Perm()&(1<<uint(7)) == 0 {
		return &rotate.RotateLogs{}, fmt.Errorf("%s is not a writable directory", dirPath)
	}
	rotator, err := rotate.New(
		filepath.Join(dirPath, "qfold-engine-%Y-%m-%d.log"),
		rotate.WithMaxAge(time.Duration(rotationMaxDays)*24*time.Hour),
		rotate.WithRotationTime(time.Hour))
	if err != nil {
		return &rotate.RotateLogs{}, err
	}
	return rotator, nil
}

func main() {
	parse()
}

type serveCmd struct{}

func newServeCmd() *serveCmd {
	return &serveCmd{}
}

func (c *serveCmd) Execute(args []string) error {
	logger := setZap(engine.Conf)
	defer logger.Sync()

	// settings without RunGroups
	// TODO : unify run-group settings
	core.ResetSetting()
	registerSetting()
	zap.L().Debug("Registered setting")
	if err := core.ParseSettingFromPath(engine.Conf.SettingPath); err != nil {
		zap.L().Error(fmt.Sprintf("failed to parse settings/reason:%s", err))
		return err
	}

	s := setupSystemComponents(engine.Conf)
	defer s.TearDown()

	im := &core.ImplMaps{
		PeriodicTaskImplMap: core.PeriodicTaskImplMap{
			poller.PollerTaskName:  &poller.WorkloadPoller{},
			log.VersionLogTaskName: &log.VersionLogTaskImpl{},
			log.MetricsLogTaskName: &log.MetricsLogTaskImpl{},
		},
	}
	rc, err := core.NewRunContextWithSettingPath(engine.Conf.SettingPath, im)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to setup run context/reason:%s", err.Error()))
		return err
	}

	if err := engine.startCore(engine.Conf); err != nil {
		zap.L().Error(fmt.Sprintf("failed to start the core. Reason:%s", err))
		return err
	}

	zap.L().Debug("Setting up run-group")
	if err := c.setupRunGroup(rc); err != nil {
		zap.L().Error(fmt.Sprintf("Failed to setup run group. Reason:%s", err))
		return err
	}

	if err := rc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "execution error:%v\n", err)
		os.Exit(1)
	}

	return nil
}

func (c *serveCmd) setupRunGroup(rc *core.RunContext) error {
	rc.Add(
		run.SignalHandler(
			rc.Context,
			os.Interrupt))
	core.SetRunContext(rc)
	return nil
}

type runCmd struct {
	Repeat int `long:"repeat" description:"number of times to execute the workload" default:"1"`
	Warmup int `long:"warmup" description:"unprinted executions before the measured ones" default:"0"`
	Args   struct {
		Workload string `positional-arg-name:"workload" description:"workload file to execute"`
	} `positional-args:"true" required:"true"`
}

func newRunCmd() *runCmd {
	return &runCmd{}
}

// Execute runs every job of one workload file in-process and prints the
// results. Jobs go through the same phases the scheduler drives, just
// synchronously.
func (c *runCmd) Execute(args []string) error {
	logger := setZap(engine.Conf)
	defer logger.Sync()

	core.ResetSetting()
	registerSetting()
	if err := core.ParseSettingFromPath(engine.Conf.SettingPath); err != nil {
		zap.L().Info(fmt.Sprintf("no settings loaded from %s/reason:%s", engine.Conf.SettingPath, err))
	}

	s := setupSystemComponents(engine.Conf)
	defer s.TearDown()

	if err := engine.startCore(engine.Conf); err != nil {
		zap.L().Error(fmt.Sprintf("failed to start the core. Reason:%s", err))
		return err
	}

	w, err := poller.LoadWorkload(c.Args.Workload)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to load the workload. Reason:%s", err))
		return err
	}
	// first invocations can pay one-time costs, so --warmup lets callers
	// measure only steady-state executions
	for i := 0; i < c.Warmup; i++ {
		if err := c.runOnce(w, false); err != nil {
			return err
		}
	}
	for i := 0; i < c.Repeat; i++ {
		if err := c.runOnce(w, true); err != nil {
			return err
		}
	}
	return nil
}

func (c *runCmd) runOnce(w *poller.Workload, print bool) error {
	jobs, err := w.BuildJobs()
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to build jobs. Reason:%s", err))
		return err
	}
	for _, job := range jobs {
		runJob(job)
		if print {
			jd := job.JobData()
			fmt.Printf("job:%s type:%s status:%s\n%s\n", jd.ID, job.JobType(), jd.Status, jd.Result.ToString())
		}
	}
	return nil
}

func runJob(j core.Job) {
	j.PreProcess()
	if j.IsFinished() {
		retireJobID(j)
		return
	}
	j.Process()
	if !j.IsFinished() {
		j.PostProcess()
	}
	retireJobID(j)
}

// retireJobID frees the job's ID so the next --repeat execution of the
// same workload document is not rejected as a duplicate.
func retireJobID(j core.Job) {
	_ = core.GetSystemComponents().Invoke(
		func(d core.DBManager) error {
			d.RemoveFromInnerJobIDSet(j.JobData().ID)
			return nil
		})
}

// TODO : move to log package
func setZap(conf *core.Conf) *zap.Logger {
	logger, err := zapLogger(conf)
	if err != nil {
		fmt.Printf("Failed to setup logger. Reason:%s\n", err)
		panic(err)
	}
	zap.ReplaceGlobals(logger)
	zap.L().Info("Starting logger")
	zap.L().Info(fmt.Sprintf("DevMode is %t", conf.DevMode))
	zap.L().Info(fmt.Sprintf("Log rotation max days is %d", conf.LogRotationMaxDays))
	return logger
}

func setupSystemComponents(conf *core.Conf) *core.SystemComponents {
	core.SetVersion(conf, versionByBuildFlag)
	zap.L().Debug(fmt.Sprintf("Providing DI Container with parameters %+v", engine.DIContainerParameters))

	container, err := engine.provideDIContainer()
	if err != nil {
		zap.L().Error(fmt.Sprintf("Failed to setting up DI-Container. Reason:%s", err.Error()))
		panic(err)
	}
	zap.L().Debug("Setting up System Components")
	s := core.NewSystemComponents(container)
	if err := s.Setup(conf); err != nil {
		zap.L().Error(fmt.Sprintf("Failed to setting up Container. Reason:%s", err.Error()))
		panic(err)
	}
	return s
}

func registerSetting() {
	core.RegisterSetting("rewriter", transform.NewRewriterSetting())
	core.RegisterSetting(estimation.ESTIMATION_SETTING_KEY, estimation.NewEstimationSetting())
}
