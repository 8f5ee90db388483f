package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"github.com/galeed/Conversor/internal/config"
	"github.com/galeed/Conversor/internal/convert"
	"github.com/galeed/Conversor/internal/diagnostics"
	"github.com/galeed/Conversor/internal/domain"
	"github.com/galeed/Conversor/internal/engine"
	"github.com/galeed/Conversor/internal/jobs"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Audio and video files",
		Pattern:     "*.mp3;*.wav;*.flac;*.m4a;*.aac;*.ogg;*.opus;*.wma;*.mp4;*.mov;*.mkv;*.avi;*.webm",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App wires configuration, jobs, engine lifecycle, conversion
// pipeline, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Jobs        *jobs.Manager
	Pipeline    pipelineRunner
	Engine      engineLifecycle
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker

	mu          sync.Mutex
	activeJobID string
	events      *jobs.EventBus
	runtimeCtx  context.Context
}

// pipelineRunner isolates the conversion pipeline behind an interface.
type pipelineRunner interface {
	Run(ctx context.Context, req convert.Request) (convert.Result, error)
}

// engineLifecycle isolates the engine bootstrap behind an interface.
type engineLifecycle interface {
	Bootstrap(ctx context.Context) error
	Status() domain.EngineStatus
	Ready() bool
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}

	appDir := filepath.Join(homeDir, ".conversor")
	store := config.NewJSONStore(filepath.Join(appDir, "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	workspace, err := engine.NewWorkspace(filepath.Join(appDir, "workspace"))
	if err != nil {
		return nil, fmt.Errorf("prepare engine workspace: %w", err)
	}

	app := &App{
		Settings: settings,
		Store:    store,
		Jobs:     jobs.NewManager(),
		assets:   assets,
		events:   jobs.NewEventBus(1000),
	}

	lifecycle := engine.NewLifecycle(filepath.Join(appDir, "bin"), app.publishEngineLog)
	runner := engine.NewRunner(lifecycle.FFmpegPath(), lifecycle.FFprobePath(), workspace.Dir())

	app.Engine = lifecycle
	app.Pipeline = convert.NewPipeline(runner, workspace)
	app.checker = diagnostics.NewChecker(diagnostics.Paths{
		FFmpegPath:   lifecycle.FFmpegPath(),
		FFprobePath:  lifecycle.FFprobePath(),
		WorkspaceDir: workspace.Dir(),
	})
	app.Diagnostics = app.checker.Run(settings)

	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Conversor",
		Width:       920,
		Height:      660,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores the Wails runtime context and kicks off the one-time
// engine bootstrap in the background.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()

	go a.bootstrapEngine()
}

// bootstrapEngine runs the engine download and publishes the final
// readiness transition. Bootstrap failure is terminal; conversions
// stay blocked for the rest of the session.
func (a *App) bootstrapEngine() {
	// No deadline here: the lifecycle applies per-download timeouts.
	_ = a.Engine.Bootstrap(context.Background())

	status := a.Engine.Status()
	a.publishEvent(jobs.Event{
		Type:        jobs.EventTypeEngine,
		EngineState: status.State,
		Message:     status.Message,
	})

	if status.State == domain.EngineStateReady {
		a.refreshDiagnosticsFromSettings(a.currentSettings())
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// GetEngineStatus returns the current engine readiness and message.
func (a *App) GetEngineStatus() domain.EngineStatus {
	return a.Engine.Status()
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// PickInputFile opens a native file dialog for media selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select media file",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickOutputDirectory opens a native directory picker for converted files.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in the file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	return a.refreshDiagnosticsFromSettings(normalizeSettings(settings)), nil
}

// StartConversion validates the request, creates a job, and runs it
// asynchronously. A missing input file never reaches the engine.
func (a *App) StartConversion(inputPath string, opts domain.ConversionOptions) (domain.Job, error) {
	if strings.TrimSpace(inputPath) == "" {
		return domain.Job{}, fmt.Errorf("no input file selected")
	}
	if !a.Engine.Ready() {
		return domain.Job{}, fmt.Errorf("the transcoding engine is not ready")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	// An empty selection falls back to the last persisted options.
	if strings.TrimSpace(opts.TargetFormat) == "" {
		opts = settings.Options()
	}

	jobID := "job-" + uuid.NewString()
	if err := a.Jobs.Start(jobID); err != nil {
		return domain.Job{}, err
	}

	a.mu.Lock()
	a.activeJobID = jobID
	a.Settings = settings
	a.mu.Unlock()

	a.publishStatus(jobID, domain.JobStatusStaging, "Conversion started")

	go a.runConversionJob(context.Background(), jobID, inputPath, opts, settings)
	return a.Jobs.Current(), nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// runConversionJob executes the pipeline and maps outcomes to job events.
func (a *App) runConversionJob(ctx context.Context, jobID, inputPath string, opts domain.ConversionOptions, settings domain.Settings) {
	req := convert.Request{
		InputPath: inputPath,
		Options:   opts,
		OutputDir: settings.OutputDir,
		OnStage: func(stage string) {
			status, ok := mapStageToStatus(stage)
			if !ok {
				return
			}
			if err := a.Jobs.Transition(status); err == nil {
				a.publishStatus(jobID, status, "Running "+stage+" stage")
			}
		},
		OnMessage: func(line string) {
			a.publishEvent(jobs.Event{
				JobID:   jobID,
				Type:    jobs.EventTypeLog,
				Message: line,
			})
		},
		OnLog: func(log convert.CommandLog) {
			a.publishEvent(jobs.Event{
				JobID:    jobID,
				Type:     jobs.EventTypeLog,
				Message:  "Command completed",
				Command:  log.Command,
				Args:     log.Args,
				ExitCode: log.ExitCode,
				Stdout:   log.Stdout,
				Stderr:   log.Stderr,
			})
		},
	}

	result, err := a.Pipeline.Run(ctx, req)
	if err != nil {
		_ = a.Jobs.Transition(domain.JobStatusFailed)
		a.publishStatus(jobID, domain.JobStatusFailed, convert.FailureMessage)
		a.publishEvent(jobs.Event{
			JobID:   jobID,
			Type:    jobs.EventTypeError,
			Status:  domain.JobStatusFailed,
			Message: err.Error(),
		})

		var convErr *convert.ConvertError
		if errors.As(err, &convErr) && convErr.CommandLog.Command != "" {
			a.publishEvent(jobs.Event{
				JobID:    jobID,
				Type:     jobs.EventTypeLog,
				Message:  "Failed command",
				Command:  convErr.CommandLog.Command,
				Args:     convErr.CommandLog.Args,
				ExitCode: convErr.CommandLog.ExitCode,
				Stdout:   convErr.CommandLog.Stdout,
				Stderr:   convErr.CommandLog.Stderr,
			})
		}

		a.clearActiveJob(jobID)
		return
	}

	if err := a.Jobs.Transition(domain.JobStatusDone); err == nil {
		a.publishStatus(jobID, domain.JobStatusDone, "Conversion completed")
	}
	a.publishEvent(jobs.Event{
		JobID:      jobID,
		Type:       jobs.EventTypeResult,
		Status:     domain.JobStatusDone,
		Message:    "Saved " + result.FileName,
		OutputPath: result.OutputPath,
		FileName:   result.FileName,
	})
	a.clearActiveJob(jobID)
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, message string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEngineLog mirrors one engine diagnostic line to the UI.
func (a *App) publishEngineLog(line string) {
	a.publishEvent(jobs.Event{
		Type:    jobs.EventTypeLog,
		Message: line,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", published)
	}
}

// clearActiveJob clears bookkeeping for completed job IDs.
func (a *App) clearActiveJob(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJobID == jobID {
		a.activeJobID = ""
	}
}

// refreshDiagnosticsFromSettings reruns checks against new settings.
func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

// currentSettings returns a snapshot of the in-memory settings.
func (a *App) currentSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Settings
}

// mapStageToStatus maps pipeline stage names to job statuses.
func mapStageToStatus(stage string) (domain.JobStatus, bool) {
	switch stage {
	case "staging":
		return domain.JobStatusStaging, true
	case "converting":
		return domain.JobStatusConverting, true
	case "exporting":
		return domain.JobStatusExporting, true
	default:
		return "", false
	}
}

// runtimeContext returns the current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and applies defaults for empty
// values.
func normalizeSettings(settings domain.Settings) domain.Settings {
	defaults := config.DefaultSettings()

	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	if settings.OutputDir == "" {
		settings.OutputDir = defaults.OutputDir
	}

	settings.TargetFormat = strings.ToLower(strings.TrimSpace(settings.TargetFormat))
	if settings.TargetFormat == "" {
		settings.TargetFormat = defaults.TargetFormat
	}
	if settings.SampleRate == 0 {
		settings.SampleRate = defaults.SampleRate
	}
	if settings.BitDepth == 0 {
		settings.BitDepth = defaults.BitDepth
	}
	return settings
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
