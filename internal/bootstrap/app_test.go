package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/galeed/Conversor/internal/convert"
	"github.com/galeed/Conversor/internal/domain"
	"github.com/galeed/Conversor/internal/jobs"
)

// fakeStore returns deterministic settings for App tests.
type fakeStore struct {
	settings domain.Settings
}

// Load returns preconfigured settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	return s.settings, nil
}

// Save is a no-op for tests.
func (s *fakeStore) Save(domain.Settings) error {
	return nil
}

// fakePipeline allows injecting custom run behavior per test.
type fakePipeline struct {
	calls int
	run   func(ctx context.Context, req convert.Request) (convert.Result, error)
}

// Run delegates to injected function.
func (p *fakePipeline) Run(ctx context.Context, req convert.Request) (convert.Result, error) {
	p.calls++
	if p.run == nil {
		return convert.Result{}, nil
	}
	return p.run(ctx, req)
}

// fakeEngine is a controllable engine lifecycle.
type fakeEngine struct {
	status       domain.EngineStatus
	bootstrapErr error
}

// Bootstrap moves the fake to ready or failed.
func (e *fakeEngine) Bootstrap(context.Context) error {
	if e.bootstrapErr != nil {
		e.status = domain.EngineStatus{State: domain.EngineStateFailed, Message: "Failed to load the transcoding engine."}
		return e.bootstrapErr
	}
	e.status = domain.EngineStatus{State: domain.EngineStateReady, Message: "Transcoding engine ready"}
	return nil
}

// Status returns the current fake status.
func (e *fakeEngine) Status() domain.EngineStatus {
	return e.status
}

// Ready reports whether the fake finished bootstrap.
func (e *fakeEngine) Ready() bool {
	return e.status.State == domain.EngineStateReady
}

// readyEngine returns a fake engine already in ready state.
func readyEngine() *fakeEngine {
	return &fakeEngine{status: domain.EngineStatus{State: domain.EngineStateReady}}
}

// emitAllStages walks a request through the pipeline stage callbacks.
func emitAllStages(req convert.Request) {
	if req.OnStage != nil {
		req.OnStage("staging")
		req.OnStage("converting")
		req.OnStage("exporting")
	}
}

// TestStartConversionRequiresInputFile checks the validation failure
// path: no job, no pipeline call.
func TestStartConversionRequiresInputFile(t *testing.T) {
	pipeline := &fakePipeline{}
	app := &App{
		Store:    &fakeStore{settings: domain.Settings{OutputDir: t.TempDir()}},
		Jobs:     jobs.NewManager(),
		Pipeline: pipeline,
		Engine:   readyEngine(),
		events:   jobs.NewEventBus(100),
	}

	if _, err := app.StartConversion("   ", domain.ConversionOptions{TargetFormat: "wav"}); err == nil {
		t.Fatal("expected validation error")
	}
	if pipeline.calls != 0 {
		t.Fatalf("pipeline calls = %d, want 0", pipeline.calls)
	}
	if app.CurrentJob().Status != domain.JobStatusIdle {
		t.Fatalf("status = %s, want idle", app.CurrentJob().Status)
	}
}

// TestStartConversionRequiresReadyEngine checks that not-ready and
// failed engines both block conversion.
func TestStartConversionRequiresReadyEngine(t *testing.T) {
	for _, state := range []domain.EngineState{domain.EngineStateNotReady, domain.EngineStateFailed} {
		pipeline := &fakePipeline{}
		app := &App{
			Store:    &fakeStore{settings: domain.Settings{OutputDir: t.TempDir()}},
			Jobs:     jobs.NewManager(),
			Pipeline: pipeline,
			Engine:   &fakeEngine{status: domain.EngineStatus{State: state}},
			events:   jobs.NewEventBus(100),
		}

		if _, err := app.StartConversion("/tmp/input.mp4", domain.ConversionOptions{TargetFormat: "wav"}); err == nil {
			t.Fatalf("state %s: expected engine-not-ready error", state)
		}
		if pipeline.calls != 0 {
			t.Fatalf("state %s: pipeline calls = %d, want 0", state, pipeline.calls)
		}
	}
}

// TestStartConversionEnforcesSingleRunningJob checks the single-flight guard.
func TestStartConversionEnforcesSingleRunningJob(t *testing.T) {
	release := make(chan struct{})
	app := &App{
		Store: &fakeStore{settings: domain.Settings{OutputDir: t.TempDir()}},
		Jobs:  jobs.NewManager(),
		Pipeline: &fakePipeline{run: func(ctx context.Context, req convert.Request) (convert.Result, error) {
			<-release
			emitAllStages(req)
			return convert.Result{FileName: "convertido_44100Hz_16bit.wav"}, nil
		}},
		Engine: readyEngine(),
		events: jobs.NewEventBus(100),
	}

	if _, err := app.StartConversion("/tmp/input.mp4", domain.ConversionOptions{TargetFormat: "wav", SampleRate: 44100, BitDepth: 16}); err != nil {
		t.Fatalf("start first job: %v", err)
	}
	if _, err := app.StartConversion("/tmp/other.mp4", domain.ConversionOptions{TargetFormat: "wav", SampleRate: 44100, BitDepth: 16}); !errors.Is(err, jobs.ErrJobAlreadyRunning) {
		t.Fatalf("second start error = %v, want %v", err, jobs.ErrJobAlreadyRunning)
	}

	close(release)
	waitForStatus(t, app, domain.JobStatusDone)
}

// TestStartConversionPublishesProgressAndResultEvents checks event flow.
func TestStartConversionPublishesProgressAndResultEvents(t *testing.T) {
	root := t.TempDir()
	outputDir := filepath.Join(root, "out")
	app := &App{
		Store: &fakeStore{settings: domain.Settings{OutputDir: outputDir}},
		Jobs:  jobs.NewManager(),
		Pipeline: &fakePipeline{run: func(ctx context.Context, req convert.Request) (convert.Result, error) {
			emitAllStages(req)
			if req.OnMessage != nil {
				req.OnMessage("Running: ffmpeg -i input -ar 44100 -c:a pcm_s16le output.wav")
			}
			if req.OnLog != nil {
				req.OnLog(convert.CommandLog{Command: "ffmpeg", ExitCode: 0})
			}
			return convert.Result{
				OutputPath: filepath.Join(outputDir, "convertido_44100Hz_16bit.wav"),
				FileName:   "convertido_44100Hz_16bit.wav",
			}, nil
		}},
		Engine: readyEngine(),
		events: jobs.NewEventBus(100),
	}

	if _, err := app.StartConversion(filepath.Join(root, "clip.mp4"), domain.ConversionOptions{TargetFormat: "wav", SampleRate: 44100, BitDepth: 16}); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusDone)
	events := app.JobEvents(0)
	if len(events) == 0 {
		t.Fatal("expected events")
	}

	assertEventTypeExists(t, events, jobs.EventTypeStatus)
	assertEventTypeExists(t, events, jobs.EventTypeLog)
	assertEventTypeExists(t, events, jobs.EventTypeResult)

	for _, event := range events {
		if event.Type == jobs.EventTypeResult && event.FileName != "convertido_44100Hz_16bit.wav" {
			t.Fatalf("result file name = %q", event.FileName)
		}
	}
}

// TestStartConversionPublishesFailureEvents checks error path emissions.
func TestStartConversionPublishesFailureEvents(t *testing.T) {
	root := t.TempDir()
	app := &App{
		Store: &fakeStore{settings: domain.Settings{OutputDir: filepath.Join(root, "out")}},
		Jobs:  jobs.NewManager(),
		Pipeline: &fakePipeline{run: func(ctx context.Context, req convert.Request) (convert.Result, error) {
			if req.OnStage != nil {
				req.OnStage("staging")
				req.OnStage("converting")
			}
			return convert.Result{}, &convert.ConvertError{
				Stage:   "converting",
				Message: convert.FailureMessage,
				CommandLog: convert.CommandLog{
					Command:  "ffmpeg",
					Args:     []string{"-i", "input"},
					ExitCode: 1,
					Stderr:   "corrupt input",
				},
				Err: errors.New("exit status 1"),
			}
		}},
		Engine: readyEngine(),
		events: jobs.NewEventBus(100),
	}

	if _, err := app.StartConversion(filepath.Join(root, "clip.mp4"), domain.ConversionOptions{TargetFormat: "mp3", SampleRate: 48000, BitDepth: 16}); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusFailed)
	events := app.JobEvents(0)

	assertEventTypeExists(t, events, jobs.EventTypeError)
	assertEventTypeExists(t, events, jobs.EventTypeLog)

	found := false
	for _, event := range events {
		if event.Type == jobs.EventTypeStatus && event.Status == domain.JobStatusFailed {
			found = true
			if event.Message != convert.FailureMessage {
				t.Fatalf("failed status message = %q, want %q", event.Message, convert.FailureMessage)
			}
		}
	}
	if !found {
		t.Fatal("expected failed status event")
	}
}

// TestBootstrapEnginePublishesReadiness checks the one-time readiness event.
func TestBootstrapEnginePublishesReadiness(t *testing.T) {
	app := &App{
		Store:  &fakeStore{settings: domain.Settings{OutputDir: t.TempDir()}},
		Jobs:   jobs.NewManager(),
		Engine: &fakeEngine{},
		events: jobs.NewEventBus(100),
	}

	app.bootstrapEngine()

	events := app.JobEvents(0)
	assertEventTypeExists(t, events, jobs.EventTypeEngine)
	for _, event := range events {
		if event.Type == jobs.EventTypeEngine && event.EngineState != domain.EngineStateReady {
			t.Fatalf("engine state = %s, want ready", event.EngineState)
		}
	}
}

// waitForStatus polls until the job reaches the desired status or times out.
func waitForStatus(t *testing.T, app *App, want domain.JobStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if app.CurrentJob().Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", app.CurrentJob().Status, want)
}

// assertEventTypeExists verifies at least one event of a given type exists.
func assertEventTypeExists(t *testing.T, events []jobs.Event, want jobs.EventType) {
	t.Helper()
	for _, event := range events {
		if event.Type == want {
			return
		}
	}
	t.Fatalf("event type %s not found", want)
}
