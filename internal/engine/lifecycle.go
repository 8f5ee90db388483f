package engine

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/galeed/Conversor/internal/domain"
)

const (
	engineVersion = "6.1"
	distBaseURL   = "https://github.com/ffbinaries/ffbinaries-prebuilt/releases/download/v" + engineVersion

	downloadTimeout = 30 * time.Minute
)

// bootstrapFailedMessage is the single diagnostic line surfaced when
// engine bootstrap fails. The failure is terminal for the session.
const bootstrapFailedMessage = "Failed to load the transcoding engine."

// asset is one remote engine binary: the tool it provides and the
// pinned archive it is distributed in.
type asset struct {
	tool string
	url  string
}

// Lifecycle performs the one-time bootstrap of the transcoding engine
// from pinned remote assets and tracks readiness. The ready transition
// happens at most once per process; a failed bootstrap stays failed.
type Lifecycle struct {
	binDir string
	onLog  func(line string)

	fetch func(ctx context.Context, a asset, destPath string) error

	bootMu sync.Mutex

	mu      sync.RWMutex
	status  domain.EngineStatus
	bootErr error
}

// NewLifecycle builds a lifecycle that installs engine binaries into
// binDir. onLog receives free-text diagnostic lines and may be nil.
func NewLifecycle(binDir string, onLog func(line string)) *Lifecycle {
	l := &Lifecycle{
		binDir: binDir,
		onLog:  onLog,
		status: domain.EngineStatus{State: domain.EngineStateNotReady},
	}
	l.fetch = l.fetchAsset
	return l
}

// Status returns the current readiness state and latest message.
func (l *Lifecycle) Status() domain.EngineStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Ready reports whether the engine finished bootstrap successfully.
func (l *Lifecycle) Ready() bool {
	return l.Status().State == domain.EngineStateReady
}

// FFmpegPath returns the installed transcoder binary path.
func (l *Lifecycle) FFmpegPath() string {
	return filepath.Join(l.binDir, exeName("ffmpeg"))
}

// FFprobePath returns the installed prober binary path.
func (l *Lifecycle) FFprobePath() string {
	return filepath.Join(l.binDir, exeName("ffprobe"))
}

// Bootstrap fetches the two pinned engine assets and installs their
// binaries. It is a no-op after a successful run and returns the
// stored error after a failed one; there is no automatic retry.
func (l *Lifecycle) Bootstrap(ctx context.Context) error {
	l.bootMu.Lock()
	defer l.bootMu.Unlock()

	switch l.Status().State {
	case domain.EngineStateReady:
		return nil
	case domain.EngineStateFailed:
		l.mu.RLock()
		err := l.bootErr
		l.mu.RUnlock()
		return err
	}

	assets, err := engineAssets()
	if err != nil {
		return l.fail(err)
	}

	if l.binariesPresent(assets) {
		l.logf("Using previously downloaded engine binaries from %s", l.binDir)
		l.ready()
		return nil
	}

	if err := os.MkdirAll(l.binDir, 0o755); err != nil {
		return l.fail(fmt.Errorf("prepare engine directory: %w", err))
	}

	l.logf("Downloading transcoding engine v%s (%d assets)", engineVersion, len(assets))

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range assets {
		a := a
		g.Go(func() error {
			l.logf("Fetching %s", a.url)
			if err := l.fetch(gctx, a, filepath.Join(l.binDir, exeName(a.tool))); err != nil {
				return fmt.Errorf("fetch %s: %w", a.tool, err)
			}
			l.logf("Installed %s", a.tool)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return l.fail(err)
	}

	l.ready()
	return nil
}

// binariesPresent reports whether every asset's binary is already
// installed from an earlier session.
func (l *Lifecycle) binariesPresent(assets []asset) bool {
	for _, a := range assets {
		info, err := os.Stat(filepath.Join(l.binDir, exeName(a.tool)))
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

// ready marks the one-time not-ready to ready transition.
func (l *Lifecycle) ready() {
	l.mu.Lock()
	l.status = domain.EngineStatus{
		State:   domain.EngineStateReady,
		Message: "Transcoding engine ready",
	}
	l.mu.Unlock()
	l.logf("Transcoding engine ready")
}

// fail records the terminal failed state and returns the error.
func (l *Lifecycle) fail(err error) error {
	l.mu.Lock()
	l.status = domain.EngineStatus{
		State:   domain.EngineStateFailed,
		Message: bootstrapFailedMessage,
	}
	l.bootErr = err
	l.mu.Unlock()
	l.logf("%s %v", bootstrapFailedMessage, err)
	return err
}

// logf forwards a formatted diagnostic line to the log callback.
func (l *Lifecycle) logf(format string, args ...any) {
	if l.onLog != nil {
		l.onLog(fmt.Sprintf(format, args...))
	}
}

// fetchAsset downloads one pinned zip archive and extracts its tool
// binary into place.
func (l *Lifecycle) fetchAsset(ctx context.Context, a asset, destPath string) error {
	zipPath := destPath + ".zip"
	if err := downloadURLToFile(ctx, zipPath, a.url, downloadTimeout); err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(zipPath)
	}()

	if err := extractTool(zipPath, a.tool, destPath); err != nil {
		return err
	}
	return os.Chmod(destPath, 0o755)
}

// engineAssets resolves the pinned distribution URLs for this
// platform. Both the transcoder and the prober are required.
func engineAssets() ([]asset, error) {
	platform, err := distPlatform()
	if err != nil {
		return nil, err
	}

	assets := make([]asset, 0, 2)
	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		assets = append(assets, asset{
			tool: tool,
			url:  fmt.Sprintf("%s/%s-%s-%s.zip", distBaseURL, tool, engineVersion, platform),
		})
	}
	return assets, nil
}

// distPlatform maps GOOS/GOARCH to the distribution's platform label.
func distPlatform() (string, error) {
	switch goruntime.GOOS {
	case "darwin":
		return "osx-64", nil
	case "windows":
		return "win-64", nil
	case "linux":
		switch goruntime.GOARCH {
		case "amd64":
			return "linux-64", nil
		case "arm64":
			return "linux-arm-64", nil
		}
	}
	return "", fmt.Errorf("no engine build for %s/%s", goruntime.GOOS, goruntime.GOARCH)
}

// exeName appends the Windows executable suffix when needed.
func exeName(tool string) string {
	if goruntime.GOOS == "windows" {
		return tool + ".exe"
	}
	return tool
}

// downloadURLToFile fetches one remote asset into destinationPath via
// a temporary file so partial downloads never land in place.
func downloadURLToFile(ctx context.Context, destinationPath string, sourceURL string, timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return fmt.Errorf("prepare destination directory: %w", err)
	}

	tmpPath := destinationPath + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "conversor")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write destination file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", closeErr)
	}

	if err := os.Remove(destinationPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("remove old destination file: %w", err)
	}
	if err := os.Rename(tmpPath, destinationPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move downloaded file into place: %w", err)
	}

	return nil
}

// extractTool copies the named tool binary out of a downloaded zip
// archive into destPath.
func extractTool(zipPath string, tool string, destPath string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}

		name := filepath.Base(file.Name)
		if name != tool && strings.TrimSuffix(name, ".exe") != tool {
			continue
		}

		src, err := file.Open()
		if err != nil {
			return fmt.Errorf("open archive member %s: %w", file.Name, err)
		}

		dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
		if err != nil {
			_ = src.Close()
			return fmt.Errorf("create binary %s: %w", destPath, err)
		}

		_, copyErr := io.Copy(dst, src)
		srcCloseErr := src.Close()
		dstCloseErr := dst.Close()
		if copyErr != nil {
			return fmt.Errorf("extract %s: %w", tool, copyErr)
		}
		if srcCloseErr != nil {
			return fmt.Errorf("close archive member: %w", srcCloseErr)
		}
		if dstCloseErr != nil {
			return fmt.Errorf("close binary: %w", dstCloseErr)
		}
		return nil
	}

	return fmt.Errorf("archive does not contain %s: %s", tool, zipPath)
}
