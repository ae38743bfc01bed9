package services

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SidecarManager runs the Python NER service as a child process for
// single-command development setups. In production the sidecar is
// deployed separately and this manager is never constructed.
type SidecarManager struct {
	logger     *zap.Logger
	mu         sync.Mutex
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	command    string
	dir        string
	serviceURL string
}

// NewSidecarManager creates a manager for the given command line.
// command is split on whitespace; dir may be empty to inherit the
// working directory. serviceURL is the base URL the sidecar serves
// once it is up.
func NewSidecarManager(logger *zap.Logger, command, dir, serviceURL string) *SidecarManager {
	return &SidecarManager{
		logger:     logger,
		command:    command,
		dir:        dir,
		serviceURL: serviceURL,
	}
}

// Start launches the sidecar process without waiting for it to become
// ready. Use WaitReady to block until it serves its health endpoint.
func (sm *SidecarManager) Start() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.cmd != nil {
		return fmt.Errorf("NER sidecar already running")
	}

	parts := strings.Fields(sm.command)
	if len(parts) == 0 {
		return fmt.Errorf("no sidecar command configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sm.cancel = cancel

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = sm.dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		cancel()
		sm.cancel = nil
		return fmt.Errorf("failed to start NER sidecar: %w", err)
	}

	sm.cmd = cmd
	sm.wg.Add(1)

	go func() {
		defer sm.wg.Done()
		if err := cmd.Wait(); err != nil {
			// Only log if it's not a normal exit (context cancellation)
			if ctx.Err() == nil {
				sm.logger.Error("NER sidecar exited", zap.Error(err))
			}
		}
		sm.mu.Lock()
		sm.cmd = nil
		sm.mu.Unlock()
	}()

	sm.logger.Info("NER sidecar started",
		zap.String("command", sm.command),
		zap.String("service_url", sm.serviceURL))

	return nil
}

// WaitReady polls the sidecar's health endpoint until it answers 200
// or the context expires
func (sm *SidecarManager) WaitReady(ctx context.Context) error {
	client := &http.Client{Timeout: 2 * time.Second}
	url := strings.TrimRight(sm.serviceURL, "/") + "/health"

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("NER sidecar not ready at %s: %w", url, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Stop terminates the sidecar and waits briefly for it to exit
func (sm *SidecarManager) Stop() {
	sm.mu.Lock()
	if sm.cancel != nil {
		sm.cancel()
		sm.cancel = nil
	}
	cmd := sm.cmd
	sm.mu.Unlock()

	// Wait for the process to exit
	done := make(chan struct{})
	go func() {
		sm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		sm.logger.Info("NER sidecar stopped")
	case <-time.After(5 * time.Second):
		sm.logger.Warn("NER sidecar did not stop gracefully, forcing termination")
		if cmd != nil && cmd.Process != nil {
			cmd.Process.Kill()
		}
	}
}

// Running reports whether the sidecar process is alive
func (sm *SidecarManager) Running() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.cmd != nil && sm.cmd.Process != nil
}
