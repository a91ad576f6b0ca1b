package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
	"github.com/sharma-sourabh3435/fleet-dispatch/pkg/utils"
)

// Launcher turns a work item into a running client process
type Launcher interface {
	Launch(ctx context.Context, item models.WorkItem) error
}

// jvmFlags are passed to every launched client
var jvmFlags = []string{
	"-XX:+DisableAttachMechanism",
	"-Xmx2G",
	"-Xss2m",
	"-XX:CompileThreshold=1500",
	"-Dawt.useSystemAAFontSettings=on",
	"-Dswing.aatext=true",
}

// RuneLiteLauncher starts the RuneLite client bundled in an install directory
type RuneLiteLauncher struct {
	installPath string
	javaPath    string
	logger      *utils.Logger
}

// LauncherConfig holds launcher configuration
type LauncherConfig struct {
	InstallPath string
	// JavaPath overrides the bundled JRE
	JavaPath string
}

// NewRuneLiteLauncher creates a launcher for the given install directory
func NewRuneLiteLauncher(config LauncherConfig) *RuneLiteLauncher {
	javaPath := config.JavaPath
	if javaPath == "" {
		java := "java"
		if runtime.GOOS == "windows" {
			java = "java.exe"
		}
		javaPath = filepath.Join(config.InstallPath, "jre", "bin", java)
	}

	return &RuneLiteLauncher{
		installPath: config.InstallPath,
		javaPath:    javaPath,
		logger:      utils.NewLogger("launcher"),
	}
}

// Command builds the client command line. The work item is passed only in
// the child's environment.
func (l *RuneLiteLauncher) Command(item models.WorkItem) *exec.Cmd {
	args := append([]string{}, jvmFlags...)
	args = append(args, "-jar", filepath.Join(l.installPath, "RuneLite.jar"))

	cmd := exec.Command(l.javaPath, args...)
	cmd.Dir = l.installPath
	cmd.Env = append(inheritedEnv(), item.Env()...)
	return cmd
}

// Launch validates item and starts the client. It returns once the spawn
// attempt completes; the child is reaped in the background.
func (l *RuneLiteLauncher) Launch(ctx context.Context, item models.WorkItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := l.Command(item)

	l.logger.Info("Launching account %s", item.DisplayName)
	l.logger.Debug("Executing command: %s", strings.Join(cmd.Args, " "))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start client for %s: %w", item.DisplayName, err)
	}

	go func() {
		err := cmd.Wait()
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				l.logger.Warn("Client for %s exited with code %d after %v", item.DisplayName, exitErr.ExitCode(), time.Since(start))
				return
			}
			l.logger.Error("Client for %s failed: %v", item.DisplayName, err)
			return
		}
		l.logger.Info("Client for %s exited after %v", item.DisplayName, time.Since(start))
	}()

	return nil
}

// inheritedEnv is the worker's environment minus any JX_ variables, which
// would otherwise leak one account's tokens into another's client.
func inheritedEnv() []string {
	parent := os.Environ()
	env := make([]string, 0, len(parent))
	for _, kv := range parent {
		if strings.HasPrefix(kv, "JX_") {
			continue
		}
		env = append(env, kv)
	}
	return env
}
