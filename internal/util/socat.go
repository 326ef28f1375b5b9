package util

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SocatManager manages lifecycle of socat-created virtual serial pairs.
type SocatManager struct {
	mu     sync.Mutex
	cmds   []*exec.Cmd
	links  []string
	closed bool
	log    *zap.Logger
}

// NewSocatManager initializes an empty manager.
func NewSocatManager() *SocatManager {
	return &SocatManager{log: Named("virt-serial")}
}

// CreatePair starts a socat process that links two PTYs (bidirectional)
// and waits until both links exist.
func (m *SocatManager) CreatePair(left, right string, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("socat manager closed")
	}

	cmd := exec.Command(
		"socat", "-d", "-d",
		fmt.Sprintf("pty,raw,echo=0,link=%s", left),
		fmt.Sprintf("pty,raw,echo=0,link=%s", right),
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start socat: %w", err)
	}
	m.log.Info("started socat", zap.Int("pid", cmd.Process.Pid), zap.String("left", left), zap.String("right", right))

	m.cmds = append(m.cmds, cmd)
	m.links = append(m.links, left, right)
	return waitForLinks(timeout, left, right)
}

func waitForLinks(timeout time.Duration, paths ...string) error {
	deadline := time.Now().Add(timeout)
	for _, p := range paths {
		for {
			if _, err := os.Lstat(p); err == nil {
				break
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("virtual serial link %s not created within %s", p, timeout)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	return nil
}

// Cleanup stops all socat processes and removes created links.
func (m *SocatManager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true

	for _, cmd := range m.cmds {
		if cmd.Process != nil {
			m.log.Info("killing socat", zap.Int("pid", cmd.Process.Pid))
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
		}
	}

	for _, path := range m.links {
		if _, err := os.Lstat(path); err == nil {
			_ = os.Remove(path)
			m.log.Info("removed link", zap.String("path", path))
		}
	}

	m.log.Info("cleanup complete", zap.Int("pairs", len(m.links)/2))
}
