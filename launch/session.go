package launch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jugelauncher/launcher/events"
)

var (
	// ErrAlreadyRunning: a session for this profile is still running; a
	// second process is never spawned.
	ErrAlreadyRunning = errors.New("game already running for this profile")
	// ErrProcessSpawn: the game process could not be started at all.
	ErrProcessSpawn = errors.New("failed to spawn game process")
)

// Patterns that tag a stdout line as an error for downstream highlighting.
// Stderr lines are always tagged.
var errorMarkers = []string{"ERROR", "FATAL", "Exception"}

const maxLogLines = 10000

type Status int

const (
	StatusStarting Status = iota
	StatusRunning
	StatusExited
)

// Session is one supervised game process. It is mutated only by the
// supervisor's internal readers and waiter; consumers observe it through
// the event bus and the accessors below.
type Session struct {
	ProfileID string

	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	status   Status
	exitCode int
	logs     []events.LogLine
}

func (s *Session) Status() (Status, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.exitCode
}

// Logs returns a copy of the session's ordered log buffer. Under memory
// pressure the buffer truncates from the front, so the copy always holds
// the most recent lines.
func (s *Session) Logs() []events.LogLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.LogLine(nil), s.logs...)
}

// Done is closed after the terminal event has been delivered.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) appendLog(line events.LogLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, line)
	if len(s.logs) > maxLogLines {
		s.logs = s.logs[len(s.logs)-maxLogLines:]
	}
}

// Terminate requests process termination and waits for the terminal event
// before returning. If ctx runs out first the process is killed outright
// and the terminal event still fires.
func (s *Session) Terminate(ctx context.Context) error {
	if status, _ := s.Status(); status == StatusExited {
		return nil
	}
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = s.cmd.Process.Kill()
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		_ = s.cmd.Process.Kill()
		<-s.done
		return ctx.Err()
	}
}

// Supervisor spawns and observes game processes, one active session per
// profile.
type Supervisor struct {
	Bus *events.Bus
	Log *logrus.Logger

	mu     sync.Mutex
	active map[string]*Session
}

func (sv *Supervisor) logger() *logrus.Logger {
	if sv.Log == nil {
		sv.Log = logrus.StandardLogger()
	}
	return sv.Log
}

// Launch spawns the command line and supervises it: stdout and stderr are
// drained line-by-line into the session's log buffer and onto the event
// bus, and the process exit is published exactly once as a terminal event.
func (sv *Supervisor) Launch(profileID string, cl *CommandLine) (*Session, error) {
	sv.mu.Lock()
	if sv.active == nil {
		sv.active = map[string]*Session{}
	}
	if existing, ok := sv.active[profileID]; ok {
		if status, _ := existing.Status(); status != StatusExited {
			sv.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrAlreadyRunning, profileID)
		}
	}

	//nolint:gosec // The command line is composed from the verified manifest
	cmd := exec.Command(cl.JavaPath, cl.Args...)
	cmd.Dir = cl.WorkDir
	session := &Session{
		ProfileID: profileID,
		cmd:       cmd,
		done:      make(chan struct{}),
		status:    StatusStarting,
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		sv.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrProcessSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		sv.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrProcessSpawn, err)
	}
	if err := cmd.Start(); err != nil {
		sv.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrProcessSpawn, err)
	}
	session.mu.Lock()
	session.status = StatusRunning
	session.mu.Unlock()
	sv.active[profileID] = session
	sv.mu.Unlock()

	sv.logger().WithFields(logrus.Fields{"profile": profileID, "pid": cmd.Process.Pid}).Info("game process started")

	var readers sync.WaitGroup
	readers.Add(2)
	go sv.drain(session, stdout, false, &readers)
	go sv.drain(session, stderr, true, &readers)
	go sv.wait(session, &readers)
	return session, nil
}

func (sv *Supervisor) drain(session *Session, r io.Reader, stderr bool, readers *sync.WaitGroup) {
	defer readers.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := scanner.Text()
		line := events.LogLine{
			ProfileID: session.ProfileID,
			Text:      text,
			IsError:   stderr || hasErrorMarker(text),
		}
		session.appendLog(line)
		sv.publish(line)
	}
}

func (sv *Supervisor) wait(session *Session, readers *sync.WaitGroup) {
	readers.Wait()
	err := session.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
			sv.logger().Warnf("wait for game process: %v", err)
		}
	}
	session.mu.Lock()
	session.status = StatusExited
	session.exitCode = code
	session.mu.Unlock()

	sv.mu.Lock()
	if sv.active[session.ProfileID] == session {
		delete(sv.active, session.ProfileID)
	}
	sv.mu.Unlock()

	sv.logger().WithFields(logrus.Fields{"profile": session.ProfileID, "code": code}).Info("game process exited")
	sv.publish(events.Exited{ProfileID: session.ProfileID, Code: code})
	close(session.done)
}

func (sv *Supervisor) publish(e events.Event) {
	if sv.Bus != nil {
		sv.Bus.Publish(e)
	}
}

func hasErrorMarker(text string) bool {
	for _, marker := range errorMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
