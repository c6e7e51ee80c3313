// internal/traffic/haproxy_test.go
package traffic

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/greenlight/internal/environment"
)

// fakeHAProxy speaks just enough of the runtime API for tests: one
// line-oriented command per connection, show stat in CSV.
type fakeHAProxy struct {
	listener net.Listener

	mu           sync.Mutex
	status       map[string]string // "backend/server" -> UP | MAINT
	commands     []string
	snapshots    [][2]bool // (blue enabled, green enabled) after each mutation
	ignoreEnable bool
	rejectWith   string
}

func newFakeHAProxy(t *testing.T, status map[string]string) *fakeHAProxy {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeHAProxy{listener: l, status: status}
	go f.serve()
	t.Cleanup(func() { _ = l.Close() })

	return f
}

func (f *fakeHAProxy) addr() string { return f.listener.Addr().String() }

func (f *fakeHAProxy) serve() {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeHAProxy) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	cmd := scanner.Text()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)

	switch {
	case cmd == "show stat":
		fmt.Fprint(conn, f.statCSV())
	case strings.HasPrefix(cmd, "enable server "), strings.HasPrefix(cmd, "disable server "):
		if f.rejectWith != "" {
			fmt.Fprintln(conn, f.rejectWith)
			return
		}
		target := strings.TrimPrefix(strings.TrimPrefix(cmd, "enable server "), "disable server ")
		if strings.HasPrefix(cmd, "enable") {
			if !f.ignoreEnable {
				f.status[target] = "UP"
			}
		} else {
			f.status[target] = "MAINT"
		}
		f.recordSnapshot()
		fmt.Fprintln(conn, "")
	default:
		fmt.Fprintln(conn, "Unknown command.")
	}
}

func (f *fakeHAProxy) statCSV() string {
	var sb strings.Builder
	sb.WriteString("# pxname,svname,qcur,qmax,scur,smax,slim,stot,bin,bout,dreq,dresp,ereq,econ,eresp,wretr,wredis,status,weight\n")
	for key, status := range f.status {
		parts := strings.SplitN(key, "/", 2)
		sb.WriteString(parts[0] + "," + parts[1] + ",0,0,0,0,,0,0,0,0,0,0,0,0,0,0," + status + ",1\n")
	}
	return sb.String()
}

func (f *fakeHAProxy) recordSnapshot() {
	var blue, green bool
	for key, status := range f.status {
		enabled := !strings.HasPrefix(status, "MAINT")
		if strings.HasSuffix(key, "/blue") {
			blue = enabled
		}
		if strings.HasSuffix(key, "/green") {
			green = enabled
		}
	}
	f.snapshots = append(f.snapshots, [2]bool{blue, green})
}

func (f *fakeHAProxy) commandLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func newTestController(t *testing.T, fake *fakeHAProxy) *HAProxy {
	t.Helper()
	return NewHAProxy(fake.addr(), "jenkins", 2*time.Second, zap.NewNop())
}

func TestHAProxy_BackendState(t *testing.T) {
	fake := newFakeHAProxy(t, map[string]string{
		"jenkins-devops/blue":  "UP",
		"jenkins-devops/green": "MAINT",
	})
	ctrl := newTestController(t, fake)

	state, err := ctrl.BackendState(context.Background(), "devops")
	require.NoError(t, err)

	assert.True(t, state[environment.Blue])
	assert.False(t, state[environment.Green])

	t.Run("unknown team errors", func(t *testing.T) {
		_, err := ctrl.BackendState(context.Background(), "nobody")
		assert.Error(t, err)
	})
}

func TestHAProxy_SetActive(t *testing.T) {
	fake := newFakeHAProxy(t, map[string]string{
		"jenkins-devops/blue":  "UP",
		"jenkins-devops/green": "MAINT",
	})
	ctrl := newTestController(t, fake)

	require.NoError(t, ctrl.SetActive(context.Background(), "devops", environment.Green))

	t.Run("final state confirmed", func(t *testing.T) {
		state, err := ctrl.BackendState(context.Background(), "devops")
		require.NoError(t, err)
		assert.True(t, state[environment.Green])
		assert.False(t, state[environment.Blue])
	})

	t.Run("enable issued before disable", func(t *testing.T) {
		var enableIdx, disableIdx int
		for i, cmd := range fake.commandLog() {
			if cmd == "enable server jenkins-devops/green" {
				enableIdx = i
			}
			if cmd == "disable server jenkins-devops/blue" {
				disableIdx = i
			}
		}
		assert.Less(t, enableIdx, disableIdx)
	})

	t.Run("no instant with both environments down", func(t *testing.T) {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		for i, snap := range fake.snapshots {
			assert.True(t, snap[0] || snap[1], "snapshot %d has both environments disabled", i)
		}
	})
}

func TestHAProxy_SetActive_Rejected(t *testing.T) {
	fake := newFakeHAProxy(t, map[string]string{
		"jenkins-devops/blue":  "UP",
		"jenkins-devops/green": "MAINT",
	})
	fake.rejectWith = "No such server."
	ctrl := newTestController(t, fake)

	err := ctrl.SetActive(context.Background(), "devops", environment.Green)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No such server")

	// Failed enable must not be followed by a disable of the live server.
	for _, cmd := range fake.commandLog() {
		assert.NotEqual(t, "disable server jenkins-devops/blue", cmd)
	}
}

func TestHAProxy_SetActive_Unconfirmed(t *testing.T) {
	fake := newFakeHAProxy(t, map[string]string{
		"jenkins-devops/blue":  "UP",
		"jenkins-devops/green": "MAINT",
	})
	fake.ignoreEnable = true

	ctrl := NewHAProxy(fake.addr(), "jenkins", 300*time.Millisecond, zap.NewNop())

	err := ctrl.SetActive(context.Background(), "devops", environment.Green)
	assert.ErrorIs(t, err, ErrSwitchUnconfirmed)
}

func TestHAProxy_DialFailure(t *testing.T) {
	ctrl := NewHAProxy("127.0.0.1:1", "jenkins", time.Second, zap.NewNop())
	_, err := ctrl.BackendState(context.Background(), "devops")
	assert.Error(t, err)
}
