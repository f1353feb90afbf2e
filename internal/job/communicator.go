package job

import (
	"context"
	"sync"

	"github.com/rezkam/umbridge-gateway/internal/rendezvous"
)

// InitMessageFileDirKey is the environment variable key a worker reads to
// learn which directory to write its url-<jobId>.txt rendezvous file into.
const InitMessageFileDirKey = "UMBRIDGE_LOADBALANCER_COMM_FILEDIR"

// CommunicatorState tracks a Communicator's position in its handshake
// lifecycle, mirroring the sequence a single job actually goes through:
// the init message is handed to the submitter, then the caller waits on
// the rendezvous file, reads it once, and finally releases it.
type CommunicatorState int

const (
	StateInitialized CommunicatorState = iota
	StateInitMessageDelivered
	StateWaiting
	StateURLRead
	StateReleased
)

// Communicator is the filesystem-backed JobCommunicator: it hands out the
// init message a worker needs to know where to write its url file, then
// blocks the caller until that file shows up.
type Communicator struct {
	rendezvous *rendezvous.FileRendezvous

	mu    sync.Mutex
	state CommunicatorState
}

// CommunicatorFactory builds a fresh Communicator per job, all sharing the
// same underlying rendezvous directory.
type CommunicatorFactory struct {
	rendezvous *rendezvous.FileRendezvous
}

// NewCommunicatorFactory constructs a CommunicatorFactory over r.
func NewCommunicatorFactory(r *rendezvous.FileRendezvous) *CommunicatorFactory {
	return &CommunicatorFactory{rendezvous: r}
}

// Create returns a new Communicator for one job.
func (f *CommunicatorFactory) Create() *Communicator {
	return &Communicator{rendezvous: f.rendezvous}
}

// InitMessage returns the environment variables to pass to the submitted
// job so its worker knows where to rendezvous.
func (c *Communicator) InitMessage() map[string]string {
	c.mu.Lock()
	c.state = StateInitMessageDelivered
	c.mu.Unlock()

	return map[string]string{InitMessageFileDirKey: c.rendezvous.Dir()}
}

// ModelURL blocks until jobID's worker has written its rendezvous file,
// then returns the URL it contains.
func (c *Communicator) ModelURL(ctx context.Context, jobID string) (string, error) {
	c.mu.Lock()
	c.state = StateWaiting
	c.mu.Unlock()

	url, err := c.rendezvous.WaitForURL(ctx, jobID)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.state = StateURLRead
	c.mu.Unlock()

	return url, nil
}

// Release removes the rendezvous file for jobID. Safe to call more than
// once; only the first call has effect.
func (c *Communicator) Release(jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateReleased {
		return nil
	}
	c.state = StateReleased
	return c.rendezvous.Release(jobID)
}

// State reports the communicator's current lifecycle state, for tests.
func (c *Communicator) State() CommunicatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
