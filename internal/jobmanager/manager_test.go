package jobmanager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/umbridge-gateway/internal/command"
	"github.com/rezkam/umbridge-gateway/internal/job"
	"github.com/rezkam/umbridge-gateway/internal/modelclient"
	"github.com/rezkam/umbridge-gateway/internal/rendezvous"
)

// withFakeScheduler installs a minimal fake sbatch/scancel on PATH that
// immediately writes the url file a real worker would write once it
// booted, so the Manager's end-to-end flow can run without a real HPC
// scheduler or a real umbridge worker process.
func withFakeScheduler(t *testing.T, urlsDir, workerURL string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake scheduler scripts are POSIX shell only")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "sbatch")
	body := "#!/bin/sh\n" +
		"for arg in \"$@\"; do\n" +
		"  case $arg in\n" +
		"    --export=ALL*) export_arg=$arg ;;\n" +
		"  esac\n" +
		"done\n" +
		"jobdir=\"" + urlsDir + "\"\n" +
		"echo \"" + workerURL + "\" > \"$jobdir/url-1.txt\"\n" +
		"echo \"1;cluster\"\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scancel"), []byte("#!/bin/sh\nexit 0"), 0o755))

	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

func TestManager_RequestModelAccess(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(modelclient.Info{ProtocolVersion: 1.0, Models: []string{"forward"}})
	}))
	defer worker.Close()

	urlsDir := t.TempDir()
	withFakeScheduler(t, urlsDir, worker.URL)

	scriptsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(scriptsDir, "job.sh"), []byte("#!/bin/sh"), 0o755))

	submitter := job.NewSubmitter(job.KindBatchArray, command.NewRunner(), 0)
	comms := job.NewCommunicatorFactory(rendezvous.New(urlsDir, 5*time.Millisecond))
	locator := job.NewScriptLocator(scriptsDir)

	m := New(submitter, comms, locator)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	binding, err := m.RequestModelAccess(ctx, "forward")
	require.NoError(t, err)
	require.NotNil(t, binding)
	assert.Equal(t, "forward", binding.Model)

	require.NoError(t, binding.Release(ctx))

	_, statErr := os.Stat(filepath.Join(urlsDir, "url-1.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestManager_ModelNames_CachesAcrossCalls(t *testing.T) {
	var hits int
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		json.NewEncoder(w).Encode(modelclient.Info{ProtocolVersion: 1.0, Models: []string{"forward", "adjoint"}})
	}))
	defer worker.Close()

	urlsDir := t.TempDir()
	withFakeScheduler(t, urlsDir, worker.URL)

	scriptsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(scriptsDir, "job.sh"), []byte("#!/bin/sh"), 0o755))

	submitter := job.NewSubmitter(job.KindBatchArray, command.NewRunner(), 0)
	comms := job.NewCommunicatorFactory(rendezvous.New(urlsDir, 5*time.Millisecond))
	locator := job.NewScriptLocator(scriptsDir)

	m := New(submitter, comms, locator)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	names1, err := m.ModelNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"forward", "adjoint"}, names1)

	names2, err := m.ModelNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, names1, names2)
	assert.Equal(t, 1, hits, "worker should only be asked for its model list once")
}

func TestManager_RequestModelAccess_MissingScript(t *testing.T) {
	urlsDir := t.TempDir()
	scriptsDir := t.TempDir()

	submitter := job.NewSubmitter(job.KindBatchArray, command.NewRunner(), 0)
	comms := job.NewCommunicatorFactory(rendezvous.New(urlsDir, 5*time.Millisecond))
	locator := job.NewScriptLocator(scriptsDir)

	m := New(submitter, comms, locator)

	_, err := m.RequestModelAccess(context.Background(), "forward")
	require.Error(t, err)
}
