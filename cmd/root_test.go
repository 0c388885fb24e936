package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
	"github.com/JakeFAU/sgs-catalog/internal/config"
	"github.com/JakeFAU/sgs-catalog/internal/pipeline"
)

type fakeServices struct {
	cfg      config.Config
	calls    []string
	runErr   error
	result   pipeline.Result
	scanned  []catalog.Candidate
	resetErr error
	closed   bool
}

func (f *fakeServices) Run(context.Context) (pipeline.Result, error) {
	f.calls = append(f.calls, "run")
	return f.result, f.runErr
}

func (f *fakeServices) Scan(context.Context) ([]catalog.Candidate, error) {
	f.calls = append(f.calls, "scan")
	return f.scanned, nil
}

func (f *fakeServices) Reset(context.Context) error {
	f.calls = append(f.calls, "reset")
	return f.resetErr
}

func (f *fakeServices) Close() { f.closed = true }

// useFake swaps both factories for the duration of the test.
func useFake(t *testing.T, fake *fakeServices) {
	t.Helper()
	prevServices, prevCheckpoint := newServices, openCheckpoint
	factory := func(_ context.Context, cfg config.Config, _ *zap.Logger) (Services, error) {
		fake.cfg = cfg
		return fake, nil
	}
	newServices, openCheckpoint = factory, factory
	t.Cleanup(func() { newServices, openCheckpoint = prevServices, prevCheckpoint })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SGSCATALOG_LOGGING_LEVEL", "error")
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuild_RunsPipeline(t *testing.T) {
	fake := &fakeServices{result: pipeline.Result{
		RunID:   "run-1",
		Receipt: catalog.Receipt{URI: "file:///tmp/sgs_series_catalog.jsonl", Digest: "abc", Records: 7},
	}}
	useFake(t, fake)

	out, err := execute(t, "build", "--lo", "10", "--hi", "20")
	require.NoError(t, err)
	require.Equal(t, []string{"run"}, fake.calls)
	require.True(t, fake.closed)
	require.Equal(t, 10, fake.cfg.Scan.Lo)
	require.Equal(t, 20, fake.cfg.Scan.Hi)
	require.Contains(t, out, "file:///tmp/sgs_series_catalog.jsonl\t7 records\tabc")
}

func TestBuild_ResetFirst(t *testing.T) {
	fake := &fakeServices{}
	useFake(t, fake)

	_, err := execute(t, "build", "--reset")
	require.NoError(t, err)
	require.Equal(t, []string{"reset", "run"}, fake.calls)
}

func TestBuild_NoActiveSeriesExitCode(t *testing.T) {
	fake := &fakeServices{runErr: fmt.Errorf("assemble: %w", catalog.ErrNoActiveSeries)}
	useFake(t, fake)

	_, err := execute(t, "build")
	require.ErrorIs(t, err, catalog.ErrNoActiveSeries)
	require.Equal(t, exitNoActive, exitCode(err))
	require.True(t, fake.closed)
}

func TestExitCode_OtherFailures(t *testing.T) {
	t.Parallel()

	require.Equal(t, exitFailure, exitCode(errors.New("boom")))
	require.Equal(t, exitFailure, exitCode(&catalog.OutputIOError{Sink: "local", Err: errors.New("disk full")}))
}

func TestBuild_InterruptExitCode(t *testing.T) {
	fake := &fakeServices{runErr: fmt.Errorf("scan ids: %w", context.Canceled)}
	useFake(t, fake)

	_, err := execute(t, "build")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, exitInterrupted, exitCode(err))
	require.True(t, fake.closed)
}

func TestScan_ReportsCandidates(t *testing.T) {
	fake := &fakeServices{scanned: []catalog.Candidate{
		{ID: 1, Class: catalog.ClassStandard},
		{ID: 2, Class: catalog.ClassDaily},
		{ID: 3, Class: catalog.ClassStandard},
	}}
	useFake(t, fake)

	out, err := execute(t, "scan", "--lo", "1", "--hi", "3")
	require.NoError(t, err)
	require.Equal(t, []string{"scan"}, fake.calls)
	require.Contains(t, out, "3 valid series (1 daily) in [1, 3]")
}

func TestReset_ClearsCheckpoint(t *testing.T) {
	fake := &fakeServices{}
	useFake(t, fake)

	out, err := execute(t, "reset")
	require.NoError(t, err)
	require.Equal(t, []string{"reset"}, fake.calls)
	require.Contains(t, out, "checkpoint cleared")
	require.True(t, fake.closed)
}

func TestReset_Failure(t *testing.T) {
	fake := &fakeServices{resetErr: errors.New("permission denied")}
	useFake(t, fake)

	_, err := execute(t, "reset")
	require.ErrorContains(t, err, "reset checkpoint: permission denied")
}

func TestRoot_InvalidRange(t *testing.T) {
	fake := &fakeServices{}
	useFake(t, fake)

	_, err := execute(t, "build", "--lo", "50", "--hi", "10")
	require.Error(t, err)
	require.Empty(t, fake.calls)
}

func TestRoot_MissingConfigFile(t *testing.T) {
	fake := &fakeServices{}
	useFake(t, fake)

	_, err := execute(t, "build", "--config", "/does/not/exist.yaml")
	require.ErrorContains(t, err, "load config")
	require.Empty(t, fake.calls)
}

func TestResolveSettings_Uninitialized(t *testing.T) {
	t.Parallel()

	_, err := resolveSettings(context.Background())
	require.Error(t, err)
}
