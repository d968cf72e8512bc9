package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/jobrelay/internal/conversation"
	"github.com/memohai/jobrelay/internal/history"
)

type fakeCreator struct {
	gotID, gotDesc string
	err            error
}

func (f *fakeCreator) CreateJob(_ context.Context, jobID, description string) (Job, error) {
	f.gotID, f.gotDesc = jobID, description
	if f.err != nil {
		return Job{}, f.err
	}
	return Job{ID: jobID, Branch: EncodeBranch(jobID)}, nil
}

type fakeStatus struct {
	gotID  string
	report StatusReport
	err    error
}

func (f *fakeStatus) JobStatus(_ context.Context, jobID string) (StatusReport, error) {
	f.gotID = jobID
	return f.report, f.err
}

type fakeSummarizer struct {
	text string
	got  Results
}

func (f *fakeSummarizer) SummarizeJob(_ context.Context, r Results) string {
	f.got = r
	return f.text
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeNotifier) SendMessage(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, chatID+":"+text)
	return nil
}

type staticChat string

func (s staticChat) ChatID() string { return string(s) }

func newTestCoordinator(chat string) (*Coordinator, *fakeCreator, *fakeStatus, *fakeSummarizer, *fakeNotifier, *history.MemoryStore) {
	creator := &fakeCreator{}
	status := &fakeStatus{}
	summarizer := &fakeSummarizer{text: "Job finished."}
	notifier := &fakeNotifier{}
	store := history.NewMemoryStore()
	c := NewCoordinator(nil, creator, status, summarizer, notifier, staticChat(chat), store, history.NewLocker())
	c.newID = func() string { return "fixed-id" }
	return c, creator, status, summarizer, notifier, store
}

func TestCreateJob(t *testing.T) {
	t.Parallel()

	c, creator, _, _, _, _ := newTestCoordinator("1")
	job, err := c.CreateJob(context.Background(), "  fix the bug  ")
	require.NoError(t, err)
	assert.Equal(t, Job{ID: "fixed-id", Branch: "job/fixed-id"}, job)
	assert.Equal(t, "fix the bug", creator.gotDesc)
}

func TestCreateJobValidation(t *testing.T) {
	t.Parallel()

	c, _, _, _, _, _ := newTestCoordinator("1")
	_, err := c.CreateJob(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrMissingJobField)
}

func TestCreateJobUpstreamFailure(t *testing.T) {
	t.Parallel()

	c, creator, _, _, _, _ := newTestCoordinator("1")
	creator.err = errors.New("boom")
	_, err := c.CreateJob(context.Background(), "x")
	assert.Error(t, err)
}

func TestGetStatusPassesThrough(t *testing.T) {
	t.Parallel()

	c, _, status, _, _, _ := newTestCoordinator("1")
	status.report = StatusReport{Jobs: []RunStatus{}, Queued: 2}
	report, err := c.GetStatus(context.Background(), " unknown ")
	require.NoError(t, err)
	assert.Equal(t, "unknown", status.gotID)
	assert.Equal(t, 2, report.Queued)
	assert.Empty(t, report.Jobs)
}

func TestOnCompletionNotAJob(t *testing.T) {
	t.Parallel()

	c, _, _, _, notifier, _ := newTestCoordinator("1")
	res, err := c.OnCompletion(context.Background(), CompletionPayload{Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, CompletionResult{OK: true, Skipped: true, Reason: "not a job"}, res)
	assert.Empty(t, notifier.sent)
}

func TestOnCompletionNoChatConfigured(t *testing.T) {
	t.Parallel()

	c, _, _, _, notifier, _ := newTestCoordinator("")
	res, err := c.OnCompletion(context.Background(), CompletionPayload{Branch: "job/abc123"})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, ReasonNoChatSetup, res.Reason)
	assert.Empty(t, notifier.sent)
}

func TestOnCompletionNotifiesAndRecords(t *testing.T) {
	t.Parallel()

	c, _, _, summarizer, notifier, store := newTestCoordinator("42")
	payload := CompletionPayload{
		Branch:       "job/abc123",
		Job:          "add a README",
		Status:       "success",
		ChangedFiles: []string{"README.md"},
		PRURL:        "https://github.com/o/r/pull/1",
	}
	res, err := c.OnCompletion(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, CompletionResult{OK: true, Notified: true, JobID: "abc123"}, res)
	assert.Equal(t, "abc123", summarizer.got.JobID)
	assert.Equal(t, []string{"README.md"}, summarizer.got.ChangedFiles)
	assert.Equal(t, []string{"42:Job finished."}, notifier.sent)

	msgs, err := store.Get(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, conversation.AssistantMessage("Job finished."), msgs[0])
}

func TestOnCompletionSendFailure(t *testing.T) {
	t.Parallel()

	c, _, _, _, notifier, store := newTestCoordinator("42")
	notifier.err = errors.New("telegram down")
	_, err := c.OnCompletion(context.Background(), CompletionPayload{JobID: "abc"})
	assert.Error(t, err)
	msgs, _ := store.Get(context.Background(), "42")
	assert.Empty(t, msgs)
}
