package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Johnnenna2/weekly-news/internal/domain"
)

var testCreds = domain.Credentials{
	WebhookURL: "https://discord.com/api/webhooks/1/a",
	AIAPIKey:   "sk-test",
	NewsAPIKey: "news-test",
}

// fakeProvisioner counts invocations and optionally fails.
type fakeProvisioner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *fakeProvisioner) Provision(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *fakeProvisioner) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeScript counts invocations and returns a fixed exit code.
type fakeScript struct {
	mu       sync.Mutex
	calls    int
	exitCode int
	err      error
	lastEnv  []string
}

func (s *fakeScript) Run(ctx context.Context, extraEnv []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastEnv = extraEnv
	return s.exitCode, s.err
}

func (s *fakeScript) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeStore records transitions and enforces the terminal-state guard.
type fakeStore struct {
	mu       sync.Mutex
	statuses map[uuid.UUID][]domain.RunStatus
	final    map[uuid.UUID]domain.Run
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		statuses: make(map[uuid.UUID][]domain.RunStatus),
		final:    make(map[uuid.UUID]domain.Run),
	}
}

func (s *fakeStore) UpdateRunStatus(ctx context.Context, run domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.final[run.ID]; done {
		return ErrStatusTransitionDenied
	}
	s.statuses[run.ID] = append(s.statuses[run.ID], run.Status)
	return nil
}

func (s *fakeStore) CompleteRun(ctx context.Context, run domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.final[run.ID]; done {
		return ErrStatusTransitionDenied
	}
	s.final[run.ID] = run
	return nil
}

func (s *fakeStore) finalRun(id uuid.UUID) (domain.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.final[id]
	return run, ok
}

func event() domain.TriggerEvent {
	return domain.TriggerEvent{
		RunID:     uuid.New(),
		Kind:      domain.TriggerKindManual,
		FiredAt:   time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	}
}

func TestExecute_Success(t *testing.T) {
	prov := &fakeProvisioner{}
	scr := &fakeScript{exitCode: 0}
	store := newFakeStore()

	r := New(testCreds, prov, scr, store)

	run, err := r.Execute(context.Background(), event())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if run.Status != domain.RunStatusSucceeded {
		t.Errorf("status = %q, want succeeded", run.Status)
	}
	if run.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", run.ExitCode)
	}
	if run.Failure != domain.FailureNone {
		t.Errorf("failure = %q, want none", run.Failure)
	}
	if prov.callCount() != 1 {
		t.Errorf("provision calls = %d, want 1", prov.callCount())
	}
	if scr.callCount() != 1 {
		t.Errorf("script calls = %d, want 1", scr.callCount())
	}

	final, ok := store.finalRun(run.ID)
	if !ok {
		t.Fatal("terminal run not recorded in store")
	}
	if final.Status != domain.RunStatusSucceeded {
		t.Errorf("stored status = %q, want succeeded", final.Status)
	}
}

func TestExecute_CredentialsInjectedAsEnv(t *testing.T) {
	scr := &fakeScript{}
	r := New(testCreds, &fakeProvisioner{}, scr, newFakeStore())

	if _, err := r.Execute(context.Background(), event()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := map[string]bool{
		"DISCORD_WEBHOOK_URL=" + testCreds.WebhookURL: false,
		"OPENAI_API_KEY=" + testCreds.AIAPIKey:        false,
		"NEWS_API_KEY=" + testCreds.NewsAPIKey:        false,
	}
	for _, kv := range scr.lastEnv {
		if _, ok := want[kv]; ok {
			want[kv] = true
		}
	}
	for kv, seen := range want {
		if !seen {
			t.Errorf("script env missing %q", kv)
		}
	}
}

func TestExecute_MissingCredential(t *testing.T) {
	creds := testCreds
	creds.NewsAPIKey = ""

	prov := &fakeProvisioner{}
	scr := &fakeScript{}
	store := newFakeStore()
	r := New(creds, prov, scr, store)

	ev := event()
	run, err := r.Execute(context.Background(), ev)
	if err == nil {
		t.Fatal("Execute should fail with a missing credential")
	}
	if domain.FailureKindOf(err) != domain.FailureConfiguration {
		t.Errorf("failure kind = %q, want configuration", domain.FailureKindOf(err))
	}
	if run.Failure != domain.FailureConfiguration {
		t.Errorf("run failure = %q, want configuration", run.Failure)
	}
	// Nothing external may run on a configuration failure.
	if prov.callCount() != 0 {
		t.Errorf("provision calls = %d, want 0", prov.callCount())
	}
	if scr.callCount() != 0 {
		t.Errorf("script calls = %d, want 0", scr.callCount())
	}
}

func TestExecute_ProvisionFailure(t *testing.T) {
	prov := &fakeProvisioner{err: errors.New("pip install failed")}
	scr := &fakeScript{}
	r := New(testCreds, prov, scr, newFakeStore())

	run, err := r.Execute(context.Background(), event())
	if err == nil {
		t.Fatal("Execute should fail when provisioning fails")
	}
	if domain.FailureKindOf(err) != domain.FailureSetup {
		t.Errorf("failure kind = %q, want setup", domain.FailureKindOf(err))
	}
	if run.Status != domain.RunStatusFailed {
		t.Errorf("status = %q, want failed", run.Status)
	}
	// The script is never attempted after a setup failure.
	if scr.callCount() != 0 {
		t.Errorf("script calls = %d, want 0", scr.callCount())
	}
}

func TestExecute_ScriptFailure(t *testing.T) {
	scr := &fakeScript{exitCode: 2}
	r := New(testCreds, &fakeProvisioner{}, scr, newFakeStore())

	run, err := r.Execute(context.Background(), event())
	if err == nil {
		t.Fatal("Execute should fail when the script exits non-zero")
	}
	if domain.FailureKindOf(err) != domain.FailureScript {
		t.Errorf("failure kind = %q, want script", domain.FailureKindOf(err))
	}
	if run.ExitCode != 2 {
		t.Errorf("exit code = %d, want 2 (propagated untransformed)", run.ExitCode)
	}
}

func TestExecute_ScriptStartFailure(t *testing.T) {
	scr := &fakeScript{exitCode: -1, err: errors.New("no such file")}
	r := New(testCreds, &fakeProvisioner{}, scr, newFakeStore())

	run, err := r.Execute(context.Background(), event())
	if err == nil {
		t.Fatal("Execute should fail when the script cannot start")
	}
	if domain.FailureKindOf(err) != domain.FailureScript {
		t.Errorf("failure kind = %q, want script", domain.FailureKindOf(err))
	}
	if run.Status != domain.RunStatusFailed {
		t.Errorf("status = %q, want failed", run.Status)
	}
}

// TestExecute_RunsAreIndependent verifies that a failed run leaves no state
// behind that changes the outcome of the next run.
func TestExecute_RunsAreIndependent(t *testing.T) {
	prov := &fakeProvisioner{}
	scr := &fakeScript{exitCode: 1}
	store := newFakeStore()
	r := New(testCreds, prov, scr, store)

	if _, err := r.Execute(context.Background(), event()); err == nil {
		t.Fatal("first run should fail")
	}

	scr.mu.Lock()
	scr.exitCode = 0
	scr.mu.Unlock()

	run, err := r.Execute(context.Background(), event())
	if err != nil {
		t.Fatalf("second run should succeed, got: %v", err)
	}
	if run.Status != domain.RunStatusSucceeded {
		t.Errorf("second run status = %q, want succeeded", run.Status)
	}
}

func TestExecute_StatusProgression(t *testing.T) {
	store := newFakeStore()
	r := New(testCreds, &fakeProvisioner{}, &fakeScript{}, store)

	ev := event()
	if _, err := r.Execute(context.Background(), ev); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	store.mu.Lock()
	got := store.statuses[ev.RunID]
	store.mu.Unlock()

	want := []domain.RunStatus{domain.RunStatusProvisioning, domain.RunStatusExecuting}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRun_ProcessesEventsUntilCancelled(t *testing.T) {
	scr := &fakeScript{}
	store := newFakeStore()
	r := New(testCreds, &fakeProvisioner{}, scr, store).WithDrainTimeout(time.Second)

	ch := make(chan domain.TriggerEvent, 4)
	ev1, ev2 := event(), event()
	ch <- ev1
	ch <- ev2

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, ch)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for scr.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for runs, got %d", scr.callCount())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if _, ok := store.finalRun(ev1.RunID); !ok {
		t.Error("first run has no terminal record")
	}
	if _, ok := store.finalRun(ev2.RunID); !ok {
		t.Error("second run has no terminal record")
	}
}

func TestRun_DrainsBufferedEventsOnShutdown(t *testing.T) {
	scr := &fakeScript{}
	r := New(testCreds, &fakeProvisioner{}, scr, newFakeStore()).WithDrainTimeout(time.Second)

	ch := make(chan domain.TriggerEvent, 4)
	ch <- event()
	ch <- event()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled: Run must still drain the buffer

	r.Run(ctx, ch)

	if scr.callCount() != 2 {
		t.Errorf("script calls = %d, want 2 (buffered events drained)", scr.callCount())
	}
}
