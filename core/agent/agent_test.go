package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/mule/core/dispatch"
	"github.com/leofalp/mule/core/grounding"
	"github.com/leofalp/mule/providers/ai"
	"github.com/leofalp/mule/providers/fetch"
	"github.com/leofalp/mule/providers/search"
)

// scriptedProvider answers every request with a function of the trigger.
type scriptedProvider struct {
	name  string
	reply func(trigger string) (string, error)

	mu       sync.Mutex
	requests []ai.ChatRequest
}

func (p *scriptedProvider) SendMessage(_ context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, request)
	p.mu.Unlock()

	trigger := request.Messages[len(request.Messages)-1].Content
	content, err := p.reply(trigger)
	if err != nil {
		return nil, err
	}
	return &ai.ChatResponse{Model: request.Model, Content: content}, nil
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) calls() []ai.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ai.ChatRequest(nil), p.requests...)
}

func echo(name string) *scriptedProvider {
	return &scriptedProvider{name: name, reply: func(trigger string) (string, error) {
		return "re: " + trigger, nil
	}}
}

func think(ctx context.Context, a *Agent, rt *Runtime, _ *Resolved) ai.ChatHistory {
	return a.Call(ctx, rt, a.Instruction)
}

// respond returns a body that produces a canned response after delay.
func respond(content string, delay time.Duration) Body {
	return func(ctx context.Context, a *Agent, _ *Runtime, _ *Resolved) ai.ChatHistory {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
		return ai.ChatHistory{
			{Role: a.TriggerRole(), Content: a.Instruction},
			ai.NewSystemMessage(content),
		}
	}
}

// TestInvoke_ZeroDependencyAgentSendsInstructionOnly verifies that an agent
// with no dependencies and no topics sends its instruction verbatim as the
// single user message.
func TestInvoke_ZeroDependencyAgentSendsInstructionOnly(t *testing.T) {
	local := echo("ollama")
	rt := &Runtime{Dispatcher: dispatch.New(local, nil)}
	a := New("mule1-bob", "phi4-mini", "very concisely explain the meaning of life")

	history, err := a.Invoke(context.Background(), rt, think, nil).Await(context.Background())
	require.NoError(t, err)

	requests := local.calls()
	require.Len(t, requests, 1)
	require.Len(t, requests[0].Messages, 1)
	msg := requests[0].Messages[0]
	assert.Equal(t, a.Instruction, msg.Content)
	assert.Equal(t, "user", msg.Role.WireRole())
	assert.Equal(t, "phi4-mini", requests[0].Model)

	require.Len(t, history, 2)
	content, ok := history.Response()
	assert.True(t, ok)
	assert.Equal(t, "re: "+a.Instruction, content)
}

// TestInvoke_FanInCompletesAfterAllDependencies verifies that a body only
// runs once every dependency has finished.
func TestInvoke_FanInCompletesAfterAllDependencies(t *testing.T) {
	ctx := context.Background()
	deps := Deps{}
	delays := []time.Duration{30, 5, 20, 0, 10}
	for i, d := range delays {
		name := string(rune('a' + i))
		deps[name] = New(name, "", "q").Invoke(ctx, nil, respond(name, d*time.Millisecond), nil)
	}

	var sawAll atomic.Bool
	body := func(_ context.Context, a *Agent, _ *Runtime, r *Resolved) ai.ChatHistory {
		all := true
		for _, inv := range deps {
			select {
			case <-inv.Done():
			default:
				all = false
			}
		}
		sawAll.Store(all)
		return ai.ChatHistory{ai.NewSystemMessage(strings.Join(r.Names(), ""))}
	}

	history, err := New("sink", "", "").Invoke(ctx, nil, body, deps).Await(ctx)
	require.NoError(t, err)
	assert.True(t, sawAll.Load(), "body ran before every dependency completed")
	assert.Equal(t, "abcde", history.LastContent())
}

// TestInvoke_FailedDependencyMergesAsEmpty verifies that a dependency whose
// dispatch failed contributes "" and does not stop its dependant.
func TestInvoke_FailedDependencyMergesAsEmpty(t *testing.T) {
	ctx := context.Background()
	local := &scriptedProvider{name: "ollama", reply: func(trigger string) (string, error) {
		if trigger == "fail" {
			return "", errors.New("connection refused")
		}
		return "ok:" + trigger, nil
	}}
	rt := &Runtime{Dispatcher: dispatch.New(local, nil)}

	bad := New("bad", "m", "fail").Invoke(ctx, rt, think, nil)
	good := New("good", "m", "fine").Invoke(ctx, rt, think, nil)

	var merged string
	body := func(ctx context.Context, a *Agent, rt *Runtime, r *Resolved) ai.ChatHistory {
		merged = r.FormatLast(a.Instruction, "bad", "good")
		assert.True(t, r.Failed("bad"))
		assert.False(t, r.Failed("good"))
		assert.Equal(t, 1, r.FailedCount())
		return a.Call(ctx, rt, merged)
	}

	history, err := New("critic", "m", "A:{} B:{}").Invoke(ctx, rt, body, Deps{"bad": bad, "good": good}).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A: B:ok:fine", merged)
	assert.Equal(t, "ok:A: B:ok:fine", history.LastContent())

	failed, err := bad.Await(ctx)
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Len(t, failed, 1, "failed dispatch keeps the trigger only")
}

// TestInvoke_PanickingBodyIsContained verifies that a panic becomes an
// invocation failure.
func TestInvoke_PanickingBodyIsContained(t *testing.T) {
	ctx := context.Background()
	boom := New("boom", "", "").Invoke(ctx, nil, func(context.Context, *Agent, *Runtime, *Resolved) ai.ChatHistory {
		panic("unexpected")
	}, nil)

	_, err := boom.Await(ctx)
	assert.ErrorIs(t, err, ErrPanicked)

	history, err := New("after", "", "").Invoke(ctx, nil, func(_ context.Context, _ *Agent, _ *Runtime, r *Resolved) ai.ChatHistory {
		return ai.ChatHistory{ai.NewSystemMessage("[" + r.LastContent("boom") + "]")}
	}, Deps{"boom": boom}).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "[]", history.LastContent())
}

// TestResolved_Ordering verifies key-ordered access and concatenation.
func TestResolved_Ordering(t *testing.T) {
	ctx := context.Background()
	deps := Deps{
		"prior2":  New("t3", "", "three").Invoke(ctx, nil, respond("3", 0), nil),
		"prior1":  New("t2", "", "two").Invoke(ctx, nil, respond("2", 10*time.Millisecond), nil),
		"missing": nil,
	}

	r, err := resolve(ctx, deps)
	require.NoError(t, err)
	assert.Equal(t, []string{"missing", "prior1", "prior2"}, r.Names())
	assert.True(t, r.Failed("missing"))
	assert.Equal(t, "", r.LastContent("missing"))
	assert.Equal(t, "", r.LastContent("unknown"))

	concat := r.ConcatHistories()
	require.Len(t, concat, 4)
	assert.Equal(t, "two", concat[0].Content)
	assert.Equal(t, "3", concat[3].Content)

	assert.Equal(t, "2 then 3 then {}", r.FormatLast("{} then {} then {}", "prior1", "prior2"))
	assert.Equal(t, " 2 3", r.FormatLast("{} {} {}"))
}

// TestInvoke_Timeout verifies that an invocation timeout abandons a slow
// fan-in.
func TestInvoke_Timeout(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	defer close(release)

	slow := New("slow", "", "").Invoke(ctx, nil, func(context.Context, *Agent, *Runtime, *Resolved) ai.ChatHistory {
		<-release
		return nil
	}, nil)

	inv := New("waiter", "", "").Invoke(ctx, nil, respond("never", 0), Deps{"slow": slow},
		WithInvocationTimeout(20*time.Millisecond))

	_, err := inv.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestInvocation_AwaitHonoursContext verifies that Await returns when its
// own context ends.
func TestInvocation_AwaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	inv := New("slow", "", "").Invoke(context.Background(), nil, func(context.Context, *Agent, *Runtime, *Resolved) ai.ChatHistory {
		<-release
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := inv.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestGatherAndNotes verifies originating order and note filtering.
func TestGatherAndNotes(t *testing.T) {
	ctx := context.Background()
	local := &scriptedProvider{name: "ollama", reply: func(trigger string) (string, error) {
		switch trigger {
		case "fail":
			return "", errors.New("boom")
		case "blank":
			return "", nil
		}
		return strings.ToUpper(trigger), nil
	}}
	rt := &Runtime{Dispatcher: dispatch.New(local, nil)}

	var invocations []*Invocation
	for _, instruction := range []string{"first", "fail", "blank", "last"} {
		invocations = append(invocations, New("minimule", "m", instruction).Invoke(ctx, rt, think, nil))
	}

	histories, err := Gather(ctx, invocations...)
	require.NoError(t, err)
	require.Len(t, histories, 4)
	assert.Equal(t, "first", histories[0][0].Content)
	assert.Equal(t, "last", histories[3][0].Content)
	assert.Equal(t, "FIRST\n\nLAST", Notes(histories, "\n\n"))
}

// TestGather_NilInvocation keeps the slot of a branch that was never
// started and still collects the others.
func TestGather_NilInvocation(t *testing.T) {
	ctx := context.Background()
	rt := &Runtime{Dispatcher: dispatch.New(echo("ollama"), nil)}

	started := New("minimule", "m", "hi").Invoke(ctx, rt, think, nil)
	histories, err := Gather(ctx, nil, started, nil)
	require.NoError(t, err)
	require.Len(t, histories, 3)
	assert.Nil(t, histories[0])
	assert.Nil(t, histories[2])
	assert.Equal(t, "re: hi", histories[1].LastContent())
	assert.Equal(t, "re: hi", Notes(histories, "\n"))
}

// TestInvoke_SelectionFromContext verifies that a selection set before the
// invocation routes its dispatch, and that a completed history is not
// affected by later switches.
func TestInvoke_SelectionFromContext(t *testing.T) {
	local, remote := echo("ollama"), echo("openrouter")
	rt := &Runtime{Dispatcher: dispatch.New(local, remote)}
	a := New("mule", "m", "hi")

	first, err := a.Invoke(context.Background(), rt, think, nil).Await(context.Background())
	require.NoError(t, err)

	remoteCtx := dispatch.WithSelection(context.Background(), dispatch.Remote)
	_, err = a.Invoke(remoteCtx, rt, think, nil).Await(remoteCtx)
	require.NoError(t, err)

	assert.Len(t, local.calls(), 1)
	assert.Len(t, remote.calls(), 1)
	assert.Len(t, first, 2)
	assert.Equal(t, "re: hi", first.LastContent())
}

type recordingSearcher struct {
	mu    sync.Mutex
	query string
	limit int
}

func (s *recordingSearcher) Search(_ context.Context, query string, limit int) ([]search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query, s.limit = query, limit
	return nil, nil
}

type noFetch struct{}

func (noFetch) Get(context.Context, string) fetch.Response { return fetch.Response{} }

// TestAgent_Ground verifies the topic guard and the default result count.
func TestAgent_Ground(t *testing.T) {
	searcher := &recordingSearcher{}
	rt := &Runtime{Grounding: grounding.New(searcher, noFetch{})}

	assert.Nil(t, New("a", "", "").Ground(context.Background(), rt))
	assert.Equal(t, "", searcher.query)

	docs := New("a", "", "").WithTopics("flutter tts", 0).Ground(context.Background(), rt)
	assert.Empty(t, docs)
	assert.Equal(t, "flutter tts", searcher.query)
	assert.Equal(t, 2*DefaultSearchResultCount, searcher.limit)
}

// TestAgent_CallWithoutDispatcher verifies the degraded path.
func TestAgent_CallWithoutDispatcher(t *testing.T) {
	history := New("a", "", "").Call(context.Background(), nil, "hello")
	require.Len(t, history, 1)
	_, ok := history.Response()
	assert.False(t, ok)
}

var verdictSchema = json.RawMessage(`{"type":"object","properties":{"result":{"type":"number"}},"required":["result"]}`)

type verdict struct {
	Result float64 `json:"result"`
}

// TestParseOutput covers valid, fenced, repaired and rejected responses.
func TestParseOutput(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		want    float64
		wantErr error
	}{
		{"valid", `{"result": 1}`, 1, nil},
		{"fenced", "```json\n{\"result\": 0}\n```", 0, nil},
		{"repaired", `{result: 1`, 1, nil},
		{"wrong type", `{"result": "yes"}`, 0, ErrSchemaViolation},
		{"missing field", `{"verdict": 1}`, 0, ErrSchemaViolation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			history := ai.ChatHistory{ai.NewUserMessage("q"), ai.NewSystemMessage(tc.content)}
			got, err := ParseOutput[verdict](history, verdictSchema)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Result)
		})
	}

	_, err := ParseOutput[verdict](ai.ChatHistory{ai.NewUserMessage("q")}, verdictSchema)
	assert.ErrorIs(t, err, ErrNoResponse)
}

// TestAgent_OutputSchemaIsSentAsFormat verifies that structured agents
// request their schema from the provider.
func TestAgent_OutputSchemaIsSentAsFormat(t *testing.T) {
	local := &scriptedProvider{name: "ollama", reply: func(string) (string, error) { return `{"result": 0}`, nil }}
	rt := &Runtime{Dispatcher: dispatch.New(local, nil)}
	a := New("guard", "m", "classify").WithOutputSchema(verdictSchema)

	history := a.Call(context.Background(), rt, "hello")
	out, err := a.ParseOutput(history)
	require.NoError(t, err)
	assert.Equal(t, float64(0), out["result"])

	requests := local.calls()
	require.Len(t, requests, 1)
	assert.JSONEq(t, string(verdictSchema), string(requests[0].Format))
}
