package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/visionflow/agent/chatctx"
	"github.com/BaSui01/visionflow/agent/session"
	"github.com/BaSui01/visionflow/testutil"
	"github.com/BaSui01/visionflow/testutil/mocks"
	"github.com/BaSui01/visionflow/types"
)

func newSession(t *testing.T, cfg session.Config, gen *mocks.MockGenerator, opts ...session.Option) (*session.AgentSession, *mocks.RecordingSink) {
	t.Helper()
	sink := mocks.NewRecordingSink()
	s := session.NewAgentSession(cfg, gen, sink, nil, opts...)
	t.Cleanup(s.Close)
	return s, sink
}

func TestGenerateReply_CommitsAndDelivers(t *testing.T) {
	gen := mocks.NewMockGenerator().WithResponse("Hello student!")
	s, sink := newSession(t, session.Config{Instructions: "be helpful"}, gen)

	reply, err := s.GenerateReply(testutil.TestContext(t), session.ReplyOptions{Instructions: "You are a tutor."})
	require.NoError(t, err)
	assert.Equal(t, "Hello student!", reply.Text)
	assert.Equal(t, s.ID(), reply.SessionID)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "be helpful", calls[0].Instructions)
	assert.Equal(t, "You are a tutor.", calls[0].TurnInstruction)

	msgs := s.ChatCtx().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, types.RoleAssistant, msgs[0].Role)
	assert.Equal(t, "Hello student!", msgs[0].Text())

	require.Equal(t, 1, sink.Len())
	assert.Equal(t, "Hello student!", sink.Replies()[0].Text)
}

func TestGenerateReply_GeneratorError(t *testing.T) {
	gen := mocks.NewMockGenerator().WithError(errors.New("upstream down"))
	s, sink := newSession(t, session.Config{}, gen)

	_, err := s.GenerateReply(testutil.TestContext(t), session.ReplyOptions{})
	require.Error(t, err)
	assert.Zero(t, s.ChatCtx().Len())
	assert.Zero(t, sink.Len())
}

func TestGenerateReply_EmptyText(t *testing.T) {
	gen := mocks.NewMockGenerator().WithResponse("   ")
	s, _ := newSession(t, session.Config{}, gen)

	_, err := s.GenerateReply(testutil.TestContext(t), session.ReplyOptions{})
	assert.True(t, types.IsErrorCode(err, types.ErrEmptyModelOutput))
}

func TestGenerateReply_NoGenerator(t *testing.T) {
	s := session.NewAgentSession(session.Config{}, nil, nil, nil)
	defer s.Close()
	_, err := s.GenerateReply(context.Background(), session.ReplyOptions{})
	assert.True(t, types.IsErrorCode(err, types.ErrProviderNotSet))
}

func TestMutateChatCtx_AllOrNothing(t *testing.T) {
	s, _ := newSession(t, session.Config{}, mocks.NewMockGenerator())
	ctx := testutil.TestContext(t)

	_, err := s.MutateChatCtx(ctx, func(c *chatctx.ChatContext) error {
		c.AddMessage(types.RoleUser, types.TextPart("half"))
		return errors.New("encode failed")
	})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrContextUpdate))
	assert.Zero(t, s.ChatCtx().Len())
	assert.Zero(t, s.Version())
}

func TestUpdateChatCtx_ReplacesAndSnapshots(t *testing.T) {
	store := mocks.NewMemorySnapshotStore()
	s, _ := newSession(t, session.Config{}, mocks.NewMockGenerator(), session.WithSnapshotStore(store), session.WithID("s-1"))
	ctx := testutil.TestContext(t)

	next := s.ChatCtx()
	next.AddMessage(types.RoleUser, types.TextPart("hi"))
	require.NoError(t, s.UpdateChatCtx(ctx, next))

	assert.Equal(t, "s-1", s.ID())
	assert.Equal(t, 1, s.ChatCtx().Len())
	saved, err := store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Len())
}

func TestSnapshotFailureDoesNotFailUpdate(t *testing.T) {
	store := mocks.NewMemorySnapshotStore().WithError(errors.New("redis down"))
	s, _ := newSession(t, session.Config{}, mocks.NewMockGenerator(), session.WithSnapshotStore(store))

	_, err := s.MutateChatCtx(testutil.TestContext(t), func(c *chatctx.ChatContext) error {
		c.AddMessage(types.RoleUser, types.TextPart("hi"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Saves())
}

func TestHandleUserInput_CommitsAndNotifies(t *testing.T) {
	gen := mocks.NewMockGenerator()
	s, _ := newSession(t, session.Config{}, gen)

	var got []session.UserInputEvent
	s.OnUserInput(func(ev session.UserInputEvent) { got = append(got, ev) })

	ctx := testutil.TestContext(t)
	s.HandleUserInput(ctx, session.UserInputEvent{Text: "partial", IsFinal: false})
	s.HandleUserInput(ctx, session.UserInputEvent{Participant: "alice", Text: "what is this?", IsFinal: true})

	require.Len(t, got, 1)
	assert.Equal(t, "what is this?", got[0].Text)
	assert.False(t, got[0].Timestamp.IsZero())

	msgs := s.ChatCtx().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.Zero(t, gen.CallCount())
}

func TestHandleUserInput_AutoReply(t *testing.T) {
	gen := mocks.NewMockGenerator().WithResponse("It is a cat.")
	s, sink := newSession(t, session.Config{AutoReply: true}, gen)

	s.HandleUserInput(testutil.TestContext(t), session.UserInputEvent{Text: "what is this?", IsFinal: true})

	testutil.AssertEventuallyTrue(t, func() bool { return sink.Len() == 1 }, 2*time.Second)
	msgs := s.ChatCtx().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.Equal(t, types.RoleAssistant, msgs[1].Role)
	assert.Equal(t, session.ReplyTurn, sink.Replies()[0].Kind)
}

func TestClose_RejectsWorkAndWaits(t *testing.T) {
	gen := mocks.NewMockGenerator().WithDelay(50 * time.Millisecond)
	s := session.NewAgentSession(session.Config{AutoReply: true}, gen, mocks.NewRecordingSink(), nil)

	s.HandleUserInput(context.Background(), session.UserInputEvent{Text: "hello", IsFinal: true})
	s.Close()
	s.Close()

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}

	_, err := s.GenerateReply(context.Background(), session.ReplyOptions{})
	assert.True(t, types.IsErrorCode(err, types.ErrSessionClosed))
	assert.True(t, types.IsErrorCode(s.UpdateChatCtx(context.Background(), chatctx.New()), types.ErrSessionClosed))
}

func TestConcurrentMutations_NoLostUpdates(t *testing.T) {
	s, _ := newSession(t, session.Config{}, mocks.NewMockGenerator())
	ctx := testutil.TestContext(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.MutateChatCtx(ctx, func(c *chatctx.ChatContext) error {
				c.AddMessage(types.RoleUser, types.TextPart("x"))
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, n, s.ChatCtx().Len())
}

type recordingAgent struct{ entered bool }

func (a *recordingAgent) OnEnter(ctx context.Context, job *session.JobContext) error {
	a.entered = job.Room.Name() == "lobby"
	return nil
}

func TestStart(t *testing.T) {
	s, _ := newSession(t, session.Config{}, mocks.NewMockGenerator())
	agent := &recordingAgent{}

	err := session.Start(context.Background(), &session.JobContext{Room: mocks.NewFakeRoom("lobby"), Session: s}, agent)
	require.NoError(t, err)
	assert.True(t, agent.entered)
}
