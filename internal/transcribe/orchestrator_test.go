package transcribe

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fmueller/voxserve/internal/whisper"
	"github.com/stretchr/testify/require"
)

type fakeStrategy struct {
	name  Name
	run   func(ctx context.Context, req Request) (any, error)
	calls atomic.Int32
}

func (f *fakeStrategy) Name() Name { return f.name }

func (f *fakeStrategy) Run(ctx context.Context, req Request) (any, error) {
	f.calls.Add(1)
	return f.run(ctx, req)
}

func failing(name Name, err error) *fakeStrategy {
	return &fakeStrategy{name: name, run: func(context.Context, Request) (any, error) { return nil, err }}
}

func returning(name Name, out any) *fakeStrategy {
	return &fakeStrategy{name: name, run: func(context.Context, Request) (any, error) { return out, nil }}
}

func TestTranscribeFallsBackInOrder(t *testing.T) {
	t.Parallel()

	direct := failing(NameDirect, errors.New("direct fault"))
	simple := returning(NameSimple, "from simple")
	managed := returning(NameManaged, "from managed")

	var observed []Attempt
	o := New(Options{
		Strategies: []Strategy{direct, simple, managed},
		Observer:   func(a Attempt) { observed = append(observed, a) },
	})

	result, err := o.Transcribe(context.Background(), Request{AudioPath: "clip.wav"})
	require.NoError(t, err)
	require.Equal(t, "from simple", result.Text)
	require.Equal(t, NameSimple, result.Strategy)
	require.Len(t, result.Attempts, 2)
	require.Equal(t, StatusFailure, result.Attempts[0].Status)
	require.Equal(t, "direct fault", result.Attempts[0].Err.Message)
	require.EqualValues(t, 0, managed.calls.Load())
	require.Len(t, observed, 2)
}

func TestTranscribeExhaustedIncludesLastError(t *testing.T) {
	t.Parallel()

	first := errors.New("direct fault")
	o := New(Options{Strategies: []Strategy{
		failing(NameDirect, first),
		failing(NameSimple, errors.New("simple fault")),
		failing(NameManaged, errors.New("managed exploded")),
	}})

	_, err := o.Transcribe(context.Background(), Request{AudioPath: "clip.wav"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "managed exploded")
	require.ErrorIs(t, err, first)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	require.Len(t, exhausted.Attempts, 3)
	require.Equal(t, NameManaged, exhausted.Last().Strategy)
}

func TestTranscribeKeepsStrategyErrors(t *testing.T) {
	t.Parallel()

	se := &StrategyError{Strategy: NameDirect, Message: "exit 1", CommandLog: &CommandLog{Command: "whisper-cli", ExitCode: 1}}
	o := New(Options{Strategies: []Strategy{failing(NameDirect, se)}})

	_, err := o.Transcribe(context.Background(), Request{})
	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	require.Same(t, se, exhausted.Last())
}

func TestTranscribeStructuredOutput(t *testing.T) {
	t.Parallel()

	transcript := whisper.Transcript{
		Text:     "hello world",
		Language: "en",
		Segments: []whisper.Segment{{Start: 0, End: 1000, Text: "hello world"}},
	}
	o := New(Options{Strategies: []Strategy{returning(NameManaged, transcript)}})

	result, err := o.Transcribe(context.Background(), Request{})
	require.NoError(t, err)
	require.Equal(t, "hello world", result.Text)
	require.Equal(t, transcript.Segments, result.Segments)
}

func TestTranscribeAttemptTimeoutMovesOn(t *testing.T) {
	t.Parallel()

	hung := &fakeStrategy{name: NameDirect, run: func(ctx context.Context, _ Request) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	o := New(Options{
		Strategies:     []Strategy{hung, returning(NameSimple, "recovered")},
		AttemptTimeout: 20 * time.Millisecond,
	})

	result, err := o.Transcribe(context.Background(), Request{})
	require.NoError(t, err)
	require.Equal(t, "recovered", result.Text)
	require.ErrorIs(t, result.Attempts[0].Err, context.DeadlineExceeded)
	require.Contains(t, result.Attempts[0].Err.Message, "timed out")
}

func TestTranscribeCallerCancelStopsChain(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := &fakeStrategy{name: NameDirect, run: func(context.Context, Request) (any, error) {
		cancel()
		return nil, errors.New("interrupted")
	}}
	second := returning(NameSimple, "unreachable")

	_, err := New(Options{Strategies: []Strategy{first, second}}).Transcribe(ctx, Request{})
	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 0, second.calls.Load())
}

func TestTranscribeWithoutStrategies(t *testing.T) {
	t.Parallel()

	_, err := New(Options{}).Transcribe(context.Background(), Request{})
	require.ErrorIs(t, err, ErrNoStrategy)
}

func TestDirectFaultFallsBackToSimpleEngine(t *testing.T) {
	t.Parallel()

	res, audioPath := fixture(t, `case "$args" in
  *-otxt*) echo "direct mode unsupported" >&2; exit 1 ;;
esac
echo "simple engine text"`)

	o := New(Options{Strategies: []Strategy{
		NewDirect(res, nil),
		NewSimple(res, startedPool(t, 1, 1), nil),
	}})

	result, err := o.Transcribe(context.Background(), Request{AudioPath: audioPath})
	require.NoError(t, err)
	require.Equal(t, NameSimple, result.Strategy)
	require.Equal(t, "simple engine text", result.Text)
	require.Equal(t, "direct mode unsupported", result.Attempts[0].Err.Message)
}
