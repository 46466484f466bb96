package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/classforge/classforge-api/internal/dto"
)

func resultEventFor(userID uint) dto.ResultEvent {
	return dto.ResultEvent{
		Event:        dto.ResultEventName,
		UserID:       userID,
		SubmissionID: 5,
		Language:     "python",
		Summary: dto.EvaluationSummary{
			SubmissionID:        5,
			Language:            "python",
			OverallStatus:       OverallStatusFinished,
			CompilationSuccess:  true,
			PointsObtained:      30,
			TotalPossiblePoints: 100,
		},
	}
}

func TestRealtimeServiceDeliversToSubscribedUser(t *testing.T) {
	svc := NewRealtimeService(nil, "", nil, zerolog.Nop())

	events, cleanup := svc.Subscribe(10)
	defer cleanup()

	svc.NotifyResult(context.Background(), resultEventFor(10))

	select {
	case event := <-events:
		require.Equal(t, uint(5), event.SubmissionID)
		require.Equal(t, "python", event.Language)
		require.Equal(t, dto.ResultEventName, event.Event)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the result")
	}
}

func TestRealtimeServiceDropsWhenNobodyListens(t *testing.T) {
	svc := NewRealtimeService(nil, "", nil, zerolog.Nop())

	// Nobody subscribed for user 99. Must not block or panic.
	done := make(chan struct{})
	go func() {
		svc.NotifyResult(context.Background(), resultEventFor(99))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifyResult blocked with no subscribers")
	}
}

func TestRealtimeServiceIsolatesUsers(t *testing.T) {
	svc := NewRealtimeService(nil, "", nil, zerolog.Nop())

	mine, cleanupMine := svc.Subscribe(10)
	defer cleanupMine()
	theirs, cleanupTheirs := svc.Subscribe(20)
	defer cleanupTheirs()

	svc.NotifyResult(context.Background(), resultEventFor(10))

	select {
	case <-mine:
	case <-time.After(time.Second):
		t.Fatal("target user missed the result")
	}

	select {
	case event := <-theirs:
		t.Fatalf("user 20 received a result for user 10: %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRealtimeServiceDropsWhenSubscriberBufferFull(t *testing.T) {
	svc := NewRealtimeService(nil, "", nil, zerolog.Nop())

	_, cleanup := svc.Subscribe(10)
	defer cleanup()

	// Overflow the buffer without draining. Delivery stays non-blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < resultBufferSize*3; i++ {
			svc.NotifyResult(context.Background(), resultEventFor(10))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("NotifyResult blocked on a full subscriber buffer")
	}
}

func TestRealtimeServiceFansOutAcrossNodes(t *testing.T) {
	server := miniredis.RunT(t)

	clientA := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer clientA.Close()
	clientB := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer clientB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA := NewRealtimeService(clientA, "classforge", nil, zerolog.Nop())
	nodeB := NewRealtimeService(clientB, "classforge", nil, zerolog.Nop())
	nodeA.Start(ctx)
	nodeB.Start(ctx)

	events, cleanup := nodeB.Subscribe(10)
	defer cleanup()

	// The subscription on node B needs a moment to attach to the channel.
	require.Eventually(t, func() bool {
		nodeA.NotifyResult(ctx, resultEventFor(10))
		select {
		case event := <-events:
			return event.SubmissionID == 5
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRealtimeServiceIgnoresItsOwnFanoutEcho(t *testing.T) {
	server := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := NewRealtimeService(client, "classforge", nil, zerolog.Nop())
	svc.Start(ctx)

	events, cleanup := svc.Subscribe(10)
	defer cleanup()

	svc.NotifyResult(ctx, resultEventFor(10))

	// Exactly one local delivery; the echoed envelope is skipped.
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("local delivery missing")
	}

	select {
	case event := <-events:
		t.Fatalf("echoed fanout event was delivered twice: %+v", event)
	case <-time.After(300 * time.Millisecond):
	}
}
