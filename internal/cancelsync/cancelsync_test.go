package cancelsync

import (
	"context"
	"testing"

	"github.com/web3guy0/polybot/internal/exchange"
	"github.com/web3guy0/polybot/internal/hashcache"
	"github.com/web3guy0/polybot/internal/stats"
)

type fakeGuard struct{}

func (fakeGuard) Ensure(ctx context.Context) bool { return true }

type fakeNotifier struct{ sent []string }

func (f *fakeNotifier) Send(category, text string)           { f.sent = append(f.sent, category) }
func (f *fakeNotifier) SendHighPriority(category, text string) { f.sent = append(f.sent, category) }

type flakyMirrorClient struct {
	exchange.MirrorClient
	failUntilAttempt int
	calls            int
}

func (c *flakyMirrorClient) CancelTrigger(ctx context.Context, orderID string) (bool, bool, error) {
	c.calls++
	if c.calls <= c.failUntilAttempt {
		return false, false, &exchange.VenueError{Code: "internal_error", Message: "try again"}
	}
	return true, false, nil
}

// TestForceCleanupAt10Attempts is spec.md Scenario D.
func TestForceCleanupAt10Attempts(t *testing.T) {
	client := &flakyMirrorClient{failUntilAttempt: 999}
	retries := hashcache.NewCancelRetryCount()
	n := &fakeNotifier{}
	sync := New(client, fakeGuard{}, retries, n, stats.New())

	var last Result
	for i := 0; i < 10; i++ {
		last = sync.Cancel(context.Background(), "src-1", "mir-1")
		if i < 4 && last.Removed {
			t.Fatalf("did not expect removal before attempt threshold, attempt %d", i+1)
		}
	}
	if !last.Removed || !last.ForcedCleanup {
		t.Fatalf("expected forced cleanup at 10th attempt, got %+v", last)
	}
	if len(n.sent) == 0 {
		t.Fatal("expected a notification on forced cleanup")
	}
}

func TestCancelResetsRetryCountOnSuccess(t *testing.T) {
	client := &flakyMirrorClient{failUntilAttempt: 0}
	retries := hashcache.NewCancelRetryCount()
	n := &fakeNotifier{}
	sync := New(client, fakeGuard{}, retries, n, stats.New())

	result := sync.Cancel(context.Background(), "src-1", "mir-1")
	if !result.Removed {
		t.Fatal("expected immediate removal on successful cancel")
	}
	if retries.Count("src-1") != 0 {
		t.Fatalf("expected retry count reset, got %d", retries.Count("src-1"))
	}
}
