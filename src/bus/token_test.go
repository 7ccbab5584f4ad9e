package bus

import "testing"

func TestAccessTokenDoubleRelease(t *testing.T) {
	near, _ := NewLoopback()
	token := newAccessToken(near)

	if err := token.Release(); err != nil {
		t.Fatal(err)
	}
	if err := token.Release(); err != ErrTokenReleased {
		t.Fatalf("expected ErrTokenReleased, got %v", err)
	}

	select {
	case <-token.Released():
	default:
		t.Fatal("Released channel not closed")
	}
}

func TestSyncTokenAgreement(t *testing.T) {
	tok := NewSyncToken(2)

	tok.Push("duration", 1.5)
	if tok.Ready("duration") {
		t.Fatal("ready with one of two pushes")
	}

	tok.Push("duration", 2.5)
	if !tok.Ready("duration") {
		t.Fatal("not ready after both pushes")
	}

	max, ok := tok.Max("duration")
	if !ok || max != 2.5 {
		t.Fatalf("max is %v, expected 2.5", max)
	}

	if _, ok := tok.Max("speed"); ok {
		t.Fatal("max of an unpushed parameter should not resolve")
	}
}
