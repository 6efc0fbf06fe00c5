package security

import (
	"fmt"
	"net"
	"testing"
	"time"
)

func TestRateLimiter_Allow_NormalLoad(t *testing.T) {
	rl := NewRateLimiter(100, 60*time.Second, 10000)
	sourceIP := "192.168.1.50"

	for i := 0; i < 50; i++ {
		if !rl.Allow(sourceIP) {
			t.Errorf("query %d was blocked but should be allowed (under 100 qps threshold)", i+1)
		}
	}

	state, exists := rl.cache.Peek(sourceIP)
	if !exists {
		t.Fatal("expected entry to exist for source IP")
	}
	if !state.penaltyUntil.IsZero() {
		t.Errorf("expected no cooldown, but penaltyUntil is set to %v", state.penaltyUntil)
	}
}

func TestRateLimiter_Allow_ExceedsThreshold(t *testing.T) {
	rl := NewRateLimiter(100, 60*time.Second, 10000)
	sourceIP := "192.168.1.100"

	allowedCount, blockedCount := 0, 0
	for i := 0; i < 150; i++ {
		if rl.Allow(sourceIP) {
			allowedCount++
		} else {
			blockedCount++
		}
	}

	if allowedCount > 100 {
		t.Errorf("expected at most 100 queries allowed, got %d", allowedCount)
	}
	if blockedCount == 0 {
		t.Error("expected some queries to be blocked, but all were allowed")
	}

	state, exists := rl.cache.Peek(sourceIP)
	if !exists {
		t.Fatal("expected entry to exist for source IP")
	}
	if state.penaltyUntil.IsZero() {
		t.Error("expected cooldown to be triggered, but penaltyUntil is zero")
	}
	if state.penaltyUntil.Before(time.Now()) {
		t.Error("expected cooldown to be in the future")
	}
}

func TestRateLimiter_Cooldown(t *testing.T) {
	rl := NewRateLimiter(10, 500*time.Millisecond, 10000)
	sourceIP := "192.168.1.150"

	for i := 0; i < 20; i++ {
		rl.Allow(sourceIP)
	}

	for i := 0; i < 5; i++ {
		if rl.Allow(sourceIP) {
			t.Errorf("query %d was allowed but should be blocked during cooldown", i+1)
		}
	}

	time.Sleep(600 * time.Millisecond)

	if !rl.Allow(sourceIP) {
		t.Error("query was blocked after cooldown expired, but should be allowed")
	}

	state, exists := rl.cache.Peek(sourceIP)
	if !exists {
		t.Fatal("expected entry to exist for source IP")
	}
	if !state.penaltyUntil.IsZero() && state.penaltyUntil.After(time.Now()) {
		t.Errorf("expected cooldown to be expired, but penaltyUntil is %v", state.penaltyUntil)
	}
}

func TestRateLimiter_BoundedMap(t *testing.T) {
	rl := NewRateLimiter(100, 60*time.Second, 100)

	for i := 0; i < 150; i++ {
		rl.Allow(fmt.Sprintf("192.168.1.%d", i))
	}

	if mapSize := rl.cache.Len(); mapSize > 100 {
		t.Errorf("expected map size <= 100, got %d", mapSize)
	}

	newestIP := "10.0.0.1"
	rl.Allow(newestIP)

	if _, exists := rl.cache.Peek(newestIP); !exists {
		t.Error("expected newest entry to exist after eviction")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(100, 60*time.Second, 10000)

	staleIP1, staleIP2, activeIP := "192.168.1.1", "192.168.1.2", "192.168.1.3"

	rl.Allow(staleIP1)
	rl.Allow(staleIP2)

	if state, exists := rl.cache.Peek(staleIP1); exists {
		state.lastSeen = time.Now().Add(-2 * time.Minute)
	}
	if state, exists := rl.cache.Peek(staleIP2); exists {
		state.lastSeen = time.Now().Add(-2 * time.Minute)
	}

	rl.Allow(activeIP)

	if initialSize := rl.cache.Len(); initialSize != 3 {
		t.Fatalf("expected 3 entries before cleanup, got %d", initialSize)
	}

	rl.Cleanup()

	afterSize := rl.cache.Len()
	_, staleExists1 := rl.cache.Peek(staleIP1)
	_, staleExists2 := rl.cache.Peek(staleIP2)
	_, activeExists := rl.cache.Peek(activeIP)

	if staleExists1 {
		t.Error("expected stale entry 1 to be removed, but it still exists")
	}
	if staleExists2 {
		t.Error("expected stale entry 2 to be removed, but it still exists")
	}
	if !activeExists {
		t.Error("expected active entry to be retained, but it was removed")
	}
	if afterSize != 1 {
		t.Errorf("expected map size=1 after cleanup, got %d", afterSize)
	}
}

func TestIsPrivate(t *testing.T) {
	tests := []struct {
		name string
		ip   string
		want bool
	}{
		{"10.x private", "10.0.0.1", true},
		{"172.16-31 private", "172.16.0.1", true},
		{"192.168 private", "192.168.1.1", true},
		{"public IP", "8.8.8.8", false},
		{"link-local", "169.254.1.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPrivate(net.ParseIP(tt.ip)); got != tt.want {
				t.Errorf("isPrivate(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestClientFilter_IsAllowed_NoAllowlistAllowsEverything(t *testing.T) {
	f := NewClientFilter(nil)

	for _, ip := range []string{"8.8.8.8", "192.168.1.1", "10.0.0.1"} {
		if !f.IsAllowed(net.ParseIP(ip)) {
			t.Errorf("IsAllowed(%s) = false, want true with an empty allowlist", ip)
		}
	}
}

func TestClientFilter_IsAllowed_RestrictsToConfiguredSubnets(t *testing.T) {
	f := NewClientFilter([]string{"192.168.1.0/24", "10.0.1.0/24"})

	allowed := []string{"192.168.1.1", "192.168.1.254", "10.0.1.50"}
	for _, ip := range allowed {
		if !f.IsAllowed(net.ParseIP(ip)) {
			t.Errorf("IsAllowed(%s) = false, want true (in allowlist)", ip)
		}
	}

	rejected := []string{"192.168.2.50", "8.8.8.8", "10.0.2.1"}
	for _, ip := range rejected {
		if f.IsAllowed(net.ParseIP(ip)) {
			t.Errorf("IsAllowed(%s) = true, want false (not in allowlist)", ip)
		}
	}
}

func TestClientFilter_IsAllowed_SkipsMalformedCIDR(t *testing.T) {
	f := NewClientFilter([]string{"not-a-cidr", "192.168.1.0/24"})

	if !f.IsAllowed(net.ParseIP("192.168.1.1")) {
		t.Error("IsAllowed(192.168.1.1) = false, want true: the valid CIDR must still apply")
	}
	if f.IsAllowed(net.ParseIP("8.8.8.8")) {
		t.Error("IsAllowed(8.8.8.8) = true, want false: malformed CIDR must not grant open access")
	}
}
