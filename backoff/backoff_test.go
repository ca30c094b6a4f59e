package backoff

import (
	"testing"
	"time"
)

func TestStrategy_BaseDuration(t *testing.T) {
	tests := []struct {
		name             string
		baseDelay        time.Duration
		maxDelay         time.Duration
		attempts         uint64
		expectedDuration time.Duration
	}{
		{
			name:             "first-attempt-uses-base-delay",
			baseDelay:        time.Second,
			maxDelay:         30 * time.Second,
			attempts:         0,
			expectedDuration: time.Second,
		},
		{
			name:             "second-attempt-doubles",
			baseDelay:        time.Second,
			maxDelay:         30 * time.Second,
			attempts:         1,
			expectedDuration: 2 * time.Second,
		},
		{
			name:             "third-attempt-doubles-again",
			baseDelay:        time.Second,
			maxDelay:         30 * time.Second,
			attempts:         2,
			expectedDuration: 4 * time.Second,
		},
		{
			name:             "fourth-attempt",
			baseDelay:        time.Second,
			maxDelay:         30 * time.Second,
			attempts:         3,
			expectedDuration: 8 * time.Second,
		},
		{
			name:             "fifth-attempt-hits-the-cap",
			baseDelay:        time.Second,
			maxDelay:         30 * time.Second,
			attempts:         5,
			expectedDuration: 30 * time.Second,
		},
		{
			name:             "attempt-count-far-past-the-cap",
			baseDelay:        time.Second,
			maxDelay:         30 * time.Second,
			attempts:         64,
			expectedDuration: 30 * time.Second,
		},
		{
			name:             "larger-base-delay",
			baseDelay:        500 * time.Millisecond,
			maxDelay:         5 * time.Second,
			attempts:         3,
			expectedDuration: 4 * time.Second,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStrategy(tc.baseDelay, tc.maxDelay)

			got := s.BaseDuration(tc.attempts)

			if got != tc.expectedDuration {
				t.Errorf("Want duration '%v' for attempts '%d', got '%v'", tc.expectedDuration, tc.attempts, got)
			}
		})
	}
}

func TestStrategy_NextDurationAppliesJitter(t *testing.T) {
	s := NewStrategyWithJitter(time.Second, 30*time.Second, func(d time.Duration) time.Duration {
		return d / 20
	})

	got := s.NextDuration(2)
	want := 4*time.Second + 200*time.Millisecond

	if got != want {
		t.Errorf("Want duration '%v', got '%v'", want, got)
	}
}

func TestStrategy_DefaultJitterBounds(t *testing.T) {
	s := NewStrategy(time.Second, 30*time.Second)

	for i := 0; i < 1000; i++ {
		got := s.NextDuration(3)
		base := 8 * time.Second

		if got < base || got >= base+base/10 {
			t.Fatalf("jitter out of bounds: got '%v' for base '%v'", got, base)
		}
	}
}

func TestNewStrategy_ZeroValuesFallBackToDefaults(t *testing.T) {
	s := NewStrategy(0, 0)

	if got := s.BaseDuration(0); got != time.Second {
		t.Errorf("Want default base delay of 1s, got '%v'", got)
	}

	if got := s.BaseDuration(10); got != 30*time.Second {
		t.Errorf("Want default max delay of 30s, got '%v'", got)
	}
}
