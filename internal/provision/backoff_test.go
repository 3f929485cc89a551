// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"testing"
	"time"
)

func withTunables(t *testing.T, base, maxBackoff, jitter time.Duration, maxAttempts int) {
	t.Helper()
	origBase, origMax, origJitter, origAttempts := BaseBackoff, MaxBackoff, DecorrelatedJitter, MaxBackoffAttempts
	BaseBackoff, MaxBackoff, DecorrelatedJitter, MaxBackoffAttempts = base, maxBackoff, jitter, maxAttempts
	t.Cleanup(func() {
		BaseBackoff, MaxBackoff, DecorrelatedJitter, MaxBackoffAttempts = origBase, origMax, origJitter, origAttempts
	})
}

func TestComputeAdaptiveSleepMonotonicUntilCap(t *testing.T) {
	withTunables(t, time.Second, time.Hour, 0, 9)

	prev := time.Duration(0)
	for exp := 0; exp <= 9; exp++ {
		got := computeAdaptiveSleep(exp)
		if got < prev {
			t.Fatalf("sleep decreased at exp=%d: %s < %s", exp, got, prev)
		}
		prev = got
	}
}

func TestComputeAdaptiveSleepCapsAtMaxBackoff(t *testing.T) {
	withTunables(t, time.Hour, 2*time.Second, 0, 9)

	got := computeAdaptiveSleep(9)
	if got != 2*time.Second {
		t.Errorf("computeAdaptiveSleep(9) = %s, want capped at 2s", got)
	}
}

func TestComputeAdaptiveSleepExponentSaturatesAtMaxBackoffAttempts(t *testing.T) {
	withTunables(t, time.Second, time.Hour, 0, 3)

	atCap := computeAdaptiveSleep(3)
	beyondCap := computeAdaptiveSleep(50)
	if atCap != beyondCap {
		t.Errorf("computeAdaptiveSleep(3) = %s, computeAdaptiveSleep(50) = %s, want equal (both clamp to exp=3)", atCap, beyondCap)
	}
}

func TestNextBackoffAttemptsSaturatesAndFloors(t *testing.T) {
	orig := MaxBackoffAttempts
	MaxBackoffAttempts = 3
	defer func() { MaxBackoffAttempts = orig }()

	if got := nextBackoffAttempts(3, true); got != 3 {
		t.Errorf("saturated increment = %d, want 3", got)
	}
	if got := nextBackoffAttempts(0, false); got != 0 {
		t.Errorf("floored decrement = %d, want 0", got)
	}
	if got := nextBackoffAttempts(1, true); got != 2 {
		t.Errorf("increment = %d, want 2", got)
	}
	if got := nextBackoffAttempts(1, false); got != 0 {
		t.Errorf("decrement = %d, want 0", got)
	}
}

func TestInterADSleepWithinBounds(t *testing.T) {
	origMin, origMax := InterADMin, InterADMax
	InterADMin, InterADMax = 2*time.Second, 5*time.Second
	defer func() { InterADMin, InterADMax = origMin, origMax }()

	for i := 0; i < 20; i++ {
		got := interADSleep()
		if got < InterADMin || got > InterADMax {
			t.Fatalf("interADSleep() = %s, want within [%s, %s]", got, InterADMin, InterADMax)
		}
	}
}
