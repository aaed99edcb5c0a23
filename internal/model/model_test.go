package model

import (
	"testing"
	"time"
)

func TestCadenceKey(t *testing.T) {
	// 2026-01-01 is a Thursday in ISO week 1 of 2026.
	k := CadenceKey(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	if k != "2026-W01" {
		t.Fatalf("cadence key = %q, want 2026-W01", k)
	}
	// 2024-12-30 is a Monday belonging to ISO week 1 of 2025.
	k = CadenceKey(time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC))
	if k != "2025-W01" {
		t.Fatalf("cadence key = %q, want 2025-W01", k)
	}
}

func TestStaleForCadence(t *testing.T) {
	w1 := "2026-W01"
	item := CachedItem{CadenceKey: &w1}
	if item.StaleForCadence("2026-W01") {
		t.Fatal("matching cadence should not be stale")
	}
	if !item.StaleForCadence("2026-W02") {
		t.Fatal("rolled-over cadence should be stale")
	}
	if (CachedItem{}).StaleForCadence("2026-W02") {
		t.Fatal("non-cadence item should never be cadence-stale")
	}
}

func TestMembershipOwnedAndActive(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	active := MembershipEntry{ItemID: "a", Status: MembershipActive, ExpiresAt: future}
	if !active.Owned(now) || !active.Active(now) {
		t.Fatal("active unexpired entry should be owned and active")
	}

	expired := MembershipEntry{ItemID: "b", Status: MembershipActive, ExpiresAt: past}
	if expired.Owned(now) {
		t.Fatal("expired non-trial entry should not be owned")
	}

	cancelled := MembershipEntry{ItemID: "c", Status: MembershipCancelled, ExpiresAt: future}
	if cancelled.Owned(now) {
		t.Fatal("cancelled non-trial entry should not be owned")
	}

	// Expired trials remain visible but do not count as active.
	expiredTrial := MembershipEntry{ItemID: "d", IsTrial: true, Status: MembershipCancelled, TrialExpiresAt: &past}
	if !expiredTrial.Owned(now) {
		t.Fatal("expired trial should remain owned (visible)")
	}
	if expiredTrial.Active(now) {
		t.Fatal("expired trial should not be active")
	}

	liveTrial := MembershipEntry{ItemID: "e", IsTrial: true, TrialExpiresAt: &future}
	if !liveTrial.Active(now) {
		t.Fatal("live trial should be active")
	}
}

func TestMembershipSame(t *testing.T) {
	now := time.Now().UTC()
	later := now.Add(time.Hour)
	a := MembershipEntry{ItemID: "x", Status: MembershipActive, ExpiresAt: now}
	b := a
	if !a.Same(b) {
		t.Fatal("identical entries should compare equal")
	}
	b.ExpiresAt = later
	if a.Same(b) {
		t.Fatal("different expiry should compare unequal")
	}
	b = a
	b.IsTrial = true
	if a.Same(b) {
		t.Fatal("different trial flag should compare unequal")
	}
	b = a
	b.TrialExpiresAt = &later
	if a.Same(b) {
		t.Fatal("different trial expiry should compare unequal")
	}
}

func TestKeyNamespaces(t *testing.T) {
	if ItemKey("o1", "i1") != "item/o1/i1" {
		t.Fatalf("item key = %q", ItemKey("o1", "i1"))
	}
	if OwnerPrefix("o1") != "item/o1/" {
		t.Fatalf("owner prefix = %q", OwnerPrefix("o1"))
	}
	if MembershipKey("o1") != "membership/o1" {
		t.Fatalf("membership key = %q", MembershipKey("o1"))
	}
}

func TestMinimalItemLeavesPayloadEmpty(t *testing.T) {
	now := time.Now().UTC()
	item := NewMinimalItem("i", "o", "v1", now, now.Add(time.Hour), nil)
	if len(item.Payload) != 0 || item.SizeBytes != 0 || item.Compressed {
		t.Fatalf("minimal item should carry no payload bookkeeping: %+v", item)
	}
	if item.LocalVersion != "v1" {
		t.Fatalf("minimal item version = %q", item.LocalVersion)
	}
}
