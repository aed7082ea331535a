// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"errors"
	"testing"

	"github.com/robfig/cron/v3"

	"github.com/olegiv/ocms-htmlpage/internal/testutil"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	c := cron.New()
	t.Cleanup(func() { c.Stop() })
	return NewRegistry(c, testutil.TestLoggerSilent())
}

func TestRegister(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Register("b_job", "second", "@every 1h", func() {}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("a_job", "first", "0 2 * * *", func() {}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	jobs := r.List()
	if len(jobs) != 2 {
		t.Fatalf("List() returned %d jobs, want 2", len(jobs))
	}
	if jobs[0].Name != "a_job" || jobs[1].Name != "b_job" {
		t.Errorf("List() not sorted: %q, %q", jobs[0].Name, jobs[1].Name)
	}
	if jobs[0].Schedule != "0 2 * * *" || jobs[0].IsOverridden {
		t.Errorf("unexpected job info: %+v", jobs[0])
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register("job", "", "@every 1h", func() {}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("job", "", "@every 1h", func() {}); err == nil {
		t.Error("duplicate Register() should fail")
	}
}

func TestRegister_InvalidSchedule(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register("job", "", "not a schedule", func() {}); err == nil {
		t.Error("Register() should reject an invalid schedule")
	}
	if len(r.List()) != 0 {
		t.Error("invalid job should not be registered")
	}
}

func TestTriggerNow(t *testing.T) {
	r := newTestRegistry(t)
	ran := 0
	if err := r.Register("job", "", "@every 1h", func() { ran++ }); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := r.TriggerNow("job"); err != nil {
		t.Fatalf("TriggerNow() error = %v", err)
	}
	if ran != 1 {
		t.Errorf("job ran %d times, want 1", ran)
	}

	if err := r.TriggerNow("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("TriggerNow(missing) error = %v, want ErrJobNotFound", err)
	}
}

func TestUpdateAndResetSchedule(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register("job", "", "@every 1h", func() {}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := r.UpdateSchedule("job", "*/5 * * * *"); err != nil {
		t.Fatalf("UpdateSchedule() error = %v", err)
	}
	info := r.List()[0]
	if info.Schedule != "*/5 * * * *" || !info.IsOverridden {
		t.Errorf("after update: %+v", info)
	}

	if err := r.UpdateSchedule("job", "bogus"); err == nil {
		t.Error("UpdateSchedule() should reject an invalid expression")
	}
	if got := r.List()[0].Schedule; got != "*/5 * * * *" {
		t.Errorf("failed update changed schedule to %q", got)
	}

	if err := r.ResetSchedule("job"); err != nil {
		t.Fatalf("ResetSchedule() error = %v", err)
	}
	if info := r.List()[0]; info.Schedule != "@every 1h" || info.IsOverridden {
		t.Errorf("after reset: %+v", info)
	}

	if err := r.UpdateSchedule("missing", "@daily"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("UpdateSchedule(missing) error = %v", err)
	}
}
