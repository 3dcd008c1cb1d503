package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresJobs(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry.Register(jobA)
	registry.Register(jobB)
	registry.Register(nil)
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order")
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryReplacesDuplicateNames(t *testing.T) {
	first := &stubJob{name: "offer-archive"}
	second := &stubJob{name: "offer-archive"}
	registry := NewRegistry(first, &stubJob{name: "order-lock-sweep"}, second)

	names := registry.Names()
	if len(names) != 2 || names[0] != "offer-archive" || names[1] != "order-lock-sweep" {
		t.Fatalf("unexpected names %v", names)
	}
	job, ok := registry.Lookup("offer-archive")
	if !ok || job != second {
		t.Fatalf("expected replacement job")
	}
	if _, ok := registry.Lookup("missing"); ok {
		t.Fatalf("expected missing job lookup to fail")
	}
}
