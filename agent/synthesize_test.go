package agent

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestParseQueries(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		max  int
		want []string
		ok   bool
	}{
		{
			name: "plain array",
			raw:  `["gateway timeout", "pending payments"]`,
			max:  4,
			want: []string{"gateway timeout", "pending payments"},
			ok:   true,
		},
		{
			name: "fenced with prose",
			raw:  "Here you go:\n```json\n[\"retry policy\"]\n```",
			max:  4,
			want: []string{"retry policy"},
			ok:   true,
		},
		{
			name: "case-insensitive dedup and trim",
			raw:  `[" Gateway Timeout ", "gateway timeout", "webhooks"]`,
			max:  4,
			want: []string{"Gateway Timeout", "webhooks"},
			ok:   true,
		},
		{
			name: "capped at max",
			raw:  `["a", "b", "c", "d", "e", "f"]`,
			max:  4,
			want: []string{"a", "b", "c", "d"},
			ok:   true,
		},
		{
			name: "empty strings dropped",
			raw:  `["", "  ", "real"]`,
			max:  4,
			want: []string{"real"},
			ok:   true,
		},
		{
			name: "not json",
			raw:  "I think you should search for gateway timeout",
			max:  4,
			ok:   false,
		},
		{
			name: "object not array",
			raw:  `{"queries": ["x"]}`,
			max:  4,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseQueries(tt.raw, tt.max)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// WHAT: stage one is advisory; any failure falls back to the summary.
// WHY: a bad synthesis must never cost a ticket its documentation pass.
func TestSynthesizeFallsBackToSummary(t *testing.T) {
	tests := []struct {
		name string
		llm  *fakeLLM
	}{
		{"provider error", &fakeLLM{err: errors.New("boom")}},
		{"garbage output", &fakeLLM{responses: []string{"not json at all"}}},
		{"empty array", &fakeLLM{responses: []string{"[]"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, testConfig(), Deps{
				LLM: tt.llm, Tickets: &fakeTickets{}, KB: &fakeKB{},
			})
			got := svc.synthesizeQueries(context.Background(), "payments stuck", "ctx")
			if len(got) != 1 || got[0] != "payments stuck" {
				t.Fatalf("got %q, want summary fallback", got)
			}
		})
	}
}
