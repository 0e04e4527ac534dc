// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"build", "build", 0},
		{"biuld", "build", 2},
		{"locate", "loacte", 2},
		{"delete", "delet", 1},
		{"fit", "list", 2},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := levenshtein(tt.b, tt.a); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d (symmetry)", tt.b, tt.a, got, tt.want)
		}
	}
}

func TestSuggestFlag(t *testing.T) {
	flagSet := pflag.NewFlagSet("build", pflag.ContinueOnError)
	flagSet.StringArray("compile-arg", nil, "")
	flagSet.BoolP("force", "f", false, "")

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--compile-ar", "x"}, "--compile-arg"},
		{[]string{"--froce"}, "--force"},
		{[]string{"-f", "--forc"}, "--force"},
		{[]string{"--entirely-unrelated-flag"}, ""},
		{[]string{"model.stan"}, ""},
		{[]string{"--", "--froce"}, ""},
	}
	for _, tt := range tests {
		if got := suggestFlag(tt.args, flagSet); got != tt.want {
			t.Errorf("suggestFlag(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
