// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package modelid

import (
	"strings"
	"testing"
)

func TestDeriveFitName(t *testing.T) {
	model := testEnvironment().Derive(normalProgram)
	arguments := map[string]any{"num_samples": 1000, "seed": 42}

	name, err := DeriveFitName(model, "stan::services::sample::hmc_nuts_diag_e_adapt", arguments)
	if err != nil {
		t.Fatalf("DeriveFitName: %v", err)
	}

	prefix := string(model) + "/fits/"
	if !strings.HasPrefix(name, prefix) {
		t.Fatalf("fit name %q does not start with %q", name, prefix)
	}
	if err := validateToken(strings.TrimPrefix(name, prefix)); err != nil {
		t.Errorf("fit token in %q: %v", name, err)
	}

	again, err := DeriveFitName(model, "stan::services::sample::hmc_nuts_diag_e_adapt",
		map[string]any{"seed": 42, "num_samples": 1000})
	if err != nil {
		t.Fatalf("DeriveFitName: %v", err)
	}
	if again != name {
		t.Errorf("same arguments in a different literal order gave %q and %q", name, again)
	}
}

func TestDeriveFitNameDistinguishesRequests(t *testing.T) {
	model := testEnvironment().Derive(normalProgram)
	other := testEnvironment().Derive("parameters {real z;} model {z ~ normal(0,1);}")
	const function = "stan::services::sample::hmc_nuts_diag_e_adapt"

	base, err := DeriveFitName(model, function, map[string]any{"seed": 1})
	if err != nil {
		t.Fatalf("DeriveFitName: %v", err)
	}

	variants := map[string]func() (string, error){
		"arguments": func() (string, error) { return DeriveFitName(model, function, map[string]any{"seed": 2}) },
		"function": func() (string, error) {
			return DeriveFitName(model, "stan::services::sample::fixed_param", map[string]any{"seed": 1})
		},
		"model": func() (string, error) { return DeriveFitName(other, function, map[string]any{"seed": 1}) },
	}
	for label, derive := range variants {
		name, err := derive()
		if err != nil {
			t.Fatalf("%s: DeriveFitName: %v", label, err)
		}
		if fitToken(name) == fitToken(base) {
			t.Errorf("changing %s left the fit token unchanged: %s", label, name)
		}
	}
}

func TestDeriveFitNameRejectsUnencodableArguments(t *testing.T) {
	model := testEnvironment().Derive(normalProgram)
	_, err := DeriveFitName(model, "f", map[string]any{"callback": func() {}})
	if err == nil {
		t.Fatal("expected an encoding error for a func-valued argument")
	}
}

func fitToken(name string) string {
	return name[strings.LastIndex(name, "/")+1:]
}
