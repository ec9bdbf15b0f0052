// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package validation

import (
	"strings"
	"testing"
)

type credentialPayload struct {
	Username string `validate:"required,min=1,max=16"`
	Password string `validate:"required"`
	Code     string `validate:"omitempty,len=6,numeric"`
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("Expected the same validator instance on repeated calls")
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		payload   credentialPayload
		wantField string
		wantTag   string
	}{
		{"valid", credentialPayload{Username: "alice", Password: "pw"}, "", ""},
		{"valid with code", credentialPayload{Username: "alice", Password: "pw", Code: "123456"}, "", ""},
		{"missing username", credentialPayload{Password: "pw"}, "Username", "required"},
		{"username too long", credentialPayload{Username: strings.Repeat("a", 17), Password: "pw"}, "Username", "max"},
		{"code wrong length", credentialPayload{Username: "alice", Password: "pw", Code: "123"}, "Code", "len"},
		{"code not numeric", credentialPayload{Username: "alice", Password: "pw", Code: "abcdef"}, "Code", "numeric"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.payload)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected a validation error")
			}
			errs := err.Errors()
			if len(errs) != 1 {
				t.Fatalf("Expected one field failure, got %d: %v", len(errs), err)
			}
			if errs[0].Field() != tt.wantField || errs[0].Tag() != tt.wantTag {
				t.Errorf("Expected %s/%s, got %s/%s", tt.wantField, tt.wantTag, errs[0].Field(), errs[0].Tag())
			}
		})
	}
}

func TestValidateStruct_MessageTranslation(t *testing.T) {
	err := ValidateStruct(&credentialPayload{Username: "alice", Password: "pw", Code: "12"})
	if err == nil {
		t.Fatal("Expected a validation error")
	}
	if !strings.Contains(err.Error(), "Code must be exactly 6 characters") {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestValidateStruct_AggregatesFailures(t *testing.T) {
	err := ValidateStruct(&credentialPayload{})
	if err == nil {
		t.Fatal("Expected a validation error")
	}
	if len(err.Errors()) != 2 {
		t.Errorf("Expected two field failures, got %d", len(err.Errors()))
	}
	if !strings.Contains(err.Error(), ";") {
		t.Errorf("Expected joined message, got %q", err.Error())
	}
}
