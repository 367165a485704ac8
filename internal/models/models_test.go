package models

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestParameterSetKeepsFirstOccurrenceOrder(t *testing.T) {
	p := NewParameterSet()
	p.Set("id", "a")
	p.Set("locale", "fr_FR")
	p.Set("id", "b")

	if got := p.Value("id"); got != "b" {
		t.Errorf("expected last write to win, got %q", got)
	}
	want := []string{"id", "locale"}
	if got := p.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected keys %v, got %v", want, got)
	}
}

func TestParameterSetJSONPreservesOrder(t *testing.T) {
	p := NewParameterSet()
	p.Set("z", "1")
	p.Set("a", "2")
	p.Set("m", "3")

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"z":"1","a":"2","m":"3"}` {
		t.Errorf("unexpected encoding: %s", data)
	}

	var back ParameterSet
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(back.Keys(), []string{"z", "a", "m"}) {
		t.Errorf("order lost: %v", back.Keys())
	}
}

func TestParameterSetRejectsNonStringValues(t *testing.T) {
	var p ParameterSet
	if err := json.Unmarshal([]byte(`{"id": 5}`), &p); err == nil {
		t.Error("expected error for non-string value")
	}
}

func TestParameterSetNilSafe(t *testing.T) {
	var p *ParameterSet
	if !p.IsEmpty() {
		t.Error("nil set should be empty")
	}
	if _, ok := p.Get("id"); ok {
		t.Error("nil set should not contain keys")
	}
}

func TestTaskRequestValidation(t *testing.T) {
	if err := (&TaskCreateRequest{Description: "  "}).Validate(); err != ErrEmptyDescription {
		t.Errorf("expected ErrEmptyDescription, got %v", err)
	}
	if err := (&TaskCreateRequest{Description: "buy milk"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (&TaskEditRequest{OldDescription: "a"}).Validate(); err != ErrMissingEditFields {
		t.Errorf("expected ErrMissingEditFields, got %v", err)
	}
}

func TestSessionContextWithTokenCopies(t *testing.T) {
	base := SessionContext{UserID: "u1", Flow: FlowFullExperience}
	withToken := base.WithToken("tok")
	if base.Token != "" {
		t.Error("WithToken mutated the receiver")
	}
	if withToken.Token != "tok" || withToken.UserID != "u1" {
		t.Errorf("unexpected copy: %+v", withToken)
	}
}
