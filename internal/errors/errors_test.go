// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"testing"
)

func TestError(t *testing.T) {
	err := New(KindValidation, "empty process path")
	if err.Error() != "empty process path" {
		t.Errorf("expected 'empty process path', got '%s'", err.Error())
	}

	wrapped := Wrap(err, KindInternal, "failed to save override")
	if wrapped.Error() != "failed to save override: empty process path" {
		t.Errorf("unexpected message: '%s'", wrapped.Error())
	}

	if Wrap(nil, KindInternal, "nothing") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestGetKind(t *testing.T) {
	err := New(KindConflict, "override table full")
	if GetKind(err) != KindConflict {
		t.Errorf("expected KindConflict, got %v", GetKind(err))
	}

	wrapped := Wrap(err, KindInternal, "failed")
	if GetKind(wrapped) != KindInternal {
		t.Errorf("expected KindInternal, got %v", GetKind(wrapped))
	}

	if GetKind(errors.New("std error")) != KindUnknown {
		t.Errorf("expected KindUnknown, got %v", GetKind(errors.New("std error")))
	}

	if !IsKind(Errorf(KindCorrupt, "bad magic %x", 0x1234), KindCorrupt) {
		t.Error("expected IsKind to match KindCorrupt")
	}
	if IsKind(nil, KindUnknown) {
		t.Error("nil error should never match a kind")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindInternal:    "internal",
		KindUnavailable: "unavailable",
		KindCorrupt:     "corrupt",
		Kind(99):        "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestAttributes(t *testing.T) {
	err := New(KindValidation, "path too long")
	err = Attr(err, "path", `C:\app.exe`)
	err = Attr(err, "limit", 1023)

	attrs := GetAttributes(err)
	if attrs["path"] != `C:\app.exe` {
		t.Errorf("expected path attribute, got %v", attrs["path"])
	}
	if attrs["limit"] != 1023 {
		t.Errorf("expected 1023, got %v", attrs["limit"])
	}

	wrapped := Wrap(err, KindInternal, "failed")
	wrapped = Attr(wrapped, "operation", "save")

	allAttrs := GetAttributes(wrapped)
	if allAttrs["path"] != `C:\app.exe` || allAttrs["operation"] != "save" {
		t.Errorf("missing attributes: %v", allAttrs)
	}
}

func TestKindMarshalText(t *testing.T) {
	b, err := KindCorrupt.MarshalText()
	if err != nil || string(b) != "corrupt" {
		t.Errorf("expected corrupt, got %q (%v)", b, err)
	}
}

func TestExitCode(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:  2,
		KindPermission:  77,
		KindUnavailable: 69,
		KindTimeout:     69,
		KindInternal:    1,
		KindUnknown:     1,
	}
	for k, want := range cases {
		if got := k.ExitCode(); got != want {
			t.Errorf("%s: expected %d, got %d", k, want, got)
		}
	}
}

func TestLogValues(t *testing.T) {
	if LogValues(nil) != nil {
		t.Error("LogValues(nil) should be nil")
	}

	err := Attr(Attr(New(KindCorrupt, "bad magic"), "path", "/tmp/o.dat"), "count", 3)
	kv := LogValues(err)
	want := []any{"error", "bad magic", "kind", "corrupt", "count", 3, "path", "/tmp/o.dat"}
	if len(kv) != len(want) {
		t.Fatalf("expected %v, got %v", want, kv)
	}
	for i := range want {
		if kv[i] != want[i] {
			t.Errorf("index %d: expected %v, got %v", i, want[i], kv[i])
		}
	}

	plain := LogValues(errors.New("boom"))
	if len(plain) != 2 || plain[1] != "boom" {
		t.Errorf("unexpected plain values: %v", plain)
	}
}
