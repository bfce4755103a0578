package kerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessageFormatting(t *testing.T) {
	wrapped := errors.New("bad token")
	err := New(KindConfiguration, "adapter.ListItems", wrapped)

	want := "adapter.ListItems: configuration_error: bad token"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	nilWrapped := New(KindRaceLost, "guard.Claim", nil)
	want2 := "guard.Claim: race_lost"
	if nilWrapped.Error() != want2 {
		t.Errorf("Error() = %q, want %q", nilWrapped.Error(), want2)
	}
}

func TestUnwrap(t *testing.T) {
	wrapped := errors.New("underlying")
	err := New(KindSchema, "op", wrapped)
	if !errors.Is(err, wrapped) {
		t.Error("expected errors.Is to see through to the wrapped error")
	}
}

func TestIs(t *testing.T) {
	err := New(KindPlatformUnreachable, "op", nil)
	if !Is(err, KindPlatformUnreachable) {
		t.Error("expected Is to match the wrapping Kind")
	}
	if Is(err, KindSchema) {
		t.Error("expected Is to reject a non-matching Kind")
	}
	if Is(errors.New("plain"), KindSchema) {
		t.Error("expected Is to be false for an unclassified error")
	}
}

func TestIsSeesThroughWrapping(t *testing.T) {
	inner := New(KindAuthorization, "inner-op", nil)
	outer := fmt.Errorf("outer: %w", inner)
	if !Is(outer, KindAuthorization) {
		t.Error("expected Is to see through fmt.Errorf wrapping via errors.As")
	}
}

func TestFatal(t *testing.T) {
	if !Fatal(New(KindConfiguration, "op", nil)) {
		t.Error("expected ConfigurationError to be fatal")
	}
	if !Fatal(New(KindAuthorization, "op", nil)) {
		t.Error("expected AuthorizationError to be fatal")
	}
	if Fatal(New(KindSchema, "op", nil)) {
		t.Error("expected SchemaError not to be fatal")
	}
}

func TestPlatformDown(t *testing.T) {
	if !PlatformDown(New(KindPlatformUnreachable, "op", nil)) {
		t.Error("expected PlatformUnreachable to trip hibernation")
	}
	if PlatformDown(New(KindTransientAdapter, "op", nil)) {
		t.Error("expected TransientAdapterError not to trip hibernation")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		msg  string
		want Kind
	}{
		{"request failed: status 401 unauthorized", KindAuthorization},
		{"request failed: status 403 forbidden", KindAuthorization},
		{"request failed: status 429 too many requests", KindTransientAdapter},
		{"request failed: status 502 bad gateway", KindTransientAdapter},
		{"request failed: status 500 internal server error", KindPlatformUnreachable},
		{"dial tcp: connection refused", KindPlatformUnreachable},
		{"lookup api.github.com: no such host", KindPlatformUnreachable},
		{"invalid character '<' looking for beginning of value", KindSchema},
		{"unexpected end of JSON input", KindSchema},
		{"some unrecognized transient failure", KindTransientAdapter},
	}
	for _, c := range cases {
		if got := Classify(errors.New(c.msg)); got != c.want {
			t.Errorf("Classify(%q) = %q, want %q", c.msg, got, c.want)
		}
	}
}

func TestClassifyNilError(t *testing.T) {
	if got := Classify(nil); got != "" {
		t.Errorf("Classify(nil) = %q, want empty", got)
	}
}
