package vault

import (
	"errors"
	"testing"
)

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("vault:secret/gazette/backend#api_key")
	if err != nil {
		t.Fatalf("ParseRef: %v", err)
	}
	if ref.Path != "secret/gazette/backend" || ref.Key != "api_key" {
		t.Fatalf("unexpected ref: %#v", ref)
	}

	mount, rel := splitMount(ref.Path)
	if mount != "secret" || rel != "gazette/backend" {
		t.Fatalf("splitMount = %q, %q", mount, rel)
	}
}

func TestParseRef_Malformed(t *testing.T) {
	for _, in := range []string{
		"plain-value",
		"vault:",
		"vault:secret/gazette",
		"vault:#key",
		"vault:nomount#key",
	} {
		if _, err := ParseRef(in); !errors.Is(err, ErrBadRef) {
			t.Errorf("ParseRef(%q) err = %v, want ErrBadRef", in, err)
		}
	}
}
