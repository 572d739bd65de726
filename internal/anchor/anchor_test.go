package anchor

import "testing"

func TestKeyDistinctAcrossRuleKeys(t *testing.T) {
	if NewKey("R1", "123") == NewKey("R2", "123") {
		t.Error("keys with different rule keys must differ")
	}
	if NewKey("R1", "123") != "R1:123" {
		t.Errorf("unexpected key format %q", NewKey("R1", "123"))
	}
}

func TestKeyEmptyAnchor(t *testing.T) {
	if k := NewKey("R1", ""); k != "" {
		t.Errorf("expected empty key, got %q", k)
	}
}

func TestKeySplit(t *testing.T) {
	tests := []struct {
		key      Key
		wantRule string
		wantID   string
	}{
		{"R1:1000000000001", "R1", "1000000000001"},
		{"R2:dev:abc", "R2", "dev:abc"},
		{"loose", "", "loose"},
	}
	for _, tt := range tests {
		rule, id := tt.key.Split()
		if rule != tt.wantRule || id != tt.wantID {
			t.Errorf("Split(%q) = (%q, %q), want (%q, %q)", tt.key, rule, id, tt.wantRule, tt.wantID)
		}
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"ACCOUNT", KindAccount, true},
		{"account", KindAccount, true},
		{"Device", KindDevice, true},
		{"identifier", KindDevice, true},
		{"transaction", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseKind(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseKind(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAnchorAccessors(t *testing.T) {
	a := Anchor{Kind: KindDevice, ID: "dev-1", RuleKey: "R2"}
	if a.DeviceID() != "dev-1" || a.AccountID() != "" {
		t.Errorf("unexpected accessors for device anchor: %+v", a)
	}
	if a.Key() != "R2:dev-1" {
		t.Errorf("unexpected key %q", a.Key())
	}
	if a.String() != "identifier dev-1 (R2)" {
		t.Errorf("unexpected string %q", a.String())
	}
	if !(Anchor{}).IsZero() {
		t.Error("zero anchor should be zero")
	}
}
