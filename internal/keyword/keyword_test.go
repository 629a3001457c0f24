package keyword

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCompetition_UnknownIsNotZero(t *testing.T) {
	zero := Count(0)
	unknown := Unknown()

	if !zero.Known() {
		t.Fatalf("expected Count(0) to be known")
	}
	if unknown.Known() {
		t.Fatalf("expected Unknown() to not be known")
	}
	if zero == unknown {
		t.Errorf("zero and unknown must be distinguishable")
	}
	if zero.String() != "0" {
		t.Errorf("expected \"0\", got %q", zero.String())
	}
	if unknown.String() != "N/A" {
		t.Errorf("expected \"N/A\", got %q", unknown.String())
	}
}

func TestCompetition_JSON(t *testing.T) {
	data, err := json.Marshal([]Result{
		{Keyword: "a", Competition: Count(1234567)},
		{Keyword: "b", Competition: Unknown()},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"keyword":"a","competition":1234567},{"keyword":"b","competition":null}]`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}

	var back []Result
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n, ok := back[0].Competition.Value(); !ok || n != 1234567 {
		t.Errorf("expected 1234567, got %v", back[0].Competition)
	}
	if back[1].Competition.Known() {
		t.Errorf("expected unknown after decoding null")
	}
}

func TestCompetition_Ptr(t *testing.T) {
	if Unknown().Ptr() != nil {
		t.Errorf("expected nil pointer for unknown")
	}
	p := Count(42).Ptr()
	if p == nil || *p != 42 {
		t.Fatalf("expected pointer to 42, got %v", p)
	}
	if FromPtr(p) != Count(42) {
		t.Errorf("FromPtr did not restore count")
	}
	if FromPtr(nil).Known() {
		t.Errorf("FromPtr(nil) should be unknown")
	}
}

func TestParseCompetition(t *testing.T) {
	for in, want := range map[string]Competition{
		"N/A": Unknown(),
		"":    Unknown(),
		"17":  Count(17),
		" 0 ": Count(0),
	} {
		got, err := ParseCompetition(in)
		if err != nil {
			t.Fatalf("ParseCompetition(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseCompetition(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseCompetition("lots"); err == nil {
		t.Errorf("expected error for non-numeric input")
	}
}

func TestParseRegion(t *testing.T) {
	r, err := ParseRegion("Malaysia")
	if err != nil || r != RegionMalaysia {
		t.Errorf("expected %s, got %s (%v)", RegionMalaysia, r, err)
	}
	r, err = ParseRegion("google.com")
	if err != nil || r != RegionGlobal {
		t.Errorf("expected %s, got %s (%v)", RegionGlobal, r, err)
	}
	if _, err := ParseRegion("bing.com"); err == nil {
		t.Errorf("expected error for unknown region")
	}
}

func TestParams_Validate(t *testing.T) {
	good := Params{Seed: "  shoes ", MaxDepth: 2}.Normalize()
	if good.Seed != "shoes" || good.Region != DefaultRegion {
		t.Fatalf("unexpected normalized params: %+v", good)
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := map[string]Params{
		"seed":   Params{Seed: "   ", MaxDepth: 1}.Normalize(),
		"depth":  {Seed: "x", Region: RegionGlobal, MaxDepth: 6},
		"region": {Seed: "x", Region: "bing.com", MaxDepth: 1},
	}
	for want, p := range cases {
		err := p.Validate()
		if err == nil {
			t.Errorf("expected %s validation error for %+v", want, p)
			continue
		}
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error mentioning %q, got %v", want, err)
		}
	}
}
