package icaofilter

import "testing"

func TestAddAndTest(t *testing.T) {
	f := New(0)
	f.Add(0xA835AF)
	if !f.Test(0xA835AF) {
		t.Fatal("expected address to test positive immediately after add")
	}
	if f.Test(0x000001) {
		t.Fatal("unrelated address should not test positive")
	}
}

func TestSurvivesOneFlip(t *testing.T) {
	f := New(0)
	f.Add(0x4CA853)
	f.Expire(60) // first flip at t=60
	if !f.Test(0x4CA853) {
		t.Fatal("address should still test positive immediately after one flip (aging generation)")
	}
}

func TestForgottenAfterTwoFlips(t *testing.T) {
	f := New(0)
	f.Add(0x4CA853)
	f.Expire(60)
	f.Expire(120)
	if f.Test(0x4CA853) {
		t.Fatal("address should be forgotten after two flip cycles")
	}
}

func TestFuzzyMatch(t *testing.T) {
	f := New(0)
	f.Add(0xA835AF)
	addr, ok := f.TestFuzzy(0x35AF)
	if !ok || addr != 0xA835AF {
		t.Fatalf("TestFuzzy(0x35AF) = (%#x, %v), want (0xa835af, true)", addr, ok)
	}
}
