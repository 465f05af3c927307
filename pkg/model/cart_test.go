package model

import "testing"

func TestCartTotals(t *testing.T) {
	c := Cart{
		{ProductID: "1", Name: "Roses", UnitPrice: 2500, Quantity: 2},
		{ProductID: "4", Name: "Gift box", UnitPrice: 1200, Quantity: 1},
	}
	if got := c.Total(); got != 6200 {
		t.Fatalf("expected total 6200, got %d", got)
	}
	if got := c.Count(); got != 3 {
		t.Fatalf("expected count 3, got %d", got)
	}
	if i := c.Index("4"); i != 1 {
		t.Fatalf("expected index 1, got %d", i)
	}
	if i := c.Index("9"); i != -1 {
		t.Fatalf("expected -1 for missing line, got %d", i)
	}
}

func TestCartCloneIsIndependent(t *testing.T) {
	c := Cart{{ProductID: "1", UnitPrice: 100, Quantity: 1}}
	cp := c.Clone()
	cp[0].Quantity = 5
	if c[0].Quantity != 1 {
		t.Fatalf("clone shares memory with original")
	}
}

func TestUserInitial(t *testing.T) {
	u := UserSession{DisplayName: "анна"}
	if got := u.Initial(); got != "А" {
		t.Fatalf("expected А, got %q", got)
	}
	if got := (UserSession{}).Initial(); got != "" {
		t.Fatalf("expected empty initial, got %q", got)
	}
}
