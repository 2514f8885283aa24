package model

import "testing"

func TestParseSession(t *testing.T) {
    for _, in := range []string{"lunch", "LUNCH", "Dinner", "breakfast"} {
        if _, err := ParseSession(in); err != nil { t.Fatalf("%q: %v", in, err) }
    }
    for _, in := range []string{"", "brunch", "supper"} {
        if _, err := ParseSession(in); err == nil { t.Fatalf("%q should be rejected", in) }
    }
}

func TestParseDate(t *testing.T) {
    if err := ParseDate("2026-03-02"); err != nil { t.Fatalf("valid date: %v", err) }
    for _, in := range []string{"", "02-03-2026", "2026/03/02", "2026-13-40"} {
        if err := ParseDate(in); err == nil { t.Fatalf("%q should be rejected", in) }
    }
}

func TestPlanKeyString(t *testing.T) {
    k := PlanKey{Date: "2026-03-02", Session: SessionDinner}
    if k.String() != "2026-03-02|dinner" { t.Fatalf("got %q", k.String()) }
}

func TestServiceErrorMessage(t *testing.T) {
    e := &ServiceError{Service: "optimizer", Status: 503, Message: "unreachable"}
    if e.Error() != "optimizer: unreachable (status 503)" { t.Fatalf("got %q", e.Error()) }
    e2 := &ServiceError{Service: "predictor", Message: "connection refused"}
    if e2.Error() != "predictor: connection refused" { t.Fatalf("got %q", e2.Error()) }
}
