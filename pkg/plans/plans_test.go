package plans

import (
	"testing"
	"time"
)

func TestAccessUntilUsesCalendarArithmetic(test *testing.T) {
	test.Parallel()
	start := time.Date(2025, time.January, 15, 9, 30, 0, 0, time.UTC)
	testCases := []struct {
		planID   string
		expected time.Time
	}{
		{planID: Monthly, expected: time.Date(2025, time.February, 15, 9, 30, 0, 0, time.UTC)},
		{planID: Quarterly, expected: time.Date(2025, time.April, 15, 9, 30, 0, 0, time.UTC)},
		{planID: Annual, expected: time.Date(2026, time.January, 15, 9, 30, 0, 0, time.UTC)},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.planID, func(test *testing.T) {
			test.Parallel()
			plan, ok := Lookup(testCase.planID)
			if !ok {
				test.Fatalf("plan %s not found", testCase.planID)
			}
			if got := plan.AccessUntil(start); !got.Equal(testCase.expected) {
				test.Fatalf("expected %s, got %s", testCase.expected, got)
			}
		})
	}
}

func TestLookupNormalizesAndRejectsUnknown(test *testing.T) {
	test.Parallel()
	plan, ok := Lookup(" Annual ")
	if !ok || plan.PriceCents != 21600 {
		test.Fatalf("expected annual plan, got %+v (%v)", plan, ok)
	}
	if _, ok := Lookup("weekly"); ok {
		test.Fatalf("expected unknown plan")
	}
	if len(All()) != 3 {
		test.Fatalf("expected three plans")
	}
}
