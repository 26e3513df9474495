package presence

import "testing"

func TestEntryFieldsRoundTrip(t *testing.T) {
	e := Entry{
		Status:          On,
		SessionStart:    1700000000,
		Owner:           "reseller1",
		OwnerID:         42,
		Limit:           3,
		ConcurrentCount: 1,
		LastSeen:        1700000100,
		Downlink:        2048,
		Uplink:          1024,
		DownlinkPrev:    1000,
		UplinkPrev:      500,
		NoChangeTicks:   2,
	}

	got := EntryFromFields(e.ToFields())
	if got != e {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestEntryFromFieldsMissingDefaultsToZero(t *testing.T) {
	got := EntryFromFields(map[string]string{"status": "Off"})
	want := Entry{Status: Off}
	if got != want {
		t.Errorf("EntryFromFields(partial) = %+v, want %+v", got, want)
	}
}

func TestEntryFromFieldsMalformedNumericDefaultsToZero(t *testing.T) {
	got := EntryFromFields(map[string]string{"status": "On", "limit": "not-a-number"})
	if got.Limit != 0 {
		t.Errorf("Limit = %d, want 0 for malformed input", got.Limit)
	}
	if got.Status != On {
		t.Errorf("Status = %q, want On", got.Status)
	}
}
