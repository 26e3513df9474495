package presence

import (
	"context"
	"strconv"
)

// Status is the On/Off state of one live-session entry.
type Status string

const (
	On  Status = "On"
	Off Status = "Off"
)

// Entry mirrors spec.md §3's live-session entry shape.
type Entry struct {
	Status          Status
	Kind            string // models.Kind, stored as a plain string to keep this package import-free of models
	SessionStart    int64  // epoch seconds, set once per Off->On transition
	Owner           string
	OwnerID         int
	Limit           int
	ConcurrentCount int
	LastSeen        int64 // epoch seconds
	Downlink        int64 // xray only
	Uplink          int64
	DownlinkPrev    int64
	UplinkPrev      int64
	NoChangeTicks   int
}

// ToFields flattens an Entry into the string-keyed hash fields HSetMulti
// expects.
func (e Entry) ToFields() map[string]string {
	return map[string]string{
		"status":            string(e.Status),
		"kind":              e.Kind,
		"session_start":     strconv.FormatInt(e.SessionStart, 10),
		"owner":             e.Owner,
		"owner_id":          strconv.Itoa(e.OwnerID),
		"limit":             strconv.Itoa(e.Limit),
		"concurrent_count":  strconv.Itoa(e.ConcurrentCount),
		"last_seen":         strconv.FormatInt(e.LastSeen, 10),
		"downlink":          strconv.FormatInt(e.Downlink, 10),
		"uplink":            strconv.FormatInt(e.Uplink, 10),
		"downlink_prev":     strconv.FormatInt(e.DownlinkPrev, 10),
		"uplink_prev":       strconv.FormatInt(e.UplinkPrev, 10),
		"no_change_ticks":   strconv.Itoa(e.NoChangeTicks),
	}
}

// EntryFromFields reconstructs an Entry from a hash's HGetAll result. Missing
// or malformed numeric fields default to zero.
func EntryFromFields(fields map[string]string) Entry {
	var e Entry
	e.Status = Status(fields["status"])
	e.Kind = fields["kind"]
	e.SessionStart = atoi64(fields["session_start"])
	e.Owner = fields["owner"]
	e.OwnerID = atoi(fields["owner_id"])
	e.Limit = atoi(fields["limit"])
	e.ConcurrentCount = atoi(fields["concurrent_count"])
	e.LastSeen = atoi64(fields["last_seen"])
	e.Downlink = atoi64(fields["downlink"])
	e.Uplink = atoi64(fields["uplink"])
	e.DownlinkPrev = atoi64(fields["downlink_prev"])
	e.UplinkPrev = atoi64(fields["uplink_prev"])
	e.NoChangeTicks = atoi(fields["no_change_ticks"])
	return e
}

// GetEntry reads and decodes one live-session entry, or (Entry{}, false, nil)
// if the key is absent.
func (s *Store) GetEntry(ctx context.Context, login, tag string) (Entry, bool, error) {
	fields, err := s.HGetAll(ctx, LiveKey(login, tag))
	if err != nil {
		return Entry{}, false, err
	}
	if len(fields) == 0 {
		return Entry{}, false, nil
	}
	return EntryFromFields(fields), true, nil
}

// PutEntry writes an entry's fields and indexes its login in OnlineLoginsSet
// when the entry is On.
func (s *Store) PutEntry(ctx context.Context, login, tag string, e Entry) error {
	if err := s.HSetMulti(ctx, LiveKey(login, tag), e.ToFields()); err != nil {
		return err
	}
	if e.Status == On {
		return s.SAdd(ctx, OnlineLoginsSet, login)
	}
	return nil
}

// DeleteEntry removes a live-session entry and, if no other On entry remains
// for the login, drops it from OnlineLoginsSet.
func (s *Store) DeleteEntry(ctx context.Context, login, tag string) error {
	if err := s.Del(ctx, LiveKey(login, tag)); err != nil {
		return err
	}
	remaining, err := s.Keys(ctx, LiveKeyPattern(login))
	if err != nil {
		return err
	}
	anyOn := false
	for _, k := range remaining {
		fields, err := s.rdb.HGetAll(ctx, k).Result()
		if err != nil {
			continue
		}
		if Status(fields["status"]) == On {
			anyOn = true
			break
		}
	}
	if !anyOn {
		return s.SRem(ctx, OnlineLoginsSet, login)
	}
	return nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
