package models

import "strings"

// Snapshot is the (collected id set, saved list) pair of one namespace at a point in time.
//
// CollectedUsers is used only for deduplication; SavedUserList is in discovery order.
type Snapshot struct {
	CollectedUsers []string     `json:"collectedUsers"`
	SavedUserList  []UserRecord `json:"savedUserList"`
}

// Stats summarizes a saved list.
type Stats struct {
	Total      int
	WithPhone  int
	WithWechat int
}

// EmptySnapshot returns a snapshot whose slices encode as empty arrays.
func EmptySnapshot() Snapshot {
	return Snapshot{CollectedUsers: []string{}, SavedUserList: []UserRecord{}}
}

// Clone returns a deep copy of s with non-nil slices.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		CollectedUsers: make([]string, len(s.CollectedUsers)),
		SavedUserList:  make([]UserRecord, len(s.SavedUserList)),
	}
	copy(out.CollectedUsers, s.CollectedUsers)
	copy(out.SavedUserList, s.SavedUserList)
	return out
}

// Len returns the number of saved records.
func (s Snapshot) Len() int { return len(s.SavedUserList) }

// IsEmpty reports whether both the id set and the saved list are empty.
func (s Snapshot) IsEmpty() bool {
	return len(s.CollectedUsers) == 0 && len(s.SavedUserList) == 0
}

// Has reports whether id was already seen in s.
func (s Snapshot) Has(id string) bool {
	_, ok := s.seen()[id]
	return ok
}

// Stats counts saved records and those carrying contact handles.
func (s Snapshot) Stats() Stats {
	st := Stats{Total: len(s.SavedUserList)}
	for _, u := range s.SavedUserList {
		if strings.TrimSpace(u.Phone) != "" {
			st.WithPhone++
		}
		if strings.TrimSpace(u.Wechat) != "" {
			st.WithWechat++
		}
	}
	return st
}

func (s Snapshot) seen() map[string]struct{} {
	seen := make(map[string]struct{}, len(s.CollectedUsers)+len(s.SavedUserList))
	for _, id := range s.CollectedUsers {
		seen[id] = struct{}{}
	}
	for _, u := range s.SavedUserList {
		seen[u.ID] = struct{}{}
	}
	return seen
}

// Merge combines incoming into base by id union.
//
// Entries of base keep their order and values. Records of incoming whose id is unseen are appended in incoming order;
// invalid records are dropped. Ids from incoming.CollectedUsers join the id set even without a record.
// Returns the merged snapshot and the number of appended records.
func Merge(base, incoming Snapshot) (Snapshot, int) {
	out := base.Clone()
	seen := base.seen()

	// ids implied only by saved records still belong in the id set
	inSet := make(map[string]struct{}, len(out.CollectedUsers))
	for _, id := range out.CollectedUsers {
		inSet[id] = struct{}{}
	}
	for _, u := range base.SavedUserList {
		if _, ok := inSet[u.ID]; !ok {
			inSet[u.ID] = struct{}{}
			out.CollectedUsers = append(out.CollectedUsers, u.ID)
		}
	}

	added := 0
	for _, u := range incoming.SavedUserList {
		if _, ok := seen[u.ID]; ok {
			continue
		}
		if err := u.Validate(); err != nil {
			continue
		}
		seen[u.ID] = struct{}{}
		out.SavedUserList = append(out.SavedUserList, u)
		out.CollectedUsers = append(out.CollectedUsers, u.ID)
		added++
	}

	for _, id := range incoming.CollectedUsers {
		if _, ok := seen[id]; ok || strings.TrimSpace(id) == "" {
			continue
		}
		seen[id] = struct{}{}
		out.CollectedUsers = append(out.CollectedUsers, id)
	}

	return out, added
}
