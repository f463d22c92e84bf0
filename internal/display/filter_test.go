package display

import (
	"math"
	"slices"
	"testing"

	"github.com/desertthunder/leadsync/internal/models"
	tu "github.com/desertthunder/leadsync/internal/testing"
)

func fixture() []models.UserRecord {
	alice := tu.Record("u1", "Alice")
	alice.DouyinID = "al001"
	alice.Phone = "13800000000"
	alice.Fans = "1.2万"
	alice.Likes = "300"
	alice.Timestamp = 3

	bob := tu.Record("u2", "bob")
	bob.DouyinID = "bb002"
	bob.Wechat = "bob_wx"
	bob.Fans = "800"
	bob.Likes = "5w"
	bob.Timestamp = 1

	alicia := tu.Record("u3", "alicia")
	alicia.DouyinID = "al003"
	alicia.Wechat = "AliciaWX"
	alicia.Fans = "9k"
	alicia.Timestamp = 2

	return []models.UserRecord{alice, bob, alicia}
}

func idsOf(users []models.UserRecord) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "Zero Filter Keeps Order", filter: Filter{}, want: []string{"u1", "u2", "u3"}},
		{name: "Username Substring Ignores Case", filter: Filter{Username: "ALI"}, want: []string{"u1", "u3"}},
		{name: "Douyin ID", filter: Filter{DouyinID: "bb"}, want: []string{"u2"}},
		{name: "Wechat", filter: Filter{Wechat: "wx"}, want: []string{"u2", "u3"}},
		{name: "Phone", filter: Filter{Phone: "138"}, want: []string{"u1"}},
		{name: "Phone Only", filter: Filter{PhoneOnly: true}, want: []string{"u1"}},
		{name: "Combined", filter: Filter{Username: "ali", Wechat: "wx"}, want: []string{"u3"}},
		{name: "Expression", filter: Filter{Expr: `fansCount >= 9000`}, want: []string{"u1", "u3"}},
		{name: "Expression On Strings", filter: Filter{Expr: `wechat != "" && likesCount > 1000`}, want: []string{"u2"}},
		{name: "Sort Timestamp Asc", filter: Filter{Sort: SortTimestamp, Order: Asc}, want: []string{"u2", "u3", "u1"}},
		{name: "Sort Fans Desc", filter: Filter{Sort: SortFans, Order: Desc}, want: []string{"u1", "u3", "u2"}},
		{name: "Sort Username", filter: Filter{Sort: SortUsername}, want: []string{"u1", "u3", "u2"}},
		{name: "Fuzzy Then Sort", filter: Filter{Fuzzy: "ali", Sort: SortTimestamp, Order: Desc}, want: []string{"u1", "u3"}},
		{name: "No Match", filter: Filter{Username: "carol"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(fixture(), tt.filter)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(idsOf(got), tt.want) {
				t.Errorf("expected %v, got %v", tt.want, idsOf(got))
			}
		})
	}

	t.Run("Fuzzy Ranks Matches", func(t *testing.T) {
		got, err := Apply(fixture(), Filter{Fuzzy: "alic"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids := idsOf(got)
		slices.Sort(ids)
		if !slices.Equal(ids, []string{"u1", "u3"}) {
			t.Errorf("expected alice and alicia, got %v", idsOf(got))
		}
	})

	t.Run("Input Untouched", func(t *testing.T) {
		users := fixture()
		if _, err := Apply(users, Filter{Sort: SortFans, Order: Asc}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(idsOf(users), []string{"u1", "u2", "u3"}) {
			t.Errorf("input was reordered: %v", idsOf(users))
		}
	})

	t.Run("Invalid Expression", func(t *testing.T) {
		for _, src := range []string{"fansCount >", `username + 1`, `fansCount`} {
			if _, err := (Filter{Expr: src}).Compile(); err == nil {
				t.Errorf("expected %q to be rejected", src)
			}
		}
	})
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1.2万", 12000},
		{"3.5w", 35000},
		{"8k", 8000},
		{"2亿", 2e8},
		{"1,024", 1024},
		{" 42 ", 42},
		{"", 0},
		{"未知", 0},
	}
	for _, tt := range tests {
		if got := ParseCount(tt.in); math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("ParseCount(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}

func TestParseSortField(t *testing.T) {
	for _, s := range []string{"", "timestamp", "fans", "douyinId"} {
		if _, err := ParseSortField(s); err != nil {
			t.Errorf("expected %q to parse: %v", s, err)
		}
	}
	if _, err := ParseSortField("height"); err == nil {
		t.Error("expected unknown field to fail")
	}
}

func TestFilterIsZero(t *testing.T) {
	if !(Filter{}).IsZero() {
		t.Error("expected empty filter to be zero")
	}
	if (Filter{PhoneOnly: true}).IsZero() {
		t.Error("expected phone-only filter not to be zero")
	}
}
