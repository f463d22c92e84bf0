package display

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/desertthunder/leadsync/internal/models"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/sahilm/fuzzy"
)

// SortField names the record field a filtered list is ordered by. The empty field keeps insertion order.
type SortField string

const (
	SortNone      SortField = ""
	SortTimestamp SortField = "timestamp"
	SortUsername  SortField = "username"
	SortDouyinID  SortField = "douyinId"
	SortFans      SortField = "fans"
	SortLikes     SortField = "likes"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// ParseSortField maps a name onto a [SortField].
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(strings.TrimSpace(s)); f {
	case SortNone, SortTimestamp, SortUsername, SortDouyinID, SortFans, SortLikes:
		return f, nil
	default:
		return "", fmt.Errorf("unknown sort field %q", s)
	}
}

// Filter selects and orders records.
type Filter struct {
	Username  string // case-insensitive substring filters
	DouyinID  string
	Phone     string
	Wechat    string
	PhoneOnly bool
	Expr      string // boolean expr expression, e.g. `fansCount > 10000 && wechat != ""`
	Fuzzy     string // fuzzy username query; matches are ranked best first unless Sort is set
	Sort      SortField
	Order     SortOrder
}

// IsZero reports whether f keeps every record in insertion order.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Query is a compiled [Filter].
type Query struct {
	filter  Filter
	program *vm.Program
}

// Compile validates f and compiles its expression.
func (f Filter) Compile() (*Query, error) {
	q := &Query{filter: f}
	if strings.TrimSpace(f.Expr) == "" {
		return q, nil
	}
	program, err := expr.Compile(f.Expr, expr.Env(recordEnv(models.UserRecord{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	q.program = program
	return q, nil
}

// Apply returns the matching records in the requested order. users is not modified.
func (q *Query) Apply(users []models.UserRecord) ([]models.UserRecord, error) {
	f := q.filter
	out := make([]models.UserRecord, 0, len(users))
	for _, u := range users {
		if f.PhoneOnly && strings.TrimSpace(u.Phone) == "" {
			continue
		}
		if !contains(u.Username, f.Username) || !contains(u.DouyinID, f.DouyinID) ||
			!contains(u.Phone, f.Phone) || !contains(u.Wechat, f.Wechat) {
			continue
		}
		if q.program != nil {
			ok, err := expr.Run(q.program, recordEnv(u))
			if err != nil {
				return nil, fmt.Errorf("filter expression failed on %s: %w", u.ID, err)
			}
			if !ok.(bool) {
				continue
			}
		}
		out = append(out, u)
	}

	if f.Fuzzy != "" {
		matches := fuzzy.FindFrom(f.Fuzzy, usernames(out))
		ranked := make([]models.UserRecord, len(matches))
		for i, m := range matches {
			ranked[i] = out[m.Index]
		}
		out = ranked
	}

	if f.Sort != SortNone {
		sortRecords(out, f.Sort, f.Order)
	}
	return out, nil
}

// Apply compiles f and applies it to users.
func Apply(users []models.UserRecord, f Filter) ([]models.UserRecord, error) {
	q, err := f.Compile()
	if err != nil {
		return nil, err
	}
	return q.Apply(users)
}

// recordEnv exposes a record to filter expressions under its JSON names, plus parsed fan and like counts.
func recordEnv(u models.UserRecord) map[string]any {
	return map[string]any{
		"userId":      u.ID,
		"username":    u.Username,
		"douyinId":    u.DouyinID,
		"bio":         u.Bio,
		"fans":        u.Fans,
		"likes":       u.Likes,
		"phone":       u.Phone,
		"wechat":      u.Wechat,
		"name":        u.Name,
		"companyName": u.CompanyName,
		"verified":    u.Verified,
		"userLink":    u.UserLink,
		"timestamp":   u.Timestamp,
		"fansCount":   ParseCount(u.Fans),
		"likesCount":  ParseCount(u.Likes),
	}
}

type usernames []models.UserRecord

func (u usernames) String(i int) string { return u[i].Username }
func (u usernames) Len() int            { return len(u) }

func sortRecords(users []models.UserRecord, field SortField, order SortOrder) {
	compare := func(a, b models.UserRecord) int {
		switch field {
		case SortTimestamp:
			return cmp.Compare(a.Timestamp, b.Timestamp)
		case SortUsername:
			return strings.Compare(a.Username, b.Username)
		case SortDouyinID:
			return strings.Compare(a.DouyinID, b.DouyinID)
		case SortFans:
			return cmp.Compare(ParseCount(a.Fans), ParseCount(b.Fans))
		case SortLikes:
			return cmp.Compare(ParseCount(a.Likes), ParseCount(b.Likes))
		default:
			return 0
		}
	}
	if order == Desc {
		slices.SortStableFunc(users, func(a, b models.UserRecord) int { return compare(b, a) })
		return
	}
	slices.SortStableFunc(users, compare)
}

// ParseCount reads a displayed count such as "1.2万", "3.5w", "8k" or "1,024". Unparseable counts are zero.
func ParseCount(s string) float64 {
	s = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	mult := 1.0
	for suffix, m := range map[string]float64{"亿": 1e8, "万": 1e4, "w": 1e4, "k": 1e3} {
		if rest, ok := strings.CutSuffix(s, suffix); ok {
			s, mult = rest, m
			break
		}
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return n * mult
}

func contains(field, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(field), strings.ToLower(needle))
}
