package formatter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/leadsync/internal/models"
	th "github.com/desertthunder/leadsync/internal/testing"
	"github.com/sebdah/goldie/v2"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

func fixtureUsers() []models.UserRecord {
	return []models.UserRecord{
		{
			ID:          "u1",
			Username:    "张三",
			DouyinID:    "zs001",
			Phone:       "13800000000",
			CompanyName: "三石贸易",
			Fans:        "1.2万",
			Likes:       "3万",
			Bio:         `做"外贸"生意`,
			UserLink:    "https://www.douyin.com/user/u1",
			Timestamp:   1700000000000,
		},
		{
			ID:        "u2",
			DouyinID:  "ls002",
			Wechat:    "lisi_wx",
			Verified:  "企业认证",
			Timestamp: 1700000060000,
		},
	}
}

func TestGoldenExports(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	shanghai := time.FixedZone("CST", 8*60*60)

	tests := []struct {
		name string
		opts Options
	}{
		{name: "text", opts: Options{Format: FormatTXT}},
		{name: "numbered", opts: Options{Format: FormatNumberedTXT}},
		{name: "csv", opts: Options{Format: FormatCSV, CSV: CSVOptions{Headers: true, Timestamp: true, Location: shanghai}}},
		{name: "csv_rows_only", opts: Options{Format: FormatCSV}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Export(fixtureUsers(), tt.opts)
			if err != nil {
				t.Fatalf("Export failed: %v", err)
			}
			g.Assert(t, tt.name, data)
		})
	}
}

func TestExportToText(t *testing.T) {
	t.Run("separator is 41 heavy horizontals", func(t *testing.T) {
		if n := len([]rune(Separator)); n != 41 {
			t.Errorf("expected 41 runes, got %d", n)
		}
		if strings.Trim(Separator, "━") != "" {
			t.Errorf("separator contains other characters: %q", Separator)
		}
	})

	t.Run("empty list", func(t *testing.T) {
		if out := ExportToText(nil); len(out) != 0 {
			t.Errorf("expected empty output, got %q", out)
		}
	})

	t.Run("optional lines omitted", func(t *testing.T) {
		out := string(ExportToText([]models.UserRecord{{ID: "u1", Username: "a"}}))
		for _, label := range []string{"手机号：", "微信号：", "公司名称：", "认证信息："} {
			if strings.Contains(out, label) {
				t.Errorf("expected %s to be omitted, got %q", label, out)
			}
		}
		if !strings.HasSuffix(out, "主页：未知") {
			t.Errorf("expected output to end with the link line, got %q", out)
		}
	})

	t.Run("export carries BOM", func(t *testing.T) {
		data, err := Export(fixtureUsers(), Options{})
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if !bytes.HasPrefix(data, bom) {
			t.Errorf("expected BOM prefix, got % x", data[:3])
		}
		if bytes.HasPrefix(data[3:], bom) {
			t.Error("expected exactly one BOM")
		}
	})
}

func TestExportToCSV(t *testing.T) {
	t.Run("header without timestamp", func(t *testing.T) {
		out := string(ExportToCSV(nil, CSVOptions{Headers: true}))
		if out != strings.Join(CSVHeaders, ",")+"\n" {
			t.Errorf("unexpected header: %q", out)
		}
	})

	t.Run("timestamp header does not alias", func(t *testing.T) {
		_ = ExportToCSV(nil, CSVOptions{Headers: true, Timestamp: true})
		if len(CSVHeaders) != 11 {
			t.Errorf("expected CSVHeaders unchanged, got %d columns", len(CSVHeaders))
		}
	})

	t.Run("newest first", func(t *testing.T) {
		lines := strings.Split(string(ExportToCSV(th.Records(3), CSVOptions{})), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected 3 rows, got %d", len(lines))
		}
		for i, want := range []string{`3,"user 3"`, `2,"user 2"`, `1,"user 1"`} {
			if !strings.HasPrefix(lines[i], want) {
				t.Errorf("row %d: expected prefix %s, got %s", i, want, lines[i])
			}
		}
	})

	t.Run("quotes are doubled in every field", func(t *testing.T) {
		out := string(ExportToCSV([]models.UserRecord{{Username: `a"b`, Wechat: `"w"`}}, CSVOptions{}))
		if !strings.Contains(out, `"a""b"`) || !strings.Contains(out, `"""w"""`) {
			t.Errorf("unexpected quoting: %s", out)
		}
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatTXT},
		{in: "TXT", want: FormatTXT},
		{in: "numbered", want: FormatNumberedTXT},
		{in: "csv", want: FormatCSV},
		{in: "json", want: FormatJSON},
		{in: "markdown", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFilename(t *testing.T) {
	day := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)
	if got := Filename(FormatCSV, day); got != "抖音用户数据_2024-3-5.csv" {
		t.Errorf("unexpected filename %q", got)
	}
	if got := Filename(FormatNumberedTXT, day); got != "抖音用户数据_2024-3-5.txt" {
		t.Errorf("unexpected filename %q", got)
	}
}

func TestWriters(t *testing.T) {
	t.Run("WriteExport creates directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "out.json")

		got, err := WriteExport(fixtureUsers(), Options{Format: FormatJSON}, path)
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}

		var users []models.UserRecord
		if err := json.Unmarshal([]byte(th.MustReadFile(t, got)), &users); err != nil {
			t.Fatalf("invalid JSON export: %v", err)
		}
		if len(users) != 2 || users[1].Wechat != "lisi_wx" {
			t.Errorf("unexpected users: %+v", users)
		}
	})

	t.Run("WriteExport unknown format", func(t *testing.T) {
		if _, err := WriteExport(nil, Options{Format: "pdf"}, filepath.Join(t.TempDir(), "x")); err == nil {
			t.Error("expected error for unknown format")
		}
	})

	t.Run("WriteManifest", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "manifest.json")
		if err := WriteManifest(map[string]int{"total": 2}, path); err != nil {
			t.Fatalf("WriteManifest failed: %v", err)
		}
		th.AssertFileExists(t, path)
	})

	t.Run("WriteManifest to missing directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "manifest.json")
		if err := WriteManifest(map[string]int{}, path); err == nil {
			t.Error("expected error")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("expected no manifest to be written")
		}
	})
}

func TestCSVTimestampColumn(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*60*60)
	users := []models.UserRecord{{ID: "u1", Username: "早起", Timestamp: 1700000000000}}

	data := string(ExportToCSV(users, CSVOptions{Timestamp: true, Location: shanghai}))
	if !strings.HasSuffix(strings.TrimSpace(data), `"2023/11/15 06:13:20"`) {
		t.Errorf("expected a two-digit hour in the timestamp column, got %q", data)
	}
}
