// package formatter renders saved lead records as text and CSV exports
package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/leadsync/internal/models"
	"golang.org/x/text/encoding/unicode"
)

// Separator precedes every record in a text export.
var Separator = strings.Repeat("━", 41)

const (
	unfilled = "未填写"
	unknown  = "未知"

	// TimestampLayout matches the zh-CN locale rendering of a discovery time.
	TimestampLayout = "2006/1/2 15:04:05"
)

// Format names an export format.
type Format string

const (
	FormatTXT         Format = "txt"
	FormatNumberedTXT Format = "numbered"
	FormatCSV         Format = "csv"
	FormatJSON        Format = "json"
)

// ParseFormat maps a format name to a [Format].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatTXT:
		return FormatTXT, nil
	case FormatNumberedTXT, FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// Ext returns the file extension for f.
func (f Format) Ext() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatJSON:
		return ".json"
	default:
		return ".txt"
	}
}

// MediaType returns the content type of f.
func (f Format) MediaType() string {
	switch f {
	case FormatCSV:
		return "text/csv;charset=utf-8"
	case FormatJSON:
		return "application/json"
	default:
		return "text/plain;charset=utf-8"
	}
}

// CSVOptions controls the optional parts of a CSV export.
type CSVOptions struct {
	Headers   bool
	Timestamp bool
	Location  *time.Location // zone for the timestamp column; defaults to time.Local
}

// Options selects the format of [Export].
type Options struct {
	Format Format
	CSV    CSVOptions
}

// Export renders users in the selected format. Text formats carry a UTF-8 byte order mark.
func Export(users []models.UserRecord, opts Options) ([]byte, error) {
	switch opts.Format {
	case "", FormatTXT:
		return WithBOM(ExportToText(users))
	case FormatNumberedTXT:
		return WithBOM(ExportToNumberedText(users))
	case FormatCSV:
		return WithBOM(ExportToCSV(users, opts.CSV))
	case FormatJSON:
		if users == nil {
			users = []models.UserRecord{}
		}
		return json.MarshalIndent(users, "", "  ")
	default:
		return nil, fmt.Errorf("unknown export format %q", opts.Format)
	}
}

// WithBOM prefixes data with the UTF-8 byte order mark.
func WithBOM(data []byte) ([]byte, error) {
	out, err := unicode.UTF8BOM.NewEncoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return out, nil
}

// ExportToText renders users in insertion order, one labelled block per record, without a byte order mark.
//
// Phone, wechat, company and verification lines appear only when the field is set.
func ExportToText(users []models.UserRecord) []byte {
	blocks := make([]string, 0, len(users))
	for _, u := range users {
		lines := []string{
			Separator,
			"用户名称：" + or(u.Username, unfilled),
			"抖音号：" + or(u.DouyinID, unfilled),
		}
		if u.Phone != "" {
			lines = append(lines, "手机号："+u.Phone)
		}
		if u.Wechat != "" {
			lines = append(lines, "微信号："+u.Wechat)
		}
		if u.CompanyName != "" {
			lines = append(lines, "公司名称："+u.CompanyName)
		}
		if u.Verified != "" {
			lines = append(lines, "认证信息："+u.Verified)
		}
		lines = append(lines,
			"粉丝数："+or(u.Fans, unknown),
			"获赞数："+or(u.Likes, unknown),
			"简介："+or(u.Bio, unfilled),
			"主页："+or(u.UserLink, unknown),
		)
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return []byte(strings.Join(blocks, "\n\n"))
}

// ExportToNumberedText renders users newest first, each block numbered by its insertion position.
func ExportToNumberedText(users []models.UserRecord) []byte {
	blocks := make([]string, 0, len(users))
	for i := len(users) - 1; i >= 0; i-- {
		u := users[i]
		lines := []string{
			Separator,
			"序号：" + strconv.Itoa(i+1),
			"用户名：" + or(u.Username, unfilled),
			"抖音号：" + or(u.DouyinID, unfilled),
			"公司名称：" + or(u.CompanyName, unfilled),
			"联系人：" + or(u.Name, unfilled),
		}
		if u.Phone != "" {
			lines = append(lines, "手机号："+u.Phone)
		}
		if u.Wechat != "" {
			lines = append(lines, "微信号："+u.Wechat)
		}
		lines = append(lines,
			"粉丝数："+or(u.Fans, unknown),
			"获赞数："+or(u.Likes, unknown),
			"简介："+or(u.Bio, unfilled),
			"主页："+or(u.UserLink, unknown),
		)
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return []byte(strings.Join(blocks, "\n\n"))
}

// CSVHeaders lists the CSV columns without the optional timestamp column.
var CSVHeaders = []string{"序号", "用户名", "抖音号", "公司名称", "联系人", "手机号", "微信号", "粉丝数", "获赞数", "简介", "主页"}

// ExportToCSV renders users newest first with a descending sequence number, without a byte order mark.
//
// Every text field is quoted with inner quotes doubled; rows end in "\n" with none after the last row.
func ExportToCSV(users []models.UserRecord, opts CSVOptions) []byte {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	var buf bytes.Buffer
	if opts.Headers {
		headers := CSVHeaders
		if opts.Timestamp {
			headers = append(headers[:len(headers):len(headers)], "采集时间")
		}
		buf.WriteString(strings.Join(headers, ","))
		buf.WriteByte('\n')
	}

	for i := len(users) - 1; i >= 0; i-- {
		u := users[i]
		fields := []string{
			strconv.Itoa(i + 1),
			quote(u.Username),
			quote(u.DouyinID),
			quote(u.CompanyName),
			quote(u.Name),
			quote(u.Phone),
			quote(u.Wechat),
			quote(u.Fans),
			quote(u.Likes),
			quote(u.Bio),
			quote(u.UserLink),
		}
		if opts.Timestamp {
			fields = append(fields, quote(time.UnixMilli(u.Timestamp).In(loc).Format(TimestampLayout)))
		}
		buf.WriteString(strings.Join(fields, ","))
		if i > 0 {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

// Filename returns the default export file name for f on day t.
func Filename(f Format, t time.Time) string {
	return fmt.Sprintf("抖音用户数据_%d-%d-%d%s", t.Year(), int(t.Month()), t.Day(), f.Ext())
}

// WriteExport renders users and writes them to path, creating parent directories.
func WriteExport(users []models.UserRecord, opts Options, path string) (string, error) {
	data, err := Export(users, opts)
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

// WriteManifest writes v as indented JSON to path.
func WriteManifest(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func or(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
