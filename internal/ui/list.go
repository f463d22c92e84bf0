package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/leadsync/internal/models"
)

var (
	_ list.Item = recordItem{}
)

// recordItem wraps [models.UserRecord] to implement [list.Item].
type recordItem struct {
	record models.UserRecord
}

func (i recordItem) FilterValue() string { return i.record.Username + " " + i.record.DouyinID }

func (i recordItem) Title() string {
	if i.record.Username == "" {
		return i.record.ID
	}
	return i.record.Username
}

func (i recordItem) Description() string {
	parts := []string{}
	if i.record.DouyinID != "" {
		parts = append(parts, "抖音号 "+i.record.DouyinID)
	}
	if i.record.Fans != "" {
		parts = append(parts, fmt.Sprintf("%s 粉丝", i.record.Fans))
	}
	if i.record.Phone != "" {
		parts = append(parts, styles.contact.Render("☎ "+i.record.Phone))
	}
	if i.record.Wechat != "" {
		parts = append(parts, styles.contact.Render("微信 "+i.record.Wechat))
	}
	return strings.Join(parts, " • ")
}

func recordItems(users []models.UserRecord) []list.Item {
	items := make([]list.Item, len(users))
	for i, u := range users {
		items[i] = recordItem{record: u}
	}
	return items
}
